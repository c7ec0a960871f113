package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/auth"
)

func newTestTokens() *auth.TokenManager {
	return auth.NewTokenManager("test-secret", "", "", 0, 0)
}

func TestAuthenticateMissingHeader(t *testing.T) {
	mw := NewAuthMiddleware(newTestTokens(), newStubUsers(), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	mw.Authenticate(c.handler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, c.called)
}

func TestAuthenticateGarbledToken(t *testing.T) {
	mw := NewAuthMiddleware(newTestTokens(), newStubUsers(), nil)
	c := &capture{}

	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	mw.Authenticate(c.handler()).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, c.called)
}

func TestAuthenticateResolvesFreshUser(t *testing.T) {
	tokens := newTestTokens()
	users := newStubUsers(&domain.User{
		ID: "u1", Email: "new@example.com", Role: domain.CoarseRoleUser,
		IsActive: true, ActiveBusinessID: "biz-1",
	})
	mw := NewAuthMiddleware(tokens, users, nil)
	c := &capture{}

	// Claims carry a stale email; the principal must reflect the store.
	token, err := tokens.Issue(auth.Claims{UserID: "u1", Email: "old@example.com", Role: domain.CoarseRoleUser, Active: true})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Authenticate(c.handler()).ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, c.called)
	assert.Equal(t, "new@example.com", c.principal.Email)
	assert.Equal(t, "biz-1", c.principal.ActiveBusinessID)
}

func TestAuthenticateDeactivatedUser(t *testing.T) {
	tokens := newTestTokens()
	users := newStubUsers(&domain.User{ID: "u1", Email: "a@example.com", IsActive: false})
	mw := NewAuthMiddleware(tokens, users, nil)
	c := &capture{}

	token, err := tokens.Issue(auth.Claims{UserID: "u1", Email: "a@example.com", Active: true})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Authenticate(c.handler()).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, c.called)
}

func TestAuthenticateBootstrapAdminSkipsStore(t *testing.T) {
	tokens := newTestTokens()
	// Empty user repo: a store lookup would fail.
	mw := NewAuthMiddleware(tokens, newStubUsers(), nil)
	c := &capture{}

	token, err := tokens.Issue(auth.Claims{
		Email: "root@example.com", Role: domain.CoarseRoleSuperAdmin, Active: true, BootstrapAdmin: true,
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Authenticate(c.handler()).ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, c.principal.BootstrapAdmin)
	assert.True(t, c.principal.IsSuperAdmin())
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	tokens := newTestTokens()
	users := newStubUsers(&domain.User{ID: "u1", Email: "a@example.com", IsActive: true})
	mw := NewAuthMiddleware(tokens, users, nil)
	c := &capture{}

	refresh, err := tokens.IssueRefresh(auth.Claims{UserID: "u1", Email: "a@example.com", Active: true})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()
	mw.Authenticate(c.handler()).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, c.called)
}

func TestRequireSuperAdmin(t *testing.T) {
	mw := RequireSuperAdmin(nil)

	t.Run("super admin passes", func(t *testing.T) {
		c := &capture{}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u1", Role: domain.CoarseRoleSuperAdmin, IsActive: true}
		mw(c.handler()).ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, c.called)
	})

	t.Run("ordinary user denied", func(t *testing.T) {
		c := &capture{}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u1", Role: domain.CoarseRoleUser, IsActive: true}
		mw(c.handler()).ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, c.called)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		c := &capture{}
		rec := httptest.NewRecorder()
		mw(c.handler()).ServeHTTP(rec, requestWith(t, http.MethodGet, nil, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
