package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queaccounting/backend/internal/domain"
)

func activeMember(userID, businessID string) *domain.Membership {
	return &domain.Membership{
		ID: "m-" + userID + "-" + businessID, UserID: userID, BusinessID: businessID,
		RoleID: "role-1", IsActive: true,
		Role: &domain.Role{ID: "role-1", Name: domain.RoleNameUser, BusinessID: businessID},
	}
}

func TestTenantExplicitRequiresHeader(t *testing.T) {
	mw := NewTenantMiddleware(newStubMemberships(), newStubBusinesses(), newStubUsers(), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true}
	mw.Resolve(TenantOptions{Strategy: StrategyExplicit})(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, c.called)
}

func TestTenantRememberedBusiness(t *testing.T) {
	business := &domain.Business{ID: "biz-1", Name: "Acme", OwnerID: "owner", IsActive: true}
	mw := NewTenantMiddleware(
		newStubMemberships(activeMember("u1", "biz-1")),
		newStubBusinesses(business),
		newStubUsers(),
		nil,
	)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true, ActiveBusinessID: "biz-1"}
	mw.Resolve(TenantOptions{})(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, c.tenant)
	assert.Equal(t, "biz-1", c.tenant.Business.ID)
	require.NotNil(t, c.tenant.Membership)
	assert.Equal(t, "u1", c.tenant.Membership.UserID)
}

func TestTenantHeaderOverridesRemembered(t *testing.T) {
	mw := NewTenantMiddleware(
		newStubMemberships(activeMember("u1", "biz-1"), activeMember("u1", "biz-2")),
		newStubBusinesses(
			&domain.Business{ID: "biz-1", OwnerID: "owner", IsActive: true},
			&domain.Business{ID: "biz-2", OwnerID: "owner", IsActive: true},
		),
		newStubUsers(),
		nil,
	)
	c := &capture{}

	principal := &domain.Principal{ID: "u1", IsActive: true, ActiveBusinessID: "biz-1"}
	r := requestWith(t, http.MethodGet, principal, nil)
	r.Header.Set(BusinessIDHeader, "biz-2")
	rec := httptest.NewRecorder()
	mw.Resolve(TenantOptions{})(c.handler()).ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "biz-2", c.tenant.Business.ID)
}

func TestTenantAutoPickPersists(t *testing.T) {
	users := newStubUsers(&domain.User{ID: "u1", IsActive: true})
	memberships := newStubMemberships(activeMember("u1", "biz-1"))
	memberships.firstActive = activeMember("u1", "biz-1")
	mw := NewTenantMiddleware(memberships,
		newStubBusinesses(&domain.Business{ID: "biz-1", OwnerID: "owner", IsActive: true}),
		users, nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true} // nothing remembered
	mw.Resolve(TenantOptions{})(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "biz-1", c.tenant.Business.ID)
	assert.Equal(t, "biz-1", users.persisted["u1"], "auto-pick must be written back")
}

func TestTenantNoMembershipAnywhere(t *testing.T) {
	mw := NewTenantMiddleware(newStubMemberships(), newStubBusinesses(), newStubUsers(), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true}
	mw.Resolve(TenantOptions{})(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, c.called)
}

func TestTenantNotAMember(t *testing.T) {
	mw := NewTenantMiddleware(newStubMemberships(),
		newStubBusinesses(&domain.Business{ID: "biz-1", OwnerID: "someone-else", IsActive: true}),
		newStubUsers(), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true, ActiveBusinessID: "biz-1"}
	mw.Resolve(TenantOptions{})(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, c.called)
}

func TestTenantDisabledMembership(t *testing.T) {
	m := activeMember("u1", "biz-1")
	m.IsActive = false
	mw := NewTenantMiddleware(newStubMemberships(m),
		newStubBusinesses(&domain.Business{ID: "biz-1", OwnerID: "owner", IsActive: true}),
		newStubUsers(), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true, ActiveBusinessID: "biz-1"}
	mw.Resolve(TenantOptions{})(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantInactiveBusiness(t *testing.T) {
	mw := NewTenantMiddleware(newStubMemberships(activeMember("u1", "biz-1")),
		newStubBusinesses(&domain.Business{ID: "biz-1", OwnerID: "owner", IsActive: false}),
		newStubUsers(), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true, ActiveBusinessID: "biz-1"}
	mw.Resolve(TenantOptions{})(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantOwnerFallback(t *testing.T) {
	businesses := newStubBusinesses(&domain.Business{ID: "biz-1", OwnerID: "u1", IsActive: true})

	t.Run("allowed resolves without membership", func(t *testing.T) {
		mw := NewTenantMiddleware(newStubMemberships(), businesses, newStubUsers(), nil)
		c := &capture{}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u1", IsActive: true, ActiveBusinessID: "biz-1"}
		mw.Resolve(TenantOptions{AllowOwnerFallback: true})(c.handler()).
			ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "biz-1", c.tenant.Business.ID)
		assert.Nil(t, c.tenant.Membership)
	})

	t.Run("denied when the route does not opt in", func(t *testing.T) {
		mw := NewTenantMiddleware(newStubMemberships(), businesses, newStubUsers(), nil)
		c := &capture{}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u1", IsActive: true, ActiveBusinessID: "biz-1"}
		mw.Resolve(TenantOptions{})(c.handler()).
			ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, c.called)
	})

	t.Run("non-owner still rejected", func(t *testing.T) {
		mw := NewTenantMiddleware(newStubMemberships(), businesses, newStubUsers(), nil)
		c := &capture{}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u2", IsActive: true, ActiveBusinessID: "biz-1"}
		mw.Resolve(TenantOptions{AllowOwnerFallback: true})(c.handler()).
			ServeHTTP(rec, requestWith(t, http.MethodGet, principal, nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
