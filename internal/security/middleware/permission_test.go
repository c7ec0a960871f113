package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/audit"
)

func TestPermissionRequireAllows(t *testing.T) {
	mw := NewPermissionMiddleware(&stubEvaluator{}, audit.NewLogger(nil), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true}
	mw.Require("invoice", "create")(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodPost, principal, testTenant()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, c.called)
}

func TestPermissionRequireDenies(t *testing.T) {
	denied := &domain.PermissionDeniedError{Module: "invoice", Action: "create"}
	mw := NewPermissionMiddleware(&stubEvaluator{err: denied}, audit.NewLogger(nil), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true}
	mw.Require("invoice", "create")(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodPost, principal, testTenant()))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, c.called)
}

func TestPermissionRequireNeedsTenant(t *testing.T) {
	mw := NewPermissionMiddleware(&stubEvaluator{}, audit.NewLogger(nil), nil)
	c := &capture{}

	rec := httptest.NewRecorder()
	principal := &domain.Principal{ID: "u1", IsActive: true}
	mw.Require("invoice", "create")(c.handler()).
		ServeHTTP(rec, requestWith(t, http.MethodPost, principal, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireTenantAdmin(t *testing.T) {
	mw := RequireTenantAdmin(nil)

	t.Run("owner passes without membership", func(t *testing.T) {
		c := &capture{}
		tenant := &Tenant{Business: &domain.Business{ID: "biz-1", OwnerID: "u1", IsActive: true}}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u1", IsActive: true}
		mw(c.handler()).ServeHTTP(rec, requestWith(t, http.MethodPost, principal, tenant))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, c.called)
	})

	t.Run("admin role holder passes", func(t *testing.T) {
		c := &capture{}
		m := activeMember("u2", "biz-1")
		m.Role.Name = domain.RoleNameAdmin
		tenant := &Tenant{
			Business:   &domain.Business{ID: "biz-1", OwnerID: "owner", IsActive: true},
			Membership: m,
		}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u2", IsActive: true}
		mw(c.handler()).ServeHTTP(rec, requestWith(t, http.MethodPost, principal, tenant))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ordinary member denied", func(t *testing.T) {
		c := &capture{}
		tenant := &Tenant{
			Business:   &domain.Business{ID: "biz-1", OwnerID: "owner", IsActive: true},
			Membership: activeMember("u2", "biz-1"),
		}
		rec := httptest.NewRecorder()
		principal := &domain.Principal{ID: "u2", IsActive: true}
		mw(c.handler()).ServeHTTP(rec, requestWith(t, http.MethodPost, principal, tenant))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, c.called)
	})
}
