package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/audit"
	"github.com/queaccounting/backend/internal/security/middleware"
)

// The service must remain pluggable as the middleware's evaluator.
var _ middleware.Evaluator = (*PermissionService)(nil)

func testCatalog() []domain.Permission {
	return []domain.Permission{
		{ID: "p1", Module: "invoice", Action: "create"},
		{ID: "p2", Module: "invoice", Action: "read"},
		{ID: "p3", Module: "customer", Action: "delete"},
	}
}

func newTestPermissionService(perms *memPermissionRepo, members *memMembershipRepo) *PermissionService {
	return NewPermissionService(perms, members, audit.NewLogger(nil), nil)
}

func TestEvaluateOwnerBypassesEverything(t *testing.T) {
	s := newTestPermissionService(newMemPermissionRepo(testCatalog()), newMemMembershipRepo())

	principal := domain.Principal{ID: "owner-1"}
	business := &domain.Business{ID: "biz-1", OwnerID: "owner-1"}

	// Owner with no membership at all still passes
	assert.NoError(t, s.Evaluate(principal, business, nil, "invoice", "create"))

	// Owner with a disabled-looking membership still passes, ownership is
	// checked against the business row
	membership := &domain.Membership{ID: "mem-1", Role: &domain.Role{Name: domain.RoleNameUser}}
	assert.NoError(t, s.Evaluate(principal, business, membership, "customer", "delete"))
}

func TestEvaluateAdminRoleBypass(t *testing.T) {
	s := newTestPermissionService(newMemPermissionRepo(testCatalog()), newMemMembershipRepo())

	principal := domain.Principal{ID: "user-1"}
	business := &domain.Business{ID: "biz-1", OwnerID: "owner-1"}
	membership := &domain.Membership{
		ID:   "mem-1",
		Role: &domain.Role{Name: domain.RoleNameAdmin},
	}

	// Admin role holders pass regardless of attached permissions, so new
	// catalog modules never need an admin grant backfill
	assert.NoError(t, s.Evaluate(principal, business, membership, "brand-new-module", "anything"))
}

func TestEvaluateRolePermissionAndDirectGrant(t *testing.T) {
	s := newTestPermissionService(newMemPermissionRepo(testCatalog()), newMemMembershipRepo())

	principal := domain.Principal{ID: "user-1"}
	business := &domain.Business{ID: "biz-1", OwnerID: "owner-1"}
	membership := &domain.Membership{
		ID: "mem-1",
		Role: &domain.Role{
			Name:        domain.RoleNameUser,
			Permissions: []domain.Permission{{ID: "p2", Module: "invoice", Action: "read"}},
		},
		UserPermissions: []domain.Permission{{ID: "p3", Module: "customer", Action: "delete"}},
	}

	assert.NoError(t, s.Evaluate(principal, business, membership, "invoice", "read"))
	assert.NoError(t, s.Evaluate(principal, business, membership, "customer", "delete"))

	err := s.Evaluate(principal, business, membership, "invoice", "create")
	var denied *domain.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "invoice", denied.Module)
	assert.Equal(t, "create", denied.Action)
}

func TestEvaluateNilMembershipDenied(t *testing.T) {
	s := newTestPermissionService(newMemPermissionRepo(testCatalog()), newMemMembershipRepo())

	principal := domain.Principal{ID: "user-1"}
	business := &domain.Business{ID: "biz-1", OwnerID: "owner-1"}

	err := s.Evaluate(principal, business, nil, "invoice", "read")
	var denied *domain.PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
}

func TestListModulesCaches(t *testing.T) {
	perms := newMemPermissionRepo(testCatalog())
	s := newTestPermissionService(perms, newMemMembershipRepo())
	ctx := context.Background()

	first, err := s.ListModules(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = s.ListModules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, perms.listCalled, "second read should come from cache")

	// Mutations invalidate the cache
	require.NoError(t, s.CreateModule(ctx, "report", []string{"read"}))
	modules, err := s.ListModules(ctx)
	require.NoError(t, err)
	assert.Len(t, modules, 3)
	assert.Equal(t, 2, perms.listCalled)
}

func TestCatalogCachesAndInvalidates(t *testing.T) {
	perms := newMemPermissionRepo(testCatalog())
	s := newTestPermissionService(perms, newMemMembershipRepo())
	ctx := context.Background()

	first, err := s.Catalog(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	_, err = s.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, perms.catalogCalled, "second read should come from cache")

	require.NoError(t, s.DeleteModule(ctx, "customer"))
	after, err := s.Catalog(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 2)
	assert.Equal(t, 2, perms.catalogCalled)
}

func TestGrantRejectsUnknownAction(t *testing.T) {
	perms := newMemPermissionRepo(testCatalog())
	members := newMemMembershipRepo()
	s := newTestPermissionService(perms, members)
	ctx := context.Background()

	require.NoError(t, members.Create(ctx, &domain.Membership{
		ID: "mem-1", UserID: "user-1", BusinessID: "biz-1", RoleID: "role-1", IsActive: true,
	}))

	actor := &domain.Principal{ID: "owner-1"}
	err := s.Grant(ctx, actor, "biz-1", "mem-1", "invoice", []string{"create", "teleport"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Valid grants apply and repeat grants stay idempotent
	require.NoError(t, s.Grant(ctx, actor, "biz-1", "mem-1", "invoice", []string{"create"}))
	require.NoError(t, s.Grant(ctx, actor, "biz-1", "mem-1", "invoice", []string{"create"}))
	granted, err := s.ListForMember(ctx, "biz-1", "mem-1")
	require.NoError(t, err)
	assert.Len(t, granted, 1)
}

func TestGrantScopedToBusiness(t *testing.T) {
	perms := newMemPermissionRepo(testCatalog())
	members := newMemMembershipRepo()
	s := newTestPermissionService(perms, members)
	ctx := context.Background()

	require.NoError(t, members.Create(ctx, &domain.Membership{
		ID: "mem-1", UserID: "user-1", BusinessID: "biz-other", RoleID: "role-1", IsActive: true,
	}))

	actor := &domain.Principal{ID: "owner-1"}
	err := s.Grant(ctx, actor, "biz-1", "mem-1", "invoice", []string{"create"})
	assert.ErrorIs(t, err, domain.ErrNotFound, "cannot grant to a member of another business")
}
