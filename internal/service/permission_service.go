package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/audit"
	"github.com/queaccounting/backend/pkg/cache"
)

const (
	catalogCacheKey = "permissions:catalog"
	modulesCacheKey = "permissions:modules"
	catalogCacheTTL = 5 * time.Minute
)

// PermissionService evaluates authorization decisions and administers the
// global permission catalog and per-member grants.
type PermissionService struct {
	permissions domain.PermissionRepository
	memberships domain.MembershipRepository
	catalog     *cache.Cache
	auditLog    *audit.Logger
	logger      *slog.Logger
}

// NewPermissionService creates a new permission service
func NewPermissionService(
	permissions domain.PermissionRepository,
	memberships domain.MembershipRepository,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *PermissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionService{
		permissions: permissions,
		memberships: memberships,
		catalog:     cache.New(),
		auditLog:    auditLog,
		logger:      logger,
	}
}

// Evaluate decides whether a principal may perform (module, action) within a
// business. Checks run cheapest-first and stop at the first grant:
//
//  1. business owner, checked against Business.OwnerID so ownership survives
//     membership deletion
//  2. holder of the tenant's Admin role
//  3. permission attached to the member's role
//  4. permission granted directly to the member
//
// Anything else is a denial naming the module and action.
func (s *PermissionService) Evaluate(principal domain.Principal, business *domain.Business, membership *domain.Membership, module, action string) error {
	if business != nil && business.OwnerID == principal.ID {
		return nil
	}
	if membership == nil {
		return &domain.PermissionDeniedError{Module: module, Action: action}
	}
	if membership.Role != nil && membership.Role.Name == domain.RoleNameAdmin {
		return nil
	}
	if membership.Role != nil {
		for _, p := range membership.Role.Permissions {
			if p.Module == module && p.Action == action {
				return nil
			}
		}
	}
	for _, p := range membership.UserPermissions {
		if p.Module == module && p.Action == action {
			return nil
		}
	}
	return &domain.PermissionDeniedError{Module: module, Action: action}
}

// Catalog returns the flat (module, action) catalog, cached briefly. Tenant
// admins read it to know what is grantable.
func (s *PermissionService) Catalog(ctx context.Context) ([]domain.Permission, error) {
	if cached, ok := s.catalog.Get(catalogCacheKey); ok {
		return cached.([]domain.Permission), nil
	}
	perms, err := s.permissions.ListCatalog(ctx)
	if err != nil {
		return nil, err
	}
	s.catalog.Set(catalogCacheKey, perms, catalogCacheTTL)
	return perms, nil
}

// ListModules returns the catalog grouped by module, cached briefly since the
// catalog changes rarely but is read on every admin screen.
func (s *PermissionService) ListModules(ctx context.Context) ([]domain.ModuleDef, error) {
	if cached, ok := s.catalog.Get(modulesCacheKey); ok {
		return cached.([]domain.ModuleDef), nil
	}
	modules, err := s.permissions.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	s.catalog.Set(modulesCacheKey, modules, catalogCacheTTL)
	return modules, nil
}

// CreateModule adds a module with its actions to the catalog
func (s *PermissionService) CreateModule(ctx context.Context, name string, actions []string) error {
	name, actions, err := normalizeModule(name, actions)
	if err != nil {
		return err
	}
	if err := s.permissions.CreateModule(ctx, name, actions); err != nil {
		return err
	}
	s.invalidateCatalog()
	return nil
}

// UpdateModule replaces a module's action set. Members keep grants on
// surviving actions; grants on dropped actions disappear with the permission
// rows.
func (s *PermissionService) UpdateModule(ctx context.Context, name string, actions []string) error {
	name, actions, err := normalizeModule(name, actions)
	if err != nil {
		return err
	}
	if err := s.permissions.ReplaceModuleActions(ctx, name, actions); err != nil {
		return err
	}
	s.invalidateCatalog()
	return nil
}

// DeleteModule removes a module and all its permissions
func (s *PermissionService) DeleteModule(ctx context.Context, name string) error {
	if err := s.permissions.DeleteModule(ctx, strings.TrimSpace(name)); err != nil {
		return err
	}
	s.invalidateCatalog()
	return nil
}

// Grant attaches catalog permissions from one module to a member. Unknown
// actions are rejected; already-granted permissions are skipped silently.
func (s *PermissionService) Grant(ctx context.Context, actor *domain.Principal, businessID, membershipID, module string, actions []string) error {
	membership, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if membership.BusinessID != businessID {
		return domain.ErrNotFound
	}

	perms, err := s.permissions.FindByModuleActions(ctx, module, actions)
	if err != nil {
		return err
	}
	if len(perms) != len(actions) {
		return fmt.Errorf("unknown permission in %s: %w", module, domain.ErrNotFound)
	}

	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	if err := s.permissions.GrantToMembership(ctx, membershipID, ids); err != nil {
		return err
	}
	s.auditLog.LogGrant(ctx, businessID, actor.ID, membershipID, "permission_grant", len(ids))
	return nil
}

// Revoke removes direct permissions from a member. Revoking permissions the
// member never held is a no-op.
func (s *PermissionService) Revoke(ctx context.Context, actor *domain.Principal, businessID, membershipID, module string, actions []string) error {
	membership, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if membership.BusinessID != businessID {
		return domain.ErrNotFound
	}

	perms, err := s.permissions.FindByModuleActions(ctx, module, actions)
	if err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}

	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	if err := s.permissions.RevokeFromMembership(ctx, membershipID, ids); err != nil {
		return err
	}
	s.auditLog.LogGrant(ctx, businessID, actor.ID, membershipID, "permission_revoke", len(ids))
	return nil
}

// ListForMember returns the direct grants a member holds
func (s *PermissionService) ListForMember(ctx context.Context, businessID, membershipID string) ([]domain.Permission, error) {
	membership, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if membership.BusinessID != businessID {
		return nil, domain.ErrNotFound
	}
	return s.permissions.ListForMembership(ctx, membershipID)
}

func (s *PermissionService) invalidateCatalog() {
	s.catalog.Delete(catalogCacheKey)
	s.catalog.Delete(modulesCacheKey)
}

func normalizeModule(name string, actions []string) (string, []string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", nil, fmt.Errorf("module name is required")
	}
	seen := make(map[string]bool, len(actions))
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		return "", nil, fmt.Errorf("at least one action is required")
	}
	return name, out, nil
}
