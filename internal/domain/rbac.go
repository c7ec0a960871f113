package domain

import (
	"context"
	"time"
)

// Default role names created by business provisioning. The Admin role is the
// tenant's designated administrative role: holders bypass the fine-grained
// catalog entirely, so catalog growth never needs a grant backfill for admins.
const (
	RoleNameAdmin = "Admin"
	RoleNameUser  = "User"
)

// Role is a named, tenant-scoped bundle of permissions
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	BusinessID  string       `json:"businessId"`
	Permissions []Permission `json:"permissions,omitempty"` // Eager-loaded for authorization
	CreatedAt   time.Time    `json:"createdAt"`
}

// Permission is a (module, action) capability unit from the global catalog.
// Module and action are free-form strings, e.g. "invoice"/"create".
type Permission struct {
	ID     string `json:"id"`
	Module string `json:"module"`
	Action string `json:"action"`
}

// ModuleDef groups the catalog by module name for administration
type ModuleDef struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// Membership binds one user to one business with exactly one role and a set
// of direct permission grants layered on top of it. The business owner is not
// required to hold a membership row: owner authority is checked against
// Business.OwnerID independently.
type Membership struct {
	ID              string       `json:"id"`
	UserID          string       `json:"userId"`
	BusinessID      string       `json:"businessId"`
	RoleID          string       `json:"roleId"`
	IsActive        bool         `json:"isActive"`
	Role            *Role        `json:"role,omitempty"`            // Eager-loaded with its permissions
	UserPermissions []Permission `json:"userPermissions,omitempty"` // Direct grants, eager-loaded
	CreatedAt       time.Time    `json:"createdAt"`

	// Populated on list endpoints
	UserName     string `json:"userName,omitempty"`
	UserEmail    string `json:"userEmail,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
}

// MembershipRepository defines data access for business memberships
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	// GetForAuthorization loads the membership for (userID, businessID) with
	// role permissions and direct user permissions attached, or ErrNotFound.
	GetForAuthorization(ctx context.Context, userID, businessID string) (*Membership, error)
	GetByID(ctx context.Context, id string) (*Membership, error)
	GetByUserAndBusiness(ctx context.Context, userID, businessID string) (*Membership, error)
	// FirstActiveForUser returns the user's oldest active membership, used by
	// the auto-pick tenant resolution fallback. ErrNotFound when none exist.
	FirstActiveForUser(ctx context.Context, userID string) (*Membership, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*Membership, error)
	// ListForUser returns all of a user's memberships with business names
	// attached, oldest first. Sign-in responses are built from this.
	ListForUser(ctx context.Context, userID string) ([]*Membership, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// RoleRepository defines data access for tenant-scoped roles
type RoleRepository interface {
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, businessID, name string) (*Role, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*Role, error)
}

// PermissionRepository defines data access for the global catalog and for
// role/user grant rows. Grant operations are idempotent at the storage level.
type PermissionRepository interface {
	ListCatalog(ctx context.Context) ([]Permission, error)
	FindByModuleActions(ctx context.Context, module string, actions []string) ([]Permission, error)
	CreateModule(ctx context.Context, name string, actions []string) error
	ListModules(ctx context.Context) ([]ModuleDef, error)
	// ReplaceModuleActions swaps a module's permission set, cascading removal
	// of role and user grants that reference the dropped entries.
	ReplaceModuleActions(ctx context.Context, name string, actions []string) error
	DeleteModule(ctx context.Context, name string) error

	GrantToMembership(ctx context.Context, membershipID string, permissionIDs []string) error
	RevokeFromMembership(ctx context.Context, membershipID string, permissionIDs []string) error
	ListForMembership(ctx context.Context, membershipID string) ([]Permission, error)
}
