package domain

import (
	"context"
	"time"
)

// Coarse account roles. These are orthogonal to business-level roles: a
// SUPER_ADMIN manages subscriptions across tenants, while tenant access is
// always decided by memberships.
const (
	CoarseRoleUser       = "USER"
	CoarseRoleAdmin      = "ADMIN"
	CoarseRoleSuperAdmin = "SUPER_ADMIN"
)

// User represents a registered account
type User struct {
	ID               string    `json:"id"` // UUID
	Name             string    `json:"name"`
	Email            string    `json:"email"` // Unique email address
	PasswordHash     string    `json:"-"`     // Bcrypt hashed password, never serialized
	Role             string    `json:"role"`  // Coarse role: USER, ADMIN, SUPER_ADMIN
	IsActive         bool      `json:"isActive"`
	ActiveBusinessID string    `json:"activeBusinessId,omitempty"` // Remembered active business, empty if none
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Principal is an authenticated actor independent of any business context.
// It is either a stored user (re-fetched from the store on every request) or
// the environment-configured bootstrap admin, which has no store row and is
// resolved entirely from verified claims.
type Principal struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	IsActive         bool   `json:"isActive"`
	ActiveBusinessID string `json:"activeBusinessId,omitempty"`
	BootstrapAdmin   bool   `json:"bootstrapAdmin,omitempty"`
}

// IsSuperAdmin reports whether the principal holds subscription-management
// authority. This is a distinct authority axis from business-level roles.
func (p Principal) IsSuperAdmin() bool {
	return p.BootstrapAdmin || p.Role == CoarseRoleSuperAdmin
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetActiveBusiness(ctx context.Context, userID, businessID string) error
	Update(ctx context.Context, user *User) error
	List(ctx context.Context) ([]*User, error)
}
