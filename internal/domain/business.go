package domain

import (
	"context"
	"time"
)

// Subscription statuses
const (
	SubscriptionActive   = "ACTIVE"
	SubscriptionInactive = "INACTIVE"
	SubscriptionExpired  = "EXPIRED"
)

// Business represents a tenant. Every business is owned by exactly one user
// and carries exactly one subscription after provisioning. A business starts
// inactive and becomes usable on its first subscription activation.
type Business struct {
	ID           string        `json:"id"` // UUID
	Name         string        `json:"name"`
	OwnerID      string        `json:"ownerId"` // Immutable after creation
	IsActive     bool          `json:"isActive"`
	Subscription *Subscription `json:"subscription,omitempty"` // Eager-loaded where authorization needs it
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Subscription is a tenant's billing-state record gating write access
type Subscription struct {
	ID         string     `json:"id"`
	BusinessID string     `json:"businessId"`
	Status     string     `json:"status"` // ACTIVE, INACTIVE, EXPIRED
	StartDate  *time.Time `json:"startDate,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	PlanName   string     `json:"planName,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// IsCurrentlyActive reports whether the subscription grants access at the
// given instant. Active-ness is derived, never stored: a lapsed ACTIVE row is
// treated as expired at read time without a background sweep.
func (s *Subscription) IsCurrentlyActive(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Status == SubscriptionActive && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}

// RemainingDays returns whole days until expiry, floored at zero.
func (s *Subscription) RemainingDays(now time.Time) int {
	if s == nil || s.ExpiresAt == nil {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d.Hours() / 24)
	if d.Hours() > float64(days)*24 {
		days++
	}
	return days
}

// SubscriptionStats summarizes subscription state across all tenants.
// Counts are computed against the clock, not the stored status alone.
type SubscriptionStats struct {
	TotalBusinesses       int            `json:"totalBusinesses"`
	ActiveSubscriptions   int            `json:"activeSubscriptions"`
	ExpiredSubscriptions  int            `json:"expiredSubscriptions"`
	InactiveSubscriptions int            `json:"inactiveSubscriptions"`
	StatusBreakdown       map[string]int `json:"statusBreakdown"`
}

// BusinessRepository defines data access for businesses
type BusinessRepository interface {
	GetByID(ctx context.Context, id string) (*Business, error)
	SetActive(ctx context.Context, id string, active bool) error
	Count(ctx context.Context) (int, error)
}

// SubscriptionRepository defines data access for subscriptions
type SubscriptionRepository interface {
	GetByBusinessID(ctx context.Context, businessID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	List(ctx context.Context, status string, page, limit int) ([]*Subscription, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
	CountExpired(ctx context.Context, now time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// ProvisioningRepository creates a complete tenant in one atomic unit:
// business, inactive subscription, default roles, owner membership, and the
// owner's active-business pointer. Partial completion must never persist.
type ProvisioningRepository interface {
	CreateBusiness(ctx context.Context, ownerID, name string) (*Business, error)
}
