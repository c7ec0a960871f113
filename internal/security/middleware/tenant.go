package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/observability/metrics"
	"github.com/queaccounting/backend/internal/respond"
)

// BusinessIDHeader selects an explicit tenant on routes using StrategyExplicit
const BusinessIDHeader = "x-business-id"

// TenantStrategy selects how the target business is determined. The strategy
// is fixed per route at composition time; the two modes are not
// interchangeable.
type TenantStrategy int

const (
	// StrategyRemembered resolves the principal's remembered active business,
	// auto-picking (and persisting) the first active membership when none is
	// remembered. This is the canonical default.
	StrategyRemembered TenantStrategy = iota
	// StrategyExplicit requires the x-business-id header.
	StrategyExplicit
)

// TenantOptions configures tenant resolution for one route
type TenantOptions struct {
	Strategy TenantStrategy
	// AllowOwnerFallback lets a business owner without a membership row
	// resolve the tenant; authorization then rests on the owner bypass.
	AllowOwnerFallback bool
}

// TenantMiddleware loads the membership binding the principal to the target
// business and attaches the tenant context. Each rejection is terminal; no
// stage continues degraded.
type TenantMiddleware struct {
	memberships domain.MembershipRepository
	businesses  domain.BusinessRepository
	users       domain.UserRepository
	logger      *slog.Logger
}

// NewTenantMiddleware creates the tenant resolution middleware
func NewTenantMiddleware(
	memberships domain.MembershipRepository,
	businesses domain.BusinessRepository,
	users domain.UserRepository,
	logger *slog.Logger,
) *TenantMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantMiddleware{
		memberships: memberships,
		businesses:  businesses,
		users:       users,
		logger:      logger,
	}
}

// Resolve returns the middleware for the given per-route options.
func (m *TenantMiddleware) Resolve(opts TenantOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			businessID, err := m.targetBusinessID(r, principal, opts)
			if err != nil {
				metrics.ObserveTenantRejection(rejectionReason(err))
				respond.FromError(w, err)
				return
			}

			tenant, err := m.loadTenant(r, principal, businessID, opts)
			if err != nil {
				metrics.ObserveTenantRejection(rejectionReason(err))
				respond.FromError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenant)))
		})
	}
}

// targetBusinessID applies the precedence explicit > remembered > auto-pick.
// An auto-pick persists the chosen business back onto the user.
func (m *TenantMiddleware) targetBusinessID(r *http.Request, principal domain.Principal, opts TenantOptions) (string, error) {
	if opts.Strategy == StrategyExplicit {
		id := r.Header.Get(BusinessIDHeader)
		if id == "" {
			return "", domain.ErrNoActiveBusiness
		}
		return id, nil
	}

	if id := r.Header.Get(BusinessIDHeader); id != "" {
		return id, nil
	}
	if principal.ActiveBusinessID != "" {
		return principal.ActiveBusinessID, nil
	}

	first, err := m.memberships.FirstActiveForUser(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrNoActiveBusiness
		}
		return "", err
	}
	if err := m.users.SetActiveBusiness(r.Context(), principal.ID, first.BusinessID); err != nil {
		m.logger.Error("failed to persist auto-picked business",
			slog.String("user_id", principal.ID),
			slog.String("business_id", first.BusinessID),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	m.logger.Info("auto-picked active business",
		slog.String("user_id", principal.ID),
		slog.String("business_id", first.BusinessID),
	)
	return first.BusinessID, nil
}

func (m *TenantMiddleware) loadTenant(r *http.Request, principal domain.Principal, businessID string, opts TenantOptions) (*Tenant, error) {
	membership, err := m.memberships.GetForAuthorization(r.Context(), principal.ID, businessID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if !opts.AllowOwnerFallback {
			return nil, domain.ErrNotAMember
		}
		// Owner authority is a first-class relation independent of the
		// membership table: an owner without a membership row still resolves.
		business, berr := m.businesses.GetByID(r.Context(), businessID)
		if berr != nil {
			if errors.Is(berr, domain.ErrNotFound) {
				return nil, domain.ErrNotAMember
			}
			return nil, berr
		}
		if business.OwnerID != principal.ID {
			return nil, domain.ErrNotAMember
		}
		if !business.IsActive {
			return nil, domain.ErrBusinessInactive
		}
		return &Tenant{Business: business}, nil
	}

	if !membership.IsActive {
		return nil, domain.ErrMembershipDisabled
	}

	business, err := m.businesses.GetByID(r.Context(), businessID)
	if err != nil {
		return nil, err
	}
	if !business.IsActive {
		return nil, domain.ErrBusinessInactive
	}

	return &Tenant{Business: business, Membership: membership}, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoActiveBusiness):
		return "no_active_business"
	case errors.Is(err, domain.ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, domain.ErrMembershipDisabled):
		return "membership_disabled"
	case errors.Is(err, domain.ErrBusinessInactive):
		return "business_inactive"
	case errors.Is(err, domain.ErrSubscriptionOff):
		return "subscription_inactive"
	default:
		return "error"
	}
}
