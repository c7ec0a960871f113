package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/observability/metrics"
	"github.com/queaccounting/backend/internal/respond"
)

// GateMode controls how the subscription gate treats reads vs writes
type GateMode int

const (
	// GateStrict rejects every request for a tenant without an active
	// subscription.
	GateStrict GateMode = iota
	// GateReadOnly lets idempotent reads through regardless of subscription
	// state; only non-idempotent operations are gated. Existing tenants can
	// still view their data after expiry.
	GateReadOnly
)

// SubscriptionChecker answers whether a business currently has an active
// subscription. The production implementation is cache-backed.
type SubscriptionChecker interface {
	IsActive(ctx context.Context, businessID string) (bool, error)
}

// SubscriptionGate gates write access on subscription state. A checker error
// fails closed as a 500, never as a silent allow.
type SubscriptionGate struct {
	checker SubscriptionChecker
	logger  *slog.Logger
}

// NewSubscriptionGate creates the subscription gate middleware
func NewSubscriptionGate(checker SubscriptionChecker, logger *slog.Logger) *SubscriptionGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionGate{checker: checker, logger: logger}
}

// Require returns the middleware for the given mode. Must run after tenant
// resolution.
func (g *SubscriptionGate) Require(mode GateMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := TenantFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusBadRequest, "Business context missing")
				return
			}

			if mode == GateReadOnly && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
				next.ServeHTTP(w, r)
				return
			}

			active, err := g.checker.IsActive(r.Context(), tenant.Business.ID)
			if err != nil {
				g.logger.Error("subscription check failed",
					slog.String("business_id", tenant.Business.ID),
					slog.String("error", err.Error()),
				)
				respond.Error(w, http.StatusInternalServerError, "Internal server error while checking subscription")
				return
			}
			if !active {
				metrics.ObserveTenantRejection(rejectionReason(domain.ErrSubscriptionOff))
				respond.FromError(w, domain.ErrSubscriptionOff)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
