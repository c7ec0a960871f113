package middleware

import (
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/observability/metrics"
	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/security/audit"
)

// Evaluator decides whether a principal may perform (module, action) within a
// resolved tenant. A nil return allows; a PermissionDeniedError denies.
type Evaluator interface {
	Evaluate(principal domain.Principal, business *domain.Business, membership *domain.Membership, module, action string) error
}

// PermissionMiddleware enforces fine-grained (module, action) checks. Must
// run after tenant resolution.
type PermissionMiddleware struct {
	evaluator Evaluator
	auditLog  *audit.Logger
	logger    *slog.Logger
}

// NewPermissionMiddleware creates the permission middleware
func NewPermissionMiddleware(evaluator Evaluator, auditLog *audit.Logger, logger *slog.Logger) *PermissionMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionMiddleware{evaluator: evaluator, auditLog: auditLog, logger: logger}
}

// Require returns middleware enforcing the given (module, action) pair.
func (m *PermissionMiddleware) Require(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			tenant, ok := TenantFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusBadRequest, "Business context missing")
				return
			}

			if err := m.evaluator.Evaluate(principal, tenant.Business, tenant.Membership, module, action); err != nil {
				metrics.ObserveAuthzDecision(module, action, "deny")
				m.auditLog.LogDenied(r.Context(), tenant.Business.ID, principal.ID, module, action)
				respond.FromError(w, err)
				return
			}

			metrics.ObserveAuthzDecision(module, action, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenantAdmin restricts a route to the business owner or holders of
// the tenant's Admin role.
func RequireTenantAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			tenant, ok := TenantFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusBadRequest, "Business context missing")
				return
			}

			if tenant.Business.OwnerID == principal.ID {
				next.ServeHTTP(w, r)
				return
			}
			if m := tenant.Membership; m != nil && m.Role != nil && m.Role.Name == domain.RoleNameAdmin {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("tenant admin access denied",
				slog.String("user_id", principal.ID),
				slog.String("business_id", tenant.Business.ID),
			)
			respond.FromError(w, domain.ErrAdminOnly)
		})
	}
}
