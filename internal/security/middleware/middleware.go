package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/security/auth"
)

type principalContextKey struct{}
type tenantContextKey struct{}

// Tenant is the resolved business context attached to a request. Membership
// is nil when the principal resolved through the owner-without-membership
// fallback; the permission evaluator handles that via the owner bypass.
type Tenant struct {
	Business   *domain.Business
	Membership *domain.Membership
}

// AuthMiddleware turns bearer tokens into Principals. Except for the
// bootstrap admin, the user is re-fetched from the store on every request so
// a deactivation takes effect before token expiry.
type AuthMiddleware struct {
	tokens   *auth.TokenManager
	userRepo domain.UserRepository
	logger   *slog.Logger
}

// NewAuthMiddleware creates the authentication middleware
func NewAuthMiddleware(tokens *auth.TokenManager, userRepo domain.UserRepository, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{tokens: tokens, userRepo: userRepo, logger: logger}
}

// Authenticate rejects requests without a valid access token and attaches the
// resolved Principal to the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			respond.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		tokenString, err := auth.ExtractToken(header)
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := m.tokens.Verify(tokenString)
		if err != nil {
			respond.FromError(w, err)
			return
		}

		principal, err := m.resolvePrincipal(r.Context(), claims)
		if err != nil {
			respond.FromError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolvePrincipal trusts claims only for the bootstrap admin, which has no
// store row. Every other principal is looked up fresh.
func (m *AuthMiddleware) resolvePrincipal(ctx context.Context, claims *auth.Claims) (domain.Principal, error) {
	if claims.BootstrapAdmin {
		return domain.Principal{
			ID:             claims.UserID,
			Email:          claims.Email,
			Role:           claims.Role,
			IsActive:       true,
			BootstrapAdmin: true,
		}, nil
	}

	if claims.UserID == "" {
		return domain.Principal{}, domain.ErrAuthRequired
	}

	user, err := m.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		m.logger.Warn("token references unknown user", slog.String("user_id", claims.UserID))
		return domain.Principal{}, domain.ErrAuthRequired
	}
	if !user.IsActive {
		return domain.Principal{}, domain.ErrAccountInactive
	}

	return domain.Principal{
		ID:               user.ID,
		Email:            user.Email,
		Role:             user.Role,
		IsActive:         user.IsActive,
		ActiveBusinessID: user.ActiveBusinessID,
	}, nil
}

// RequireSuperAdmin restricts a route to the subscription-management
// authority: coarse SUPER_ADMIN accounts and the bootstrap admin. Ordinary
// memberships never qualify.
func RequireSuperAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
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
			if !principal.IsSuperAdmin() {
				logger.Warn("super admin access denied",
					slog.String("user_id", principal.ID),
					slog.String("path", r.URL.Path),
				)
				respond.FromError(w, domain.ErrSuperAdminOnly)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext returns the authenticated principal, if any
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}

// TenantFromContext returns the resolved tenant context, if any
func TenantFromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(*Tenant)
	return t, ok
}

func withTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// Chain composes middleware around a handler, outermost first
func Chain(h http.Handler, wrappers ...func(http.Handler) http.Handler) http.Handler {
	for i := len(wrappers) - 1; i >= 0; i-- {
		h = wrappers[i](h)
	}
	return h
}
