package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/security/middleware"
	"github.com/queaccounting/backend/internal/security/ratelimit"
	"github.com/queaccounting/backend/internal/service"
)

// Login attempts per email within this window before throttling kicks in
const ratelimitLoginWindow = time.Minute

// AuthHandler handles registration, login and token refresh
type AuthHandler struct {
	authService *service.AuthService
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, limiter *ratelimit.Limiter, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authService: authService, limiter: limiter, logger: logger}
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the token refresh payload
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if len(req.Password) < 8 {
		respond.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	result, err := h.authService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusCreated, "Registered successfully", result)
}

// Login handles POST /api/auth/login. Attempts are rate limited per email to
// slow brute forcing.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.limiter != nil && !h.limiter.AllowStrict(req.Email, 10, ratelimitLoginWindow) {
		h.logger.Warn("login rate limited", slog.String("email", req.Email))
		respond.Error(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respond.Error(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Logged in successfully", result)
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respond.Error(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Token refreshed", result)
}

// Me handles GET /api/auth/me, echoing the resolved principal
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	respond.Success(w, http.StatusOK, "OK", principal)
}

// ListUsers handles GET /api/admin/users (super admin only)
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.ListUsers(r.Context())
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", users)
}
