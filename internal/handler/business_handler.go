package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/security/middleware"
	"github.com/queaccounting/backend/internal/service"
)

// BusinessHandler handles business provisioning and switching
type BusinessHandler struct {
	businessService *service.BusinessService
	logger          *slog.Logger
}

// NewBusinessHandler creates a new business handler
func NewBusinessHandler(businessService *service.BusinessService, logger *slog.Logger) *BusinessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusinessHandler{businessService: businessService, logger: logger}
}

// CreateBusinessRequest is the provisioning payload
type CreateBusinessRequest struct {
	Name string `json:"name"`
}

// SwitchBusinessRequest is the switch payload
type SwitchBusinessRequest struct {
	BusinessID string `json:"businessId"`
}

// Create handles POST /api/businesses
func (h *BusinessHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respond.Error(w, http.StatusBadRequest, "Business name is required")
		return
	}

	result, err := h.businessService.CreateBusiness(r.Context(), &principal, req.Name)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusCreated, "Business created successfully", result)
}

// Current handles GET /api/businesses/current, returning the resolved tenant
func (h *BusinessHandler) Current(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusBadRequest, "No business context resolved")
		return
	}
	respond.Success(w, http.StatusOK, "OK", tenant.Business)
}

// Switch handles POST /api/businesses/switch. A rejected switch leaves the
// remembered business untouched.
func (h *BusinessHandler) Switch(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req SwitchBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BusinessID == "" {
		respond.Error(w, http.StatusBadRequest, "businessId is required")
		return
	}

	result, err := h.businessService.SwitchBusiness(r.Context(), &principal, req.BusinessID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Business switched successfully", result)
}
