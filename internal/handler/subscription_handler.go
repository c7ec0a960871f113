package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/security/middleware"
	"github.com/queaccounting/backend/internal/service"
)

// SubscriptionHandler exposes subscription administration (super admin only)
// and the tenant's own subscription view.
type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
	logger              *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptionService *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{subscriptionService: subscriptionService, logger: logger}
}

// ActivateRequest is the activation/extension payload
type ActivateRequest struct {
	DurationMonths int    `json:"durationMonths"`
	PlanName       string `json:"planName,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Mine handles GET /api/subscription, the tenant's own view
func (h *SubscriptionHandler) Mine(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusBadRequest, "No business context resolved")
		return
	}
	sub, err := h.subscriptionService.Get(r.Context(), tenant.Business.ID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", sub)
}

// Get handles GET /api/admin/subscriptions/{businessId}
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptionService.Get(r.Context(), r.PathValue("businessId"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", sub)
}

// Activate handles POST /api/admin/subscriptions/{businessId}/activate
func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())

	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DurationMonths < 1 || req.DurationMonths > 36 {
		respond.Error(w, http.StatusBadRequest, "durationMonths must be between 1 and 36")
		return
	}

	sub, err := h.subscriptionService.Activate(r.Context(), &principal, r.PathValue("businessId"),
		req.DurationMonths, req.PlanName, req.Notes)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Subscription activated", sub)
}

// Extend handles POST /api/admin/subscriptions/{businessId}/extend
func (h *SubscriptionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())

	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DurationMonths < 1 || req.DurationMonths > 36 {
		respond.Error(w, http.StatusBadRequest, "durationMonths must be between 1 and 36")
		return
	}

	sub, err := h.subscriptionService.Extend(r.Context(), &principal, r.PathValue("businessId"), req.DurationMonths)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Subscription extended", sub)
}

// Deactivate handles POST /api/admin/subscriptions/{businessId}/deactivate
func (h *SubscriptionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())

	sub, err := h.subscriptionService.Deactivate(r.Context(), &principal, r.PathValue("businessId"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Subscription deactivated", sub)
}

// List handles GET /api/admin/subscriptions?status=&page=&limit=
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	subs, err := h.subscriptionService.List(r.Context(), r.URL.Query().Get("status"), page, limit)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", subs)
}

// Stats handles GET /api/admin/subscriptions/stats
func (h *SubscriptionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.subscriptionService.Stats(r.Context())
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", stats)
}
