package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/security/middleware"
	"github.com/queaccounting/backend/internal/service"
)

// MemberHandler manages the members of the current business
type MemberHandler struct {
	memberService *service.MemberService
	logger        *slog.Logger
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(memberService *service.MemberService, logger *slog.Logger) *MemberHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberHandler{memberService: memberService, logger: logger}
}

// InviteRequest is the member invitation payload
type InviteRequest struct {
	Email  string `json:"email"`
	RoleID string `json:"roleId"`
}

// ToggleRequest is the member status payload
type ToggleRequest struct {
	IsActive bool `json:"isActive"`
}

func tenantAndPrincipal(w http.ResponseWriter, r *http.Request) (*middleware.Tenant, *domain.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Authentication required")
		return nil, nil, false
	}
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusBadRequest, "No business context resolved")
		return nil, nil, false
	}
	return tenant, &principal, true
}

// List handles GET /api/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	members, err := h.memberService.List(r.Context(), tenant.Business.ID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", members)
}

// Invite handles POST /api/members
func (h *MemberHandler) Invite(w http.ResponseWriter, r *http.Request) {
	tenant, principal, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.RoleID == "" {
		respond.Error(w, http.StatusBadRequest, "email and roleId are required")
		return
	}

	membership, err := h.memberService.Invite(r.Context(), principal, tenant.Business.ID,
		req.Email, req.RoleID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusCreated, "Member invited", membership)
}

// SetStatus handles PATCH /api/members/{id}/status
func (h *MemberHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	tenant, principal, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.memberService.SetActive(r.Context(), principal, tenant.Business.ID,
		r.PathValue("id"), req.IsActive)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Member status updated", nil)
}

// Remove handles DELETE /api/members/{id}
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	tenant, principal, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	err := h.memberService.Remove(r.Context(), principal, tenant.Business.ID, r.PathValue("id"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Member removed", nil)
}

// Roles handles GET /api/roles, the assignable roles of the current business
func (h *MemberHandler) Roles(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	roles, err := h.memberService.Roles(r.Context(), tenant.Business.ID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", roles)
}
