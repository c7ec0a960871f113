package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/service"
)

// PermissionHandler administers the global permission catalog (super admin)
// and per-member grants (tenant admin).
type PermissionHandler struct {
	permissionService *service.PermissionService
	logger            *slog.Logger
}

// NewPermissionHandler creates a new permission handler
func NewPermissionHandler(permissionService *service.PermissionService, logger *slog.Logger) *PermissionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionHandler{permissionService: permissionService, logger: logger}
}

// ModuleRequest is the catalog module payload
type ModuleRequest struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// GrantRequest is the per-member grant/revoke payload
type GrantRequest struct {
	Module  string   `json:"module"`
	Actions []string `json:"actions"`
}

// ListModules handles GET /api/admin/permission-modules
func (h *PermissionHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.permissionService.ListModules(r.Context())
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", modules)
}

// CreateModule handles POST /api/admin/permission-modules
func (h *PermissionHandler) CreateModule(w http.ResponseWriter, r *http.Request) {
	var req ModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || len(req.Actions) == 0 {
		respond.Error(w, http.StatusBadRequest, "name and actions are required")
		return
	}
	if err := h.permissionService.CreateModule(r.Context(), req.Name, req.Actions); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusCreated, "Module created", nil)
}

// UpdateModule handles PUT /api/admin/permission-modules/{name}
func (h *PermissionHandler) UpdateModule(w http.ResponseWriter, r *http.Request) {
	var req ModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Actions) == 0 {
		respond.Error(w, http.StatusBadRequest, "actions are required")
		return
	}
	if err := h.permissionService.UpdateModule(r.Context(), r.PathValue("name"), req.Actions); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Module updated", nil)
}

// DeleteModule handles DELETE /api/admin/permission-modules/{name}
func (h *PermissionHandler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	if err := h.permissionService.DeleteModule(r.Context(), r.PathValue("name")); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Module deleted", nil)
}

// Catalog handles GET /api/permissions, the flat grantable catalog for tenant
// admins building grant requests
func (h *PermissionHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	perms, err := h.permissionService.Catalog(r.Context())
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", perms)
}

// ListGrants handles GET /api/members/{id}/permissions
func (h *PermissionHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	perms, err := h.permissionService.ListForMember(r.Context(), tenant.Business.ID, r.PathValue("id"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", perms)
}

// Grant handles POST /api/members/{id}/permissions
func (h *PermissionHandler) Grant(w http.ResponseWriter, r *http.Request) {
	tenant, principal, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Module == "" || len(req.Actions) == 0 {
		respond.Error(w, http.StatusBadRequest, "module and actions are required")
		return
	}

	err := h.permissionService.Grant(r.Context(), principal, tenant.Business.ID,
		r.PathValue("id"), req.Module, req.Actions)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Permissions granted", nil)
}

// Revoke handles DELETE /api/members/{id}/permissions
func (h *PermissionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	tenant, principal, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Module == "" || len(req.Actions) == 0 {
		respond.Error(w, http.StatusBadRequest, "module and actions are required")
		return
	}

	err := h.permissionService.Revoke(r.Context(), principal, tenant.Business.ID,
		r.PathValue("id"), req.Module, req.Actions)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Permissions revoked", nil)
}
