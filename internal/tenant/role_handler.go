package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/audit"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/ledgerline/ledgerline/internal/platform/middleware"
	"github.com/ledgerline/ledgerline/internal/rbac"
)

// RoleEngine is the part of the rbac engine the role handler needs: the
// caller's context for grant checks, and a reload after mutations.
type RoleEngine interface {
	ContextFromRequest(ctx context.Context) *rbac.Context
	ReloadRoles(ctx context.Context) error
}

// RoleHandler handles role HTTP endpoints within a tenant.
type RoleHandler struct {
	pool     *pgxpool.Pool
	store    *RoleStore
	engine   RoleEngine
	auditLog audit.Logger
}

// NewRoleHandler creates a new role handler.
func NewRoleHandler(pool *pgxpool.Pool, store *RoleStore, engine RoleEngine, auditLog audit.Logger) *RoleHandler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &RoleHandler{pool: pool, store: store, engine: engine, auditLog: auditLog}
}

// roleError maps role store errors to HTTP responses.
func roleError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrRoleNameEmpty),
		errors.Is(err, ErrPermissionsRequired),
		errors.Is(err, ErrUnknownPermission):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRoleNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRoleIsSystem), errors.Is(err, ErrPermissionNotHeld):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRoleDuplicate), errors.Is(err, ErrRoleHasUsers):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error(fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

// checkGrantable validates in and rejects permissions the caller lacks.
func (h *RoleHandler) checkGrantable(ctx context.Context, in RoleInput) error {
	perms, err := in.Validate()
	if err != nil {
		return err
	}
	return CheckGrantable(h.engine.ContextFromRequest(ctx), perms)
}

func (h *RoleHandler) reload(ctx context.Context, op string) {
	if err := h.engine.ReloadRoles(ctx); err != nil {
		slog.Error("failed to reload RBAC roles", "after", op, "error", err)
	}
}

// HandleCreate creates a new custom role within the authenticated tenant.
func (h *RoleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var req RoleInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.checkGrantable(r.Context(), req); err != nil {
		roleError(w, err, "role creation failed")
		return
	}

	var role rbac.Role
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var createErr error
		role, createErr = h.store.Create(ctx, q, req)
		return createErr
	})
	if err != nil {
		roleError(w, err, "role creation failed")
		return
	}

	h.reload(r.Context(), "create")
	audit.Record(r.Context(), h.auditLog, tenantID, audit.ActionRoleCreated, audit.ResourceRole, string(role.ID),
		map[string]any{"name": role.Name, "permissions": role.Permissions.Strings()})
	writeJSON(w, http.StatusCreated, role)
}

// HandleList returns system roles and the tenant's custom roles.
func (h *RoleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var roles []rbac.Role
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var listErr error
		roles, listErr = h.store.List(ctx, q)
		return listErr
	})
	if err != nil {
		roleError(w, err, "listing roles failed")
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

// HandleUpdate replaces a custom role's name, description and permissions.
func (h *RoleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	roleID := r.PathValue("id")
	if roleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing role id"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var req RoleInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.checkGrantable(r.Context(), req); err != nil {
		roleError(w, err, "role update failed")
		return
	}

	var role rbac.Role
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var updateErr error
		role, updateErr = h.store.Update(ctx, q, roleID, req)
		return updateErr
	})
	if err != nil {
		roleError(w, err, "role update failed")
		return
	}

	h.reload(r.Context(), "update")
	audit.Record(r.Context(), h.auditLog, tenantID, audit.ActionRoleUpdated, audit.ResourceRole, string(role.ID),
		map[string]any{"name": role.Name, "permissions": role.Permissions.Strings()})
	writeJSON(w, http.StatusOK, role)
}

// HandleDelete deletes an unassigned custom role.
func (h *RoleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	if roleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing role id"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		return h.store.Delete(ctx, q, roleID)
	})
	if err != nil {
		roleError(w, err, "role deletion failed")
		return
	}

	h.reload(r.Context(), "delete")
	audit.Record(r.Context(), h.auditLog, tenantID, audit.ActionRoleDeleted, audit.ResourceRole, roleID, nil)
	w.WriteHeader(http.StatusNoContent)
}

type permissionCatalog struct {
	Categories  []rbac.Category   `json:"categories"`
	Permissions []rbac.Permission `json:"permissions"`
}

// HandlePermissions returns the permission catalog grouped by category.
func (h *RoleHandler) HandlePermissions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, permissionCatalog{
		Categories:  rbac.Categories(),
		Permissions: rbac.AllPermissions(),
	})
}
