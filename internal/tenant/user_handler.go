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

// UserHandler handles user HTTP endpoints within a tenant.
type UserHandler struct {
	pool     *pgxpool.Pool
	store    *UserStore
	roles    *RoleStore
	engine   *rbac.Engine
	auditLog audit.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(pool *pgxpool.Pool, store *UserStore, roles *RoleStore, engine *rbac.Engine, auditLog audit.Logger) *UserHandler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &UserHandler{pool: pool, store: store, roles: roles, engine: engine, auditLog: auditLog}
}

func userError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrEmailInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrRoleNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRoleOutranks):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrEmailDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error(fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

// resolveAssignable loads roleID within the tenant and checks that the
// caller outranks it.
func (h *UserHandler) resolveAssignable(ctx context.Context, q database.Querier, roleID rbac.RoleID) error {
	role, err := h.roles.GetByID(ctx, q, string(roleID))
	if err != nil {
		return err
	}
	return CheckAssignable(h.engine.ContextFromRequest(ctx), role)
}

// HandleCreate creates a new user within the authenticated tenant.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var req struct {
		Email       string      `json:"email"`
		DisplayName string      `json:"display_name"`
		RoleID      rbac.RoleID `json:"role_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.RoleID == "" {
		req.RoleID = rbac.Viewer
	}

	var user *User
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		if err := h.resolveAssignable(ctx, q, req.RoleID); err != nil {
			return err
		}
		var createErr error
		user, createErr = h.store.Create(ctx, q, req.Email, req.DisplayName, req.RoleID)
		return createErr
	})
	if err != nil {
		userError(w, err, "user creation failed")
		return
	}

	audit.Record(r.Context(), h.auditLog, tenantID, audit.ActionUserCreated, audit.ResourceUser, user.ID,
		map[string]any{"email": user.Email, "role_id": string(user.RoleID)})
	writeJSON(w, http.StatusCreated, user)
}

// HandleGet returns a user by ID.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var user *User
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var getErr error
		user, getErr = h.store.GetByID(ctx, q, id)
		return getErr
	})
	if err != nil {
		userError(w, err, "fetching user failed")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleList returns all users in the authenticated tenant.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var users []User
	err := database.WithTenantConnection(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var listErr error
		users, listErr = h.store.List(ctx, q)
		return listErr
	})
	if err != nil {
		userError(w, err, "listing users failed")
		return
	}

	if users == nil {
		users = []User{}
	}

	writeJSON(w, http.StatusOK, users)
}

// HandleAssignRole replaces a user's role.
func (h *UserHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	userID := r.PathValue("id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	var req struct {
		RoleID rbac.RoleID `json:"role_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.RoleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role_id is required"})
		return
	}

	var (
		user     *User
		previous rbac.RoleID
	)
	err := database.WithTenantTx(r.Context(), h.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		existing, err := h.store.GetByID(ctx, q, userID)
		if err != nil {
			return err
		}
		previous = existing.RoleID
		if err := h.resolveAssignable(ctx, q, req.RoleID); err != nil {
			return err
		}
		user, err = h.store.AssignRole(ctx, q, userID, req.RoleID)
		return err
	})
	if err != nil {
		userError(w, err, "role assignment failed")
		return
	}

	audit.Record(r.Context(), h.auditLog, tenantID, audit.ActionUserRoleAssigned, audit.ResourceUser, user.ID,
		map[string]any{"role_id": string(user.RoleID), "previous_role_id": string(previous)})
	writeJSON(w, http.StatusOK, user)
}
