package tenant_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ledgerline/ledgerline/internal/auth"
	"github.com/ledgerline/ledgerline/internal/platform/database/dbtest"
	"github.com/ledgerline/ledgerline/internal/platform/middleware"
	"github.com/ledgerline/ledgerline/internal/rbac"
	"github.com/ledgerline/ledgerline/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const actorID = "3b0e7a52-4c55-4f6b-8f0e-2f1f1c1d9a01"

func asRole(req *http.Request, tenantID string, role rbac.RoleID) *http.Request {
	ctx := auth.WithIdentity(req.Context(), &auth.Identity{
		UserID:    actorID,
		TenantID:  tenantID,
		Role:      string(role),
		TokenType: auth.TokenTypeAccess,
	})
	return req.WithContext(middleware.WithTenantID(ctx, tenantID))
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	owner, _ := dbtest.Setup(t)
	handler := tenant.NewHandler(tenant.NewStore(owner), nil)

	var created tenant.Tenant
	t.Run("Create", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants",
			strings.NewReader(`{"name": "Acme Books", "slug": "acme-books"}`))
		w := serve(handler.HandleCreate, req)

		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.Equal(t, "acme-books", created.Slug)
	})

	t.Run("Create_InvalidSlug", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants",
			strings.NewReader(`{"name": "Bad", "slug": "A B"}`))
		assert.Equal(t, http.StatusBadRequest, serve(handler.HandleCreate, req).Code)
	})

	t.Run("Create_DuplicateSlug", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants",
			strings.NewReader(`{"name": "Again", "slug": "acme-books"}`))
		assert.Equal(t, http.StatusConflict, serve(handler.HandleCreate, req).Code)
	})

	t.Run("Me", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodGet, "/api/v1/tenants/me", nil), created.ID, rbac.Viewer)
		w := serve(handler.HandleMe, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got tenant.Tenant
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, created.ID, got.ID)
		assert.True(t, got.DomainLocked())
	})

	t.Run("Me_NoTenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/me", nil)
		assert.Equal(t, http.StatusBadRequest, serve(handler.HandleMe, req).Code)
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/x", nil)
		req.SetPathValue("id", "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, http.StatusNotFound, serve(handler.HandleGet, req).Code)
	})

	t.Run("List", func(t *testing.T) {
		w := serve(handler.HandleList, httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var tenants []tenant.Tenant
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tenants))
		assert.Len(t, tenants, 1)
	})
}

func TestRoleAndUserHandlers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	owner, app := dbtest.Setup(t)
	tenantID := dbtest.CreateTenant(t, owner, "Handler Org", "handler-org")

	engine := rbac.NewEngine(rbac.WithRoleLoader(tenant.NewRoleLoader(owner)))
	roleStore := tenant.NewRoleStore()
	roles := tenant.NewRoleHandler(app, roleStore, engine, nil)
	users := tenant.NewUserHandler(app, tenant.NewUserStore(), roleStore, engine, nil)

	var clerk rbac.Role
	t.Run("CreateRole", func(t *testing.T) {
		body := `{"name": "Payables clerk", "permissions": ["invoice:read", "invoice:create"]}`
		req := asRole(httptest.NewRequest(http.MethodPost, "/api/v1/roles", strings.NewReader(body)), tenantID, rbac.TenantAdmin)
		w := serve(roles.HandleCreate, req)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clerk))
		assert.Equal(t, "Payables clerk", clerk.Name)

		// The engine was reloaded after the mutation.
		_, ok := engine.ResolveRole(tenantID, clerk.ID)
		assert.True(t, ok)
	})

	t.Run("CreateRole_Escalation", func(t *testing.T) {
		body := `{"name": "Sneaky", "permissions": ["tenant:manage"]}`
		req := asRole(httptest.NewRequest(http.MethodPost, "/api/v1/roles", strings.NewReader(body)), tenantID, rbac.TenantAdmin)
		assert.Equal(t, http.StatusForbidden, serve(roles.HandleCreate, req).Code)
	})

	t.Run("CreateRole_UnknownPermission", func(t *testing.T) {
		body := `{"name": "Bad", "permissions": ["agents:write"]}`
		req := asRole(httptest.NewRequest(http.MethodPost, "/api/v1/roles", strings.NewReader(body)), tenantID, rbac.TenantAdmin)
		assert.Equal(t, http.StatusBadRequest, serve(roles.HandleCreate, req).Code)
	})

	t.Run("UpdateSystemRole", func(t *testing.T) {
		body := `{"name": "Viewer", "permissions": ["invoice:read"]}`
		req := asRole(httptest.NewRequest(http.MethodPut, "/api/v1/roles/viewer", strings.NewReader(body)), tenantID, rbac.TenantAdmin)
		req.SetPathValue("id", string(rbac.Viewer))
		assert.Equal(t, http.StatusForbidden, serve(roles.HandleUpdate, req).Code)
	})

	var userID string
	t.Run("CreateUser_WithCustomRole", func(t *testing.T) {
		body := `{"email": "bob@acme.test", "display_name": "Bob", "role_id": "` + string(clerk.ID) + `"}`
		req := asRole(httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(body)), tenantID, rbac.TenantAdmin)
		w := serve(users.HandleCreate, req)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var u tenant.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
		assert.Equal(t, clerk.ID, u.RoleID)
		userID = u.ID
	})

	t.Run("DeleteRole_Assigned", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodDelete, "/api/v1/roles/x", nil), tenantID, rbac.TenantAdmin)
		req.SetPathValue("id", string(clerk.ID))
		assert.Equal(t, http.StatusConflict, serve(roles.HandleDelete, req).Code)
	})

	t.Run("AssignRole_Outranked", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodPut, "/api/v1/users/x/role",
			strings.NewReader(`{"role_id": "platform_admin"}`)), tenantID, rbac.TenantAdmin)
		req.SetPathValue("id", userID)
		assert.Equal(t, http.StatusForbidden, serve(users.HandleAssignRole, req).Code)
	})

	t.Run("AssignRole_UnknownRole", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodPut, "/api/v1/users/x/role",
			strings.NewReader(`{"role_id": "janitor"}`)), tenantID, rbac.TenantAdmin)
		req.SetPathValue("id", userID)
		assert.Equal(t, http.StatusNotFound, serve(users.HandleAssignRole, req).Code)
	})

	t.Run("AssignRole_ThenDelete", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodPut, "/api/v1/users/x/role",
			strings.NewReader(`{"role_id": "accountant"}`)), tenantID, rbac.TenantAdmin)
		req.SetPathValue("id", userID)
		require.Equal(t, http.StatusOK, serve(users.HandleAssignRole, req).Code)

		del := asRole(httptest.NewRequest(http.MethodDelete, "/api/v1/roles/x", nil), tenantID, rbac.TenantAdmin)
		del.SetPathValue("id", string(clerk.ID))
		assert.Equal(t, http.StatusNoContent, serve(roles.HandleDelete, del).Code)

		_, ok := engine.ResolveRole(tenantID, clerk.ID)
		assert.False(t, ok)
	})

	t.Run("ListRoles", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil), tenantID, rbac.Viewer)
		w := serve(roles.HandleList, req)

		require.Equal(t, http.StatusOK, w.Code)
		var list []rbac.Role
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		assert.Len(t, list, len(rbac.SystemRoles()))
	})

	t.Run("ListUsers", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), tenantID, rbac.Viewer)
		w := serve(users.HandleList, req)

		require.Equal(t, http.StatusOK, w.Code)
		var list []tenant.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, rbac.Accountant, list[0].RoleID)
	})
}

func TestRoleHandler_Permissions(t *testing.T) {
	h := tenant.NewRoleHandler(nil, nil, rbac.NewEngine(), nil)
	w := serve(h.HandlePermissions, httptest.NewRequest(http.MethodGet, "/api/v1/permissions", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Categories []struct {
			Name        string   `json:"name"`
			Permissions []string `json:"permissions"`
		} `json:"categories"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Permissions, len(rbac.AllPermissions()))
	assert.Equal(t, "Invoices", body.Categories[0].Name)
	assert.Contains(t, body.Permissions, "onboarding:manage")
}
