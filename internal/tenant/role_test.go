package tenant_test

import (
	"testing"

	"github.com/ledgerline/ledgerline/internal/rbac"
	"github.com/ledgerline/ledgerline/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRoleInput_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		perms, err := tenant.RoleInput{
			Name:        "Payables clerk",
			Permissions: []string{"invoice:read", "invoice:create"},
		}.Validate()
		require.NoError(t, err)
		assert.Equal(t, 2, perms.Len())
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := tenant.RoleInput{Name: "  ", Permissions: []string{"invoice:read"}}.Validate()
		assert.ErrorIs(t, err, tenant.ErrRoleNameEmpty)
	})

	t.Run("no permissions", func(t *testing.T) {
		_, err := tenant.RoleInput{Name: "Empty"}.Validate()
		assert.ErrorIs(t, err, tenant.ErrPermissionsRequired)
	})

	t.Run("unknown permission", func(t *testing.T) {
		_, err := tenant.RoleInput{Name: "Bad", Permissions: []string{"invoice:read", "agents:write"}}.Validate()
		assert.ErrorIs(t, err, tenant.ErrUnknownPermission)
	})
}

func TestCheckUpdatable(t *testing.T) {
	for _, role := range rbac.SystemRoles() {
		assert.ErrorIs(t, tenant.CheckUpdatable(role), tenant.ErrRoleIsSystem, role.ID)
	}

	custom := rbac.Role{ID: "6f1c2f44-7d7e-4b7a-9a55-0d8f3f0e2a11", Name: "Clerk"}
	assert.NoError(t, tenant.CheckUpdatable(custom))

	// A custom role claiming a system id is still a system role.
	spoofed := rbac.Role{ID: rbac.Viewer, Name: "Viewer"}
	assert.ErrorIs(t, tenant.CheckUpdatable(spoofed), tenant.ErrRoleIsSystem)
}

func TestCheckDeletable(t *testing.T) {
	custom := rbac.Role{ID: "6f1c2f44-7d7e-4b7a-9a55-0d8f3f0e2a11", Name: "Clerk"}
	assert.NoError(t, tenant.CheckDeletable(custom))

	custom.UserCount = 1
	assert.ErrorIs(t, tenant.CheckDeletable(custom), tenant.ErrRoleHasUsers)

	viewer, ok := rbac.SystemRole(rbac.Viewer)
	require.True(t, ok)
	assert.ErrorIs(t, tenant.CheckDeletable(viewer), tenant.ErrRoleIsSystem)
}

func TestCheckDeletable_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		system := rapid.Bool().Draw(t, "system")
		count := rapid.IntRange(0, 50).Draw(t, "count")
		role := rbac.Role{ID: "custom", UserCount: count}
		if system {
			role = rapid.SampledFrom(rbac.SystemRoles()).Draw(t, "role")
			role.UserCount = count
		}

		err := tenant.CheckDeletable(role)
		if err == nil && (system || count > 0) {
			t.Fatalf("role %s with %d users should not be deletable", role.ID, count)
		}
		if err != nil && !system && count == 0 {
			t.Fatalf("unassigned custom role rejected: %v", err)
		}
	})
}

func TestCheckGrantable(t *testing.T) {
	accountant := &rbac.Context{
		Role:        rbac.Accountant,
		Permissions: rbac.NewPermissionSet(rbac.InvoiceRead, rbac.InvoiceCreate),
	}

	held := rbac.NewPermissionSet(rbac.InvoiceRead)
	assert.NoError(t, tenant.CheckGrantable(accountant, held))

	escalating := rbac.NewPermissionSet(rbac.InvoiceRead, rbac.InvoiceApprove)
	assert.ErrorIs(t, tenant.CheckGrantable(accountant, escalating), tenant.ErrPermissionNotHeld)

	assert.ErrorIs(t, tenant.CheckGrantable(nil, held), tenant.ErrPermissionNotHeld)
}

func TestCheckAssignable(t *testing.T) {
	tenantAdmin := &rbac.Context{Role: rbac.TenantAdmin, Rank: 80}

	platformAdmin, _ := rbac.SystemRole(rbac.PlatformAdmin)
	accountant, _ := rbac.SystemRole(rbac.Accountant)
	custom := rbac.Role{ID: "6f1c2f44-7d7e-4b7a-9a55-0d8f3f0e2a11"}

	assert.ErrorIs(t, tenant.CheckAssignable(tenantAdmin, platformAdmin), tenant.ErrRoleOutranks)
	assert.NoError(t, tenant.CheckAssignable(tenantAdmin, accountant))
	assert.NoError(t, tenant.CheckAssignable(tenantAdmin, custom))
}
