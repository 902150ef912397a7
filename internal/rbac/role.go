package rbac

import (
	"slices"
	"strings"
)

// RoleID identifies a role. System roles use fixed identifiers; custom roles
// use the UUID assigned by the role store.
type RoleID string

const (
	PlatformAdmin  RoleID = "platform_admin"
	TenantAdmin    RoleID = "tenant_admin"
	FinanceManager RoleID = "finance_manager"
	Accountant     RoleID = "accountant"
	Auditor        RoleID = "auditor"
	Viewer         RoleID = "viewer"
)

// CustomRoleRank is the rank of every tenant-defined role.
const CustomRoleRank = 0

// Role is a named, ranked bundle of permissions.
type Role struct {
	ID          RoleID        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Rank        int           `json:"rank"`
	Permissions PermissionSet `json:"permissions"`
	System      bool          `json:"system"`
	CrossTenant bool          `json:"cross_tenant"`
	UserCount   int           `json:"user_count"`
}

// readOnly returns every *:read permission, optionally including audit:read.
func readOnly(includeAudit bool) []Permission {
	var out []Permission
	for _, p := range AllPermissions() {
		if !strings.HasSuffix(string(p), ":read") || (p == AuditRead && !includeAudit) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func without(ps []Permission, drop ...Permission) []Permission {
	return slices.DeleteFunc(slices.Clone(ps), func(p Permission) bool {
		return slices.Contains(drop, p)
	})
}

// systemRoles is ordered by rank, highest first.
var systemRoles = []Role{
	{
		ID:          PlatformAdmin,
		Name:        "Platform Admin",
		Description: "Operates the platform across every tenant.",
		System:      true,
		Rank:        100,
		Permissions: NewPermissionSet(AllPermissions()...),
		CrossTenant: true,
	},
	{
		ID:          TenantAdmin,
		Name:        "Tenant Admin",
		Description: "Full control of a single organization.",
		System:      true,
		Rank:        80,
		Permissions: NewPermissionSet(without(AllPermissions(), TenantManage)...),
	},
	{
		ID:          FinanceManager,
		Name:        "Finance Manager",
		Description: "Approves invoices, posts and reverses ledger entries, resolves fraud alerts.",
		System:      true,
		Rank:        60,
		Permissions: NewPermissionSet(append(readOnly(true),
			InvoiceCreate, InvoiceUpdate, InvoiceDelete, InvoiceApprove,
			LedgerPost, LedgerReverse,
			FraudResolve,
			ReportExport,
			WalletManage,
		)...),
	},
	{
		ID:          Accountant,
		Name:        "Accountant",
		Description: "Day-to-day bookkeeping.",
		System:      true,
		Rank:        40,
		Permissions: NewPermissionSet(append(readOnly(false),
			InvoiceCreate, InvoiceUpdate,
			LedgerPost,
			ReportExport,
		)...),
	},
	{
		ID:          Auditor,
		Name:        "Auditor",
		Description: "Read-only access including the audit trail.",
		System:      true,
		Rank:        20,
		Permissions: NewPermissionSet(append(readOnly(true), ReportExport)...),
	},
	{
		ID:          Viewer,
		Name:        "Viewer",
		Description: "Read-only access to business records.",
		System:      true,
		Rank:        10,
		Permissions: NewPermissionSet(readOnly(false)...),
	},
}

// SystemRoles returns the built-in roles, highest rank first.
func SystemRoles() []Role {
	return slices.Clone(systemRoles)
}

// SystemRole returns the built-in role with the given id.
func SystemRole(id RoleID) (Role, bool) {
	for _, r := range systemRoles {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// IsSystemRole reports whether id names a built-in role.
func IsSystemRole(id RoleID) bool {
	_, ok := SystemRole(id)
	return ok
}
