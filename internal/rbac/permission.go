// Package rbac provides role-based access control: the permission catalog,
// system and custom roles, and the HTTP gates that enforce them.
package rbac

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownPermission is returned when an identifier is not in the catalog.
var ErrUnknownPermission = errors.New("unknown permission")

// Permission is a resource:action capability identifier drawn from a closed
// catalog. The zero value and anything outside the catalog never grant access.
type Permission string

const (
	InvoiceRead    Permission = "invoice:read"
	InvoiceCreate  Permission = "invoice:create"
	InvoiceUpdate  Permission = "invoice:update"
	InvoiceDelete  Permission = "invoice:delete"
	InvoiceApprove Permission = "invoice:approve"

	LedgerRead    Permission = "ledger:read"
	LedgerPost    Permission = "ledger:post"
	LedgerReverse Permission = "ledger:reverse"

	FraudRead    Permission = "fraud:read"
	FraudResolve Permission = "fraud:resolve"

	ReportRead   Permission = "report:read"
	ReportExport Permission = "report:export"

	UserRead   Permission = "user:read"
	UserManage Permission = "user:manage"

	RoleRead   Permission = "role:read"
	RoleManage Permission = "role:manage"

	TenantRead   Permission = "tenant:read"
	TenantManage Permission = "tenant:manage"

	SettingsRead   Permission = "settings:read"
	SettingsManage Permission = "settings:manage"

	AuditRead Permission = "audit:read"

	OnboardingManage Permission = "onboarding:manage"

	WalletRead   Permission = "wallet:read"
	WalletManage Permission = "wallet:manage"
)

// Category groups permissions for display. Grouping never affects decisions.
type Category struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

var categories = []Category{
	{Name: "Invoices", Permissions: []Permission{InvoiceRead, InvoiceCreate, InvoiceUpdate, InvoiceDelete, InvoiceApprove}},
	{Name: "Ledger", Permissions: []Permission{LedgerRead, LedgerPost, LedgerReverse}},
	{Name: "Fraud", Permissions: []Permission{FraudRead, FraudResolve}},
	{Name: "Reports", Permissions: []Permission{ReportRead, ReportExport}},
	{Name: "Users", Permissions: []Permission{UserRead, UserManage}},
	{Name: "Roles", Permissions: []Permission{RoleRead, RoleManage}},
	{Name: "Tenants", Permissions: []Permission{TenantRead, TenantManage}},
	{Name: "Settings", Permissions: []Permission{SettingsRead, SettingsManage}},
	{Name: "Audit", Permissions: []Permission{AuditRead}},
	{Name: "Onboarding", Permissions: []Permission{OnboardingManage}},
	{Name: "Wallets", Permissions: []Permission{WalletRead, WalletManage}},
}

var catalog = func() map[Permission]struct{} {
	m := make(map[Permission]struct{})
	for _, c := range categories {
		for _, p := range c.Permissions {
			m[p] = struct{}{}
		}
	}
	return m
}()

// Valid reports whether p is in the catalog.
func (p Permission) Valid() bool {
	_, ok := catalog[p]
	return ok
}

func (p Permission) String() string { return string(p) }

// ParsePermission converts s to a catalog permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPermission, s)
	}
	return p, nil
}

// Categories returns the display grouping of the catalog.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i, c := range categories {
		out[i] = Category{Name: c.Name, Permissions: slices.Clone(c.Permissions)}
	}
	return out
}

// AllPermissions returns every catalog permission in display order.
func AllPermissions() []Permission {
	var out []Permission
	for _, c := range categories {
		out = append(out, c.Permissions...)
	}
	return out
}

// PermissionSet is an immutable set of catalog permissions.
type PermissionSet struct {
	m map[Permission]struct{}
}

// NewPermissionSet builds a set from ps. Identifiers outside the catalog are dropped.
func NewPermissionSet(ps ...Permission) PermissionSet {
	m := make(map[Permission]struct{}, len(ps))
	for _, p := range ps {
		if p.Valid() {
			m[p] = struct{}{}
		}
	}
	return PermissionSet{m: m}
}

// ParsePermissionSet is the strict counterpart of NewPermissionSet: any
// identifier outside the catalog is an error.
func ParsePermissionSet(ss []string) (PermissionSet, error) {
	ps := make([]Permission, 0, len(ss))
	for _, s := range ss {
		p, err := ParsePermission(s)
		if err != nil {
			return PermissionSet{}, err
		}
		ps = append(ps, p)
	}
	return NewPermissionSet(ps...), nil
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.m[p]
	return ok
}

func (s PermissionSet) Len() int { return len(s.m) }

// List returns the members in catalog display order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s.m))
	for _, p := range AllPermissions() {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Strings returns the members as plain identifiers, for storage.
func (s PermissionSet) Strings() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = string(p)
	}
	return out
}

func (s PermissionSet) Equal(other PermissionSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for p := range s.m {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	set, err := ParsePermissionSet(ss)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
