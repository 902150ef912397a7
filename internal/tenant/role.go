package tenant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerline/ledgerline/internal/rbac"
)

var (
	ErrRoleNotFound        = errors.New("role not found")
	ErrRoleNameEmpty       = errors.New("role name is required")
	ErrRoleDuplicate       = errors.New("role name already exists in tenant")
	ErrRoleIsSystem        = errors.New("system roles cannot be modified")
	ErrRoleHasUsers        = errors.New("role is assigned to users")
	ErrPermissionsRequired = errors.New("at least one permission is required")
	ErrUnknownPermission   = rbac.ErrUnknownPermission
	ErrPermissionNotHeld   = errors.New("cannot grant a permission you do not hold")
)

// RoleInput is the editable part of a custom role.
type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Validate checks the input and returns its permission set. Every
// permission must come from the catalog; nothing is silently dropped.
func (in RoleInput) Validate() (rbac.PermissionSet, error) {
	if strings.TrimSpace(in.Name) == "" {
		return rbac.PermissionSet{}, ErrRoleNameEmpty
	}
	if len(in.Permissions) == 0 {
		return rbac.PermissionSet{}, ErrPermissionsRequired
	}
	perms, err := rbac.ParsePermissionSet(in.Permissions)
	if err != nil {
		return rbac.PermissionSet{}, err
	}
	return perms, nil
}

// CheckUpdatable reports whether role may be edited.
func CheckUpdatable(role rbac.Role) error {
	if role.System || rbac.IsSystemRole(role.ID) {
		return fmt.Errorf("%w: %s", ErrRoleIsSystem, role.ID)
	}
	return nil
}

// CheckDeletable reports whether role may be deleted: it must be custom and
// unassigned.
func CheckDeletable(role rbac.Role) error {
	if err := CheckUpdatable(role); err != nil {
		return err
	}
	if role.UserCount > 0 {
		return fmt.Errorf("%w: %d users", ErrRoleHasUsers, role.UserCount)
	}
	return nil
}

// CheckGrantable reports whether actor holds every permission in perms.
// A role can never carry more than its author has.
func CheckGrantable(actor *rbac.Context, perms rbac.PermissionSet) error {
	for _, p := range perms.List() {
		if !actor.HasPermission(p) {
			return fmt.Errorf("%w: %s", ErrPermissionNotHeld, p)
		}
	}
	return nil
}
