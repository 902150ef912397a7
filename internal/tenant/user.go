package tenant

import (
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/ledgerline/ledgerline/internal/rbac"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailInvalid   = errors.New("invalid email address")
	ErrEmailDuplicate = errors.New("email already exists in tenant")
	ErrRoleOutranks   = errors.New("cannot assign a role ranked above your own")
)

// User is a member of a tenant holding exactly one role.
type User struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name,omitempty"`
	RoleID      rbac.RoleID `json:"role_id"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ValidateEmail checks that an email address is syntactically valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrEmailInvalid)
	}
	_, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEmailInvalid, err)
	}
	return nil
}

// CheckAssignable reports whether actor may hand role to a user. Custom
// roles carry no rank, so only system roles are rank-checked.
func CheckAssignable(actor *rbac.Context, role rbac.Role) error {
	if !role.System {
		return nil
	}
	if !actor.HasHigherRole(role.ID) {
		return fmt.Errorf("%w: %s", ErrRoleOutranks, role.ID)
	}
	return nil
}
