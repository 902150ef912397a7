package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/ledgerline/ledgerline/internal/rbac"
)

const userColumns = `id, tenant_id, email, display_name, role_id, created_at`

// UserStore handles user database operations within a tenant.
type UserStore struct{}

// NewUserStore creates a new user store.
func NewUserStore() *UserStore {
	return &UserStore{}
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.RoleID = rbac.RoleID(role)
	return &u, nil
}

// Create inserts a new user. The tenant_id is read from the RLS session
// variable. An empty roleID falls back to viewer.
func (s *UserStore) Create(ctx context.Context, q database.Querier, email, displayName string, roleID rbac.RoleID) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if roleID == "" {
		roleID = rbac.Viewer
	}

	u, err := scanUser(q.QueryRow(ctx,
		`INSERT INTO users (tenant_id, email, display_name, role_id)
		 VALUES (NULLIF(current_setting('app.current_tenant_id', true), '')::UUID, $1, $2, $3)
		 RETURNING `+userColumns,
		email, displayName, string(roleID),
	))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: %s", ErrEmailDuplicate, email)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID. RLS ensures tenant isolation.
func (s *UserStore) GetByID(ctx context.Context, q database.Querier, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// List returns all users visible through RLS (current tenant).
func (s *UserStore) List(ctx context.Context, q database.Querier) ([]User, error) {
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// AssignRole replaces the user's role. Callers check that the role exists.
func (s *UserStore) AssignRole(ctx context.Context, q database.Querier, userID string, roleID rbac.RoleID) (*User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrUserNotFound
	}
	u, err := scanUser(q.QueryRow(ctx,
		`UPDATE users SET role_id = $2 WHERE id = $1 RETURNING `+userColumns,
		userID, string(roleID),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("assigning role: %w", err)
	}
	return u, nil
}
