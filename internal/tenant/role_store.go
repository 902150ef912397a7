package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/ledgerline/ledgerline/internal/rbac"
)

const customRoleColumns = `r.id, r.name, r.description, r.permissions,
	(SELECT count(*) FROM users u WHERE u.role_id = r.id::text)`

// RoleStore manages the custom roles of the tenant bound to the querier's
// RLS session. System roles are served from the rbac catalog.
type RoleStore struct{}

// NewRoleStore creates a new role store.
func NewRoleStore() *RoleStore {
	return &RoleStore{}
}

func scanCustomRole(row pgx.Row) (rbac.Role, error) {
	var (
		role      rbac.Role
		id        string
		permBytes []byte
	)
	if err := row.Scan(&id, &role.Name, &role.Description, &permBytes, &role.UserCount); err != nil {
		return rbac.Role{}, err
	}
	var perms []string
	if err := json.Unmarshal(permBytes, &perms); err != nil {
		return rbac.Role{}, fmt.Errorf("unmarshaling permissions: %w", err)
	}
	role.ID = rbac.RoleID(id)
	role.Rank = rbac.CustomRoleRank
	// Stored sets were validated on write; NewPermissionSet drops anything
	// the catalog no longer knows.
	ps := make([]rbac.Permission, len(perms))
	for i, p := range perms {
		ps[i] = rbac.Permission(p)
	}
	role.Permissions = rbac.NewPermissionSet(ps...)
	return role, nil
}

// Create inserts a custom role. The tenant_id is read from the RLS session variable.
func (s *RoleStore) Create(ctx context.Context, q database.Querier, in RoleInput) (rbac.Role, error) {
	perms, err := in.Validate()
	if err != nil {
		return rbac.Role{}, err
	}
	permJSON, err := json.Marshal(perms)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("marshaling permissions: %w", err)
	}

	role, err := scanCustomRole(q.QueryRow(ctx,
		`INSERT INTO roles AS r (tenant_id, name, description, permissions)
		 VALUES (NULLIF(current_setting('app.current_tenant_id', true), '')::UUID, $1, $2, $3)
		 RETURNING `+customRoleColumns,
		in.Name, in.Description, permJSON,
	))
	if err != nil {
		if isUniqueViolation(err, "") {
			return rbac.Role{}, fmt.Errorf("%w: %s", ErrRoleDuplicate, in.Name)
		}
		return rbac.Role{}, fmt.Errorf("creating role: %w", err)
	}
	return role, nil
}

// GetByID resolves a system role id or a custom role UUID. RLS ensures
// tenant isolation for custom roles; user counts cover the current tenant.
func (s *RoleStore) GetByID(ctx context.Context, q database.Querier, id string) (rbac.Role, error) {
	if role, ok := rbac.SystemRole(rbac.RoleID(id)); ok {
		counts, err := s.userCounts(ctx, q)
		if err != nil {
			return rbac.Role{}, err
		}
		role.UserCount = counts[id]
		return role, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return rbac.Role{}, ErrRoleNotFound
	}

	role, err := scanCustomRole(q.QueryRow(ctx,
		`SELECT `+customRoleColumns+` FROM roles r WHERE r.id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, ErrRoleNotFound
		}
		return rbac.Role{}, fmt.Errorf("getting role: %w", err)
	}
	return role, nil
}

// List returns the system roles followed by the tenant's custom roles, each
// with the number of users holding it.
func (s *RoleStore) List(ctx context.Context, q database.Querier) ([]rbac.Role, error) {
	counts, err := s.userCounts(ctx, q)
	if err != nil {
		return nil, err
	}

	roles := rbac.SystemRoles()
	for i := range roles {
		roles[i].UserCount = counts[string(roles[i].ID)]
	}

	rows, err := q.Query(ctx, `SELECT `+customRoleColumns+` FROM roles r ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		role, err := scanCustomRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *RoleStore) userCounts(ctx context.Context, q database.Querier) (map[string]int, error) {
	rows, err := q.Query(ctx, `SELECT role_id, count(*) FROM users GROUP BY role_id`)
	if err != nil {
		return nil, fmt.Errorf("counting role users: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			roleID string
			n      int
		)
		if err := rows.Scan(&roleID, &n); err != nil {
			return nil, fmt.Errorf("scanning role count: %w", err)
		}
		counts[roleID] = n
	}
	return counts, rows.Err()
}

// Update replaces a custom role's name, description and permissions.
func (s *RoleStore) Update(ctx context.Context, q database.Querier, id string, in RoleInput) (rbac.Role, error) {
	existing, err := s.GetByID(ctx, q, id)
	if err != nil {
		return rbac.Role{}, err
	}
	if err := CheckUpdatable(existing); err != nil {
		return rbac.Role{}, err
	}
	perms, err := in.Validate()
	if err != nil {
		return rbac.Role{}, err
	}
	permJSON, err := json.Marshal(perms)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("marshaling permissions: %w", err)
	}

	role, err := scanCustomRole(q.QueryRow(ctx,
		`UPDATE roles AS r SET name = $2, description = $3, permissions = $4, updated_at = now()
		 WHERE r.id = $1
		 RETURNING `+customRoleColumns,
		id, in.Name, in.Description, permJSON,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, ErrRoleNotFound
		}
		if isUniqueViolation(err, "") {
			return rbac.Role{}, fmt.Errorf("%w: %s", ErrRoleDuplicate, in.Name)
		}
		return rbac.Role{}, fmt.Errorf("updating role: %w", err)
	}
	return role, nil
}

// Delete removes an unassigned custom role. The delete re-checks for users
// so an assignment racing with the call still blocks it.
func (s *RoleStore) Delete(ctx context.Context, q database.Querier, id string) error {
	existing, err := s.GetByID(ctx, q, id)
	if err != nil {
		return err
	}
	if err := CheckDeletable(existing); err != nil {
		return err
	}

	tag, err := q.Exec(ctx,
		`DELETE FROM roles r
		 WHERE r.id = $1::uuid
		   AND NOT EXISTS (SELECT 1 FROM users u WHERE u.role_id = $2::text)`,
		id, id,
	)
	if err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleHasUsers
	}
	return nil
}

// RoleLoader feeds every tenant's custom roles to the rbac engine. It must
// be backed by a pool that is not subject to RLS.
type RoleLoader struct {
	pool *pgxpool.Pool
}

// NewRoleLoader creates a loader reading through pool.
func NewRoleLoader(pool *pgxpool.Pool) *RoleLoader {
	return &RoleLoader{pool: pool}
}

// LoadRoles implements rbac.RoleLoader.
func (l *RoleLoader) LoadRoles(ctx context.Context) ([]rbac.RoleDef, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT tenant_id, id, name, description, permissions FROM roles ORDER BY tenant_id, name`)
	if err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	defer rows.Close()

	var defs []rbac.RoleDef
	for rows.Next() {
		var (
			def       rbac.RoleDef
			permBytes []byte
		)
		if err := rows.Scan(&def.TenantID, &def.ID, &def.Name, &def.Description, &permBytes); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		if err := json.Unmarshal(permBytes, &def.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshaling permissions for role %s: %w", def.ID, err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
