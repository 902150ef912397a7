package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ledgerline/ledgerline/internal/auth"
)

// ErrSystemRoleShadowed is returned when a custom role reuses a system role id.
var ErrSystemRoleShadowed = errors.New("custom role cannot use a system role id")

// RoleDef is a persisted custom role, as produced by a RoleLoader.
type RoleDef struct {
	TenantID    string
	ID          string
	Name        string
	Description string
	Permissions []string
}

// RoleLoader loads custom role definitions from a backing store.
type RoleLoader interface {
	LoadRoles(ctx context.Context) ([]RoleDef, error)
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithRoleLoader sets a RoleLoader for DB-backed custom roles.
func WithRoleLoader(loader RoleLoader) EngineOption {
	return func(e *Engine) {
		e.loader = loader
	}
}

// Engine resolves role ids to roles and builds authorization contexts.
// System roles are fixed; custom roles are cached per tenant.
type Engine struct {
	loader RoleLoader
	custom map[string]map[RoleID]Role // tenantID → roleID → role
	mu     sync.RWMutex
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		custom: make(map[string]map[RoleID]Role),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CustomRoleFromDef validates def against the catalog.
func CustomRoleFromDef(def RoleDef) (Role, error) {
	perms, err := ParsePermissionSet(def.Permissions)
	if err != nil {
		return Role{}, fmt.Errorf("role %s: %w", def.ID, err)
	}
	return Role{
		ID:          RoleID(def.ID),
		Name:        def.Name,
		Description: def.Description,
		Rank:        CustomRoleRank,
		Permissions: perms,
	}, nil
}

// ReloadRoles replaces the custom role cache with the loader's view.
// If loading fails, the existing cache is preserved. A definition carrying
// permissions outside the catalog is skipped and reported.
func (e *Engine) ReloadRoles(ctx context.Context) error {
	if e.loader == nil {
		return fmt.Errorf("no role loader configured")
	}

	defs, err := e.loader.LoadRoles(ctx)
	if err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}

	next := make(map[string]map[RoleID]Role)
	var firstErr error
	for _, d := range defs {
		role, err := CustomRoleFromDef(d)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		tenant := next[d.TenantID]
		if tenant == nil {
			tenant = make(map[RoleID]Role)
			next[d.TenantID] = tenant
		}
		tenant[role.ID] = role
	}

	e.mu.Lock()
	e.custom = next
	e.mu.Unlock()

	return firstErr
}

// RegisterRole caches a custom role for a tenant. System role ids cannot be
// shadowed, and custom roles are always rank 0 and tenant-scoped.
func (e *Engine) RegisterRole(tenantID string, role Role) error {
	if IsSystemRole(role.ID) {
		return fmt.Errorf("%w: %s", ErrSystemRoleShadowed, role.ID)
	}
	role.System = false
	role.CrossTenant = false
	role.Rank = CustomRoleRank

	e.mu.Lock()
	defer e.mu.Unlock()
	tenant := e.custom[tenantID]
	if tenant == nil {
		tenant = make(map[RoleID]Role)
		e.custom[tenantID] = tenant
	}
	tenant[role.ID] = role
	return nil
}

// RemoveRole drops a cached custom role.
func (e *Engine) RemoveRole(tenantID string, id RoleID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.custom[tenantID], id)
}

// ResolveRole finds a system role, or a custom role of tenantID.
func (e *Engine) ResolveRole(tenantID string, id RoleID) (Role, bool) {
	if role, ok := SystemRole(id); ok {
		return role, true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	role, ok := e.custom[tenantID][id]
	return role, ok
}

// CustomRoles returns the cached custom roles of a tenant.
func (e *Engine) CustomRoles(tenantID string) []Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Role, 0, len(e.custom[tenantID]))
	for _, r := range e.custom[tenantID] {
		out = append(out, r)
	}
	return out
}

// ContextFor builds the authorization context of identity. A nil identity
// yields a nil Context. An unresolvable role yields an authenticated
// context without permissions.
func (e *Engine) ContextFor(identity *auth.Identity) *Context {
	if identity == nil {
		return nil
	}
	c := &Context{
		UserID:   identity.UserID,
		TenantID: identity.TenantID,
		Role:     RoleID(identity.Role),
	}
	if role, ok := e.ResolveRole(identity.TenantID, c.Role); ok {
		c.Rank = role.Rank
		c.CrossTenant = role.CrossTenant
		c.Permissions = role.Permissions
	}
	return c
}

// ContextFromRequest is ContextFor applied to the identity stored in ctx.
func (e *Engine) ContextFromRequest(ctx context.Context) *Context {
	return e.ContextFor(auth.GetIdentity(ctx))
}
