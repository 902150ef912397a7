package rbac

// Context is the authorization state of one session: the actor's single
// role, its tenant, and the permissions that role grants at evaluation time.
// A nil *Context is the unauthenticated session and every predicate on it
// returns false.
type Context struct {
	UserID      string
	TenantID    string
	Role        RoleID
	Rank        int
	CrossTenant bool
	Permissions PermissionSet
}

// HasPermission reports whether the actor's role grants p. Identifiers
// outside the catalog are never granted.
func (c *Context) HasPermission(p Permission) bool {
	if c == nil {
		return false
	}
	return c.Permissions.Has(p)
}

// HasAnyPermission is false for an empty list.
func (c *Context) HasAnyPermission(ps ...Permission) bool {
	if c == nil {
		return false
	}
	for _, p := range ps {
		if c.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions is vacuously true for an empty list, except on a nil
// Context.
func (c *Context) HasAllPermissions(ps ...Permission) bool {
	if c == nil {
		return false
	}
	for _, p := range ps {
		if !c.Permissions.Has(p) {
			return false
		}
	}
	return true
}

// HasHigherRole reports whether the actor's rank is at least the rank of
// required. Only system roles are ranked, so any other required role is false.
func (c *Context) HasHigherRole(required RoleID) bool {
	if c == nil {
		return false
	}
	role, ok := SystemRole(required)
	if !ok {
		return false
	}
	return c.Rank >= role.Rank
}

// CanAccessTenant reports whether the actor may act inside tenantID.
func (c *Context) CanAccessTenant(tenantID string) bool {
	if c == nil {
		return false
	}
	if c.CrossTenant {
		return true
	}
	return tenantID != "" && c.TenantID == tenantID
}
