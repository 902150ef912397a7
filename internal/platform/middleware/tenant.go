package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/ledgerline/ledgerline/internal/auth"
)

type tenantContextKey struct{}

// TenantContext copies the tenant of the authenticated identity into the
// request context, where RLS-scoped stores pick it up. Identities without a
// tenant, or whose tenant is not a UUID, leave the context untouched; the
// RLS setting is cast to uuid and would fail every query.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		if identity != nil && uuid.Validate(identity.TenantID) == nil {
			annotateTenant(r.Context(), identity.TenantID)
			r = r.WithContext(WithTenantID(r.Context(), identity.TenantID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTenantContext rejects requests that reach a tenant-scoped route
// without a tenant, such as platform sessions.
func RequireTenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetTenantID(r.Context()) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "tenant context required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithTenantID returns a copy of ctx carrying tenantID.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// GetTenantID returns the tenant set by TenantContext, or "".
func GetTenantID(ctx context.Context) string {
	id, _ := ctx.Value(tenantContextKey{}).(string)
	return id
}
