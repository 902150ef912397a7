package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// AuditLogger receives gate denials.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent)
}

// AuditEvent captures a denied authorization decision.
type AuditEvent struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	Source       string
}

// DecisionObserver counts decisions. *telemetry.Metrics satisfies it.
type DecisionObserver interface {
	ObserveDecision(permission string, allowed bool)
}

// Mode selects how a multi-permission gate combines its permissions.
type Mode int

const (
	RequireAll Mode = iota
	RequireAny
)

// GateOption configures gate behavior.
type GateOption func(*gateConfig)

type gateConfig struct {
	audit    AuditLogger
	metrics  DecisionObserver
	fallback http.Handler
}

// WithAuditLogger attaches an audit logger to log gate denials.
func WithAuditLogger(logger AuditLogger) GateOption {
	return func(c *gateConfig) {
		c.audit = logger
	}
}

// WithMetrics counts every gate decision.
func WithMetrics(m DecisionObserver) GateOption {
	return func(c *gateConfig) {
		c.metrics = m
	}
}

// WithFallback replaces the default 401/403 response for denied requests.
func WithFallback(h http.Handler) GateOption {
	return func(c *gateConfig) {
		c.fallback = h
	}
}

// RequirePermission serves next only when the actor holds p.
func RequirePermission(engine *Engine, p Permission, opts ...GateOption) func(http.Handler) http.Handler {
	return gate(engine, string(p), func(c *Context, _ *http.Request) bool {
		return c.HasPermission(p)
	}, opts)
}

// RequirePermissions serves next when the actor holds all (RequireAll) or
// at least one (RequireAny) of ps.
func RequirePermissions(engine *Engine, mode Mode, ps []Permission, opts ...GateOption) func(http.Handler) http.Handler {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	sep := "&"
	if mode == RequireAny {
		sep = "|"
	}
	return gate(engine, strings.Join(names, sep), func(c *Context, _ *http.Request) bool {
		if mode == RequireAny {
			return c.HasAnyPermission(ps...)
		}
		return c.HasAllPermissions(ps...)
	}, opts)
}

// RequireRole serves next when the actor's rank is at least required's.
func RequireRole(engine *Engine, required RoleID, opts ...GateOption) func(http.Handler) http.Handler {
	return gate(engine, "role:"+string(required), func(c *Context, _ *http.Request) bool {
		return c.HasHigherRole(required)
	}, opts)
}

// RequireTenant serves next when the actor may access the tenant named by
// the pathParam route wildcard.
func RequireTenant(engine *Engine, pathParam string, opts ...GateOption) func(http.Handler) http.Handler {
	return gate(engine, "tenant", func(c *Context, r *http.Request) bool {
		return c.CanAccessTenant(r.PathValue(pathParam))
	}, opts)
}

func gate(engine *Engine, label string, allowed func(*Context, *http.Request) bool, opts []GateOption) func(http.Handler) http.Handler {
	var gc gateConfig
	for _, opt := range opts {
		opt(&gc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := engine.ContextFromRequest(r.Context())
			ok := allowed(c, r)
			if gc.metrics != nil {
				gc.metrics.ObserveDecision(label, ok)
			}

			if ok {
				next.ServeHTTP(w, r)
				return
			}

			if c != nil && gc.audit != nil {
				gc.audit.Log(r.Context(), deniedEvent(c, label, r))
			}
			if gc.fallback != nil {
				gc.fallback.ServeHTTP(w, r)
				return
			}
			if c == nil {
				writeGateError(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			writeGateError(w, http.StatusForbidden, map[string]string{
				"error":    "forbidden",
				"required": label,
			})
		})
	}
}

func deniedEvent(c *Context, label string, r *http.Request) AuditEvent {
	evt := AuditEvent{
		Action: "access.denied",
		Metadata: map[string]any{
			"required": label,
			"role":     string(c.Role),
			"method":   r.Method,
			"path":     r.URL.Path,
		},
		Source: "api",
	}
	if tid, err := uuid.Parse(c.TenantID); err == nil {
		evt.TenantID = tid
	}
	if uid, err := uuid.Parse(c.UserID); err == nil {
		evt.UserID = &uid
	}
	return evt
}

func writeGateError(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Select returns primary when allowed, otherwise fallback. It is the gate
// for callers that are not HTTP handlers.
func Select[T any](allowed bool, primary, fallback T) T {
	if allowed {
		return primary
	}
	return fallback
}
