package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/ledgerline/ledgerline/internal/auth"
)

// Event represents a single auditable action in the system.
type Event struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID // nil for system events
	Action       string     // e.g. "role.created", "onboarding.step_completed"
	ResourceType string     // e.g. "role", "user", "onboarding"
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	Source       string // "api", "system"
}

const (
	ActionTenantCreated   = "tenant.created"
	ActionTenantActivated = "tenant.activated"

	ActionUserCreated      = "user.created"
	ActionUserRoleAssigned = "user.role_assigned"

	ActionRoleCreated = "role.created"
	ActionRoleUpdated = "role.updated"
	ActionRoleDeleted = "role.deleted"

	ActionOnboardingStepCompleted = "onboarding.step_completed"
	ActionOnboardingCompleted     = "onboarding.completed"
	ActionPresetsProvisioned      = "onboarding.presets_provisioned"

	ActionAccessDenied = "access.denied"
)

const (
	ResourceTenant     = "tenant"
	ResourceUser       = "user"
	ResourceRole       = "role"
	ResourceOnboarding = "onboarding"
)

const (
	SourceAPI    = "api"
	SourceSystem = "system"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ActorIDFromContext extracts the authenticated user's UUID from the
// request context, returning nil if no identity is present or the
// user ID is not a valid UUID.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	identity := auth.GetIdentity(ctx)
	if identity == nil {
		return nil
	}
	uid, err := uuid.Parse(identity.UserID)
	if err != nil {
		return nil
	}
	return &uid
}

// ParseResourceID returns a pointer to the parsed id, or nil when id is not
// a UUID (system role ids, for instance).
func ParseResourceID(id string) *uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	return &parsed
}

// Record builds an API-sourced event for the tenant and actor found in ctx
// and hands it to l. Events without a valid tenant UUID are discarded.
func Record(ctx context.Context, l Logger, tenantID, action, resourceType, resourceID string, metadata map[string]any) {
	if l == nil {
		return
	}
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return
	}
	l.Log(ctx, Event{
		TenantID:     tid,
		UserID:       ActorIDFromContext(ctx),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   ParseResourceID(resourceID),
		Metadata:     metadata,
		Source:       SourceAPI,
	})
}
