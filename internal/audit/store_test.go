package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBatchInsert(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	sql, args, err := buildBatchInsert([]Event{
		{
			TenantID:     tenantID,
			UserID:       &userID,
			Action:       ActionRoleCreated,
			ResourceType: ResourceRole,
			Metadata:     map[string]any{"name": "AP Clerk"},
			Source:       SourceAPI,
		},
		{
			TenantID:     tenantID,
			Action:       ActionPresetsProvisioned,
			ResourceType: ResourceOnboarding,
			Source:       SourceSystem,
		},
	})
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO audit_events (tenant_id, user_id, action, resource_type, resource_id, metadata, source) VALUES "+
			"($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)",
		sql)
	require.Len(t, args, 2*eventColumnCount)
	assert.Equal(t, tenantID, args[0])
	assert.JSONEq(t, `{"name":"AP Clerk"}`, string(args[5].([]byte)))
	assert.Nil(t, args[eventColumnCount+5].([]byte), "nil metadata is stored as NULL")
	assert.Equal(t, SourceSystem, args[13])
}

func TestBuildBatchInsert_BadMetadata(t *testing.T) {
	_, _, err := buildBatchInsert([]Event{{Action: ActionRoleUpdated, Metadata: map[string]any{"ch": make(chan int)}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ActionRoleUpdated)
}

func TestInsertBatch_EmptyIsNoop(t *testing.T) {
	require.NoError(t, NewStore().InsertBatch(context.Background(), nil, nil))
}

func TestBuildListQuery(t *testing.T) {
	tenantID := uuid.New()
	resourceID := uuid.New()
	action := ActionUserCreated
	prefix := "onboarding."
	after := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		params    ListEventsParams
		wantWhere string
		wantArgs  int
	}{
		{
			name:      "tenant only",
			params:    ListEventsParams{TenantID: tenantID, Limit: 50},
			wantWhere: "WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2",
			wantArgs:  2,
		},
		{
			name:      "action",
			params:    ListEventsParams{TenantID: tenantID, Action: &action, Limit: 50},
			wantWhere: "WHERE tenant_id = $1 AND action = $2 ORDER BY created_at DESC LIMIT $3",
			wantArgs:  3,
		},
		{
			name:      "onboarding trail for one resource",
			params:    ListEventsParams{TenantID: tenantID, ActionPrefix: &prefix, ResourceID: &resourceID, After: &after, Limit: 10},
			wantWhere: "WHERE tenant_id = $1 AND starts_with(action, $2) AND resource_id = $3 AND created_at > $4 ORDER BY created_at DESC LIMIT $5",
			wantArgs:  5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildListQuery(tt.params)
			assert.Contains(t, sql, "SELECT id, tenant_id, user_id, action")
			assert.Contains(t, sql, tt.wantWhere)
			require.Len(t, args, tt.wantArgs)
			assert.Equal(t, tenantID, args[0])
			assert.Equal(t, tt.params.Limit, args[len(args)-1])
		})
	}
}
