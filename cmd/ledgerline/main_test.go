package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/ledgerline/internal/audit"
	"github.com/ledgerline/ledgerline/internal/platform/config"
	"github.com/ledgerline/ledgerline/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureLogger) Log(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) Close() error { return nil }

func TestRBACAuditAdapter_MapsEvent(t *testing.T) {
	capture := &captureLogger{}
	adapter := &rbacAuditAdapter{l: capture}

	tenantID := uuid.New()
	userID := uuid.New()
	adapter.Log(context.Background(), rbac.AuditEvent{
		TenantID:     tenantID,
		UserID:       &userID,
		Action:       audit.ActionAccessDenied,
		ResourceType: "permission",
		Metadata:     map[string]any{"permission": "audit:read"},
		Source:       audit.SourceAPI,
	})

	require.Len(t, capture.events, 1)
	got := capture.events[0]
	assert.Equal(t, tenantID, got.TenantID)
	assert.Equal(t, &userID, got.UserID)
	assert.Equal(t, audit.ActionAccessDenied, got.Action)
	assert.Equal(t, "permission", got.ResourceType)
	assert.Nil(t, got.ResourceID)
	assert.Equal(t, "audit:read", got.Metadata["permission"])
	assert.Equal(t, audit.SourceAPI, got.Source)
}

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (c *countingReloader) ReloadRoles(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestReloadLoop_TicksUntilCancelled(t *testing.T) {
	r := &countingReloader{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		reloadLoop(ctx, r, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reload loop did not stop after cancel")
	}
}

func TestReloadLoop_DisabledInterval(t *testing.T) {
	r := &countingReloader{}
	reloadLoop(context.Background(), r, 0)
	assert.Zero(t, r.calls.Load())
}

func TestAdminURL_FallsBackToMainURL(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.URL = "postgres://app@db/ledgerline"
	assert.Equal(t, cfg.Database.URL, adminURL(cfg))

	cfg.Database.AdminURL = "postgres://owner@db/ledgerline"
	assert.Equal(t, cfg.Database.AdminURL, adminURL(cfg))
}

func TestBuildProgressStore_MemoryWithoutRedis(t *testing.T) {
	cfg := &config.Config{}
	cfg.Onboarding.ProgressTTLSecs = 60

	store, closeFn, err := buildProgressStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.NotNil(t, store)
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "config.yaml", flag.DefValue)
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("LEDGERLINE_DATABASE_URL", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "--config", "does-not-exist.yaml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
}
