package database_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTenantConnection_SetsVariable(t *testing.T) {
	dbURL := os.Getenv("LEDGERLINE_DATABASE_URL")
	if dbURL == "" {
		t.Skip("LEDGERLINE_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, dbURL, 5)
	require.NoError(t, err)
	defer pool.Close()

	err = database.WithTenantConnection(ctx, pool, "test-tenant-123", func(ctx context.Context, q database.Querier) error {
		var tenantID string
		scanErr := q.QueryRow(ctx, "SELECT current_setting('app.current_tenant_id')").Scan(&tenantID)
		if scanErr != nil {
			return scanErr
		}
		assert.Equal(t, "test-tenant-123", tenantID)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTenantTx_RollsBackOnError(t *testing.T) {
	dbURL := os.Getenv("LEDGERLINE_DATABASE_URL")
	if dbURL == "" {
		t.Skip("LEDGERLINE_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, dbURL, 5)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, "CREATE TEMP TABLE IF NOT EXISTS tx_probe (v INT)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = database.WithTenantTx(ctx, pool, "test-tenant-123", func(ctx context.Context, q database.Querier) error {
		var tenantID string
		require.NoError(t, q.QueryRow(ctx, "SELECT current_setting('app.current_tenant_id')").Scan(&tenantID))
		assert.Equal(t, "test-tenant-123", tenantID)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

// Verify the Querier interface is satisfied by pgx types.
var (
	_ database.Querier = (*pgx.Conn)(nil)
	_ database.Querier = (pgx.Tx)(nil)
)
