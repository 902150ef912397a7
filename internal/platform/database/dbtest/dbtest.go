// Package dbtest starts throwaway Postgres instances for integration tests.
package dbtest

import (
	"context"
	"net/url"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	appRole     = "ledgerline_app"
	appPassword = "ledgerline_app"
)

// MigrationsURL is the file:// source of the repository's migrations.
func MigrationsURL() string {
	_, file, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
	return "file://" + filepath.ToSlash(dir)
}

// Setup starts a migrated Postgres container. owner connects as the
// superuser and bypasses RLS; app connects as a plain role so RLS policies
// apply. Both pools and the container are released through t.Cleanup.
func Setup(t testing.TB) (owner, app *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ledgerline_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(connStr, MigrationsURL()))

	owner, err = database.Connect(ctx, connStr, 5)
	require.NoError(t, err)
	t.Cleanup(owner.Close)

	_, err = owner.Exec(ctx, `
		CREATE ROLE `+appRole+` LOGIN PASSWORD '`+appPassword+`';
		GRANT USAGE ON SCHEMA public TO `+appRole+`;
		GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO `+appRole+`;
	`)
	require.NoError(t, err)

	u, err := url.Parse(connStr)
	require.NoError(t, err)
	u.User = url.UserPassword(appRole, appPassword)

	app, err = database.Connect(ctx, u.String(), 5)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	return owner, app
}

// CreateTenant inserts a tenant row through owner and returns its id.
func CreateTenant(t testing.TB, owner *pgxpool.Pool, name, slug string) string {
	t.Helper()
	var id string
	err := owner.QueryRow(context.Background(),
		"INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING id", name, slug,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
