package database

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is a type alias for pgxpool.Pool for use in other packages.
type Pool = pgxpool.Pool

// DefaultApplicationName tags server connections in pg_stat_activity.
const DefaultApplicationName = "ledgerline"

type connectOptions struct {
	appName          string
	statementTimeout time.Duration
}

// ConnectOption adjusts how Connect configures the pool.
type ConnectOption func(*connectOptions)

// WithApplicationName overrides the application_name reported to Postgres,
// so owner-role pools can be told apart from tenant pools.
func WithApplicationName(name string) ConnectOption {
	return func(o *connectOptions) { o.appName = name }
}

// WithStatementTimeout bounds every statement run on the pool. Zero leaves
// the server default.
func WithStatementTimeout(d time.Duration) ConnectOption {
	return func(o *connectOptions) { o.statementTimeout = d }
}

// Connect opens a pool against databaseURL and verifies it with a ping.
// maxConns outside 1..MaxInt32 keeps the pgx default.
func Connect(ctx context.Context, databaseURL string, maxConns int, opts ...ConnectOption) (*pgxpool.Pool, error) {
	o := connectOptions{appName: DefaultApplicationName}
	for _, opt := range opts {
		opt(&o)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if maxConns > 0 && maxConns <= math.MaxInt32 {
		config.MaxConns = int32(maxConns) // #nosec G115 -- bounds checked above
	}
	params := config.ConnConfig.RuntimeParams
	params["application_name"] = o.appName
	if o.statementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(o.statementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %q: %w", o.appName, err)
	}

	return pool, nil
}
