package presets

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/platform/database"
)

// TxRunner runs fn inside a transaction bound to tenantID's RLS session.
type TxRunner func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error

// DurationObserver records how long each preset took.
type DurationObserver interface {
	ObservePreset(preset string, seconds float64)
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithSeeders replaces the default seeders.
func WithSeeders(seeders ...Seeder) Option {
	return func(p *Provisioner) { p.seeders = seeders }
}

// WithTxRunner replaces the pool-backed transaction runner.
func WithTxRunner(run TxRunner) Option {
	return func(p *Provisioner) { p.run = run }
}

// WithProgressStore publishes snapshots to store as provisioning advances.
func WithProgressStore(store ProgressStore) Option {
	return func(p *Provisioner) { p.progress = store }
}

// WithMetrics records per-preset durations.
func WithMetrics(m DurationObserver) Option {
	return func(p *Provisioner) { p.metrics = m }
}

// WithLogger sets the provisioner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) { p.now = now }
}

// Provisioner runs the preset seeders for a tenant.
type Provisioner struct {
	seeders  []Seeder
	run      TxRunner
	progress ProgressStore
	metrics  DurationObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewProvisioner creates a provisioner over pool with the catalog's default
// seeders. Each preset runs in its own tenant transaction.
func NewProvisioner(pool *pgxpool.Pool, catalog *Catalog, opts ...Option) *Provisioner {
	p := &Provisioner{
		run: func(ctx context.Context, tenantID string, fn func(ctx context.Context, q database.Querier) error) error {
			return database.WithTenantTx(ctx, pool, tenantID, fn)
		},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.seeders == nil {
		p.seeders = DefaultSeeders(catalog, p.now)
	}
	return p
}

// Keys returns the preset keys in provisioning order.
func (p *Provisioner) Keys() []string {
	keys := make([]string, len(p.seeders))
	for i, s := range p.seeders {
		keys[i] = s.Key()
	}
	return keys
}

// Provision runs every seeder in order. A failing seeder is recorded with
// Success false and the rest still run. report, if non-nil, receives a
// snapshot after every preset. The error is non-nil only when ctx ends.
func (p *Provisioner) Provision(ctx context.Context, tenantID string, profile Profile, report func(Snapshot)) (map[string]Result, error) {
	total := len(p.seeders)
	results := make(map[string]Result, total)

	publish := func(snap Snapshot) {
		snap.UpdatedAt = p.now()
		if p.progress != nil {
			if err := p.progress.Save(ctx, tenantID, snap); err != nil {
				p.logger.Warn("saving provisioning progress failed", "tenant_id", tenantID, "error", err)
			}
		}
		if report != nil {
			report(snap)
		}
	}

	publish(Snapshot{TotalSteps: total, Results: maps.Clone(results)})

	for i, s := range p.seeders {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		started := p.now()
		var count int
		err := p.run(ctx, tenantID, func(ctx context.Context, q database.Querier) error {
			var seedErr error
			count, seedErr = s.Seed(ctx, q, tenantID, profile)
			return seedErr
		})
		if p.metrics != nil {
			p.metrics.ObservePreset(s.Key(), p.now().Sub(started).Seconds())
		}

		res := Result{Success: err == nil, RecordCount: count, Name: s.Name()}
		if err != nil {
			// The transaction rolled back, nothing was kept.
			res.RecordCount = 0
			res.Error = err.Error()
			p.logger.Error("preset failed", "tenant_id", tenantID, "preset", s.Key(), "error", err)
		} else {
			p.logger.Info("preset provisioned", "tenant_id", tenantID, "preset", s.Key(), "records", count)
		}
		results[s.Key()] = res

		publish(Snapshot{
			CurrentPreset: s.Name(),
			Percent:       (i + 1) * 100 / total,
			CurrentStep:   i + 1,
			TotalSteps:    total,
			Results:       maps.Clone(results),
			Done:          i+1 == total,
		})
	}

	return results, nil
}

// Failed lists the keys of unsuccessful results, sorted.
func Failed(results map[string]Result) []string {
	var keys []string
	for k, r := range results {
		if !r.Success {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
