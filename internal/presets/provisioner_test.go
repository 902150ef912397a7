package presets_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/ledgerline/ledgerline/internal/presets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSeeder struct {
	key, name string
	count     int
	err       error
	calls     *int
}

func (f fakeSeeder) Key() string  { return f.key }
func (f fakeSeeder) Name() string { return f.name }

func (f fakeSeeder) Seed(context.Context, database.Querier, string, presets.Profile) (int, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.count, f.err
}

func directRunner(ctx context.Context, _ string, fn func(context.Context, database.Querier) error) error {
	return fn(ctx, nil)
}

type recordingDurations struct {
	mu     sync.Mutex
	preset []string
}

func (r *recordingDurations) ObservePreset(preset string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preset = append(r.preset, preset)
}

func TestProvisioner_FailingSeederDoesNotStopOthers(t *testing.T) {
	var coaCalls int
	metrics := &recordingDurations{}
	store := presets.NewMemoryProgressStore(0)

	p := presets.NewProvisioner(nil, nil,
		presets.WithTxRunner(directRunner),
		presets.WithMetrics(metrics),
		presets.WithProgressStore(store),
		presets.WithSeeders(
			fakeSeeder{key: presets.KeyCurrency, name: "Currency", count: 3},
			fakeSeeder{key: presets.KeyTax, name: "Tax Codes", count: 2, err: errors.New("tax table locked")},
			fakeSeeder{key: presets.KeyCOA, name: "Chart of Accounts", count: 42, calls: &coaCalls},
		),
	)

	var snaps []presets.Snapshot
	results, err := p.Provision(context.Background(), "tenant-1", presets.Profile{CountryCode: "NG"}, func(s presets.Snapshot) {
		snaps = append(snaps, s)
	})
	require.NoError(t, err)

	assert.Equal(t, presets.Result{Success: true, RecordCount: 3, Name: "Currency"}, results[presets.KeyCurrency])
	assert.False(t, results[presets.KeyTax].Success)
	assert.Zero(t, results[presets.KeyTax].RecordCount)
	assert.Contains(t, results[presets.KeyTax].Error, "tax table locked")
	assert.Equal(t, 42, results[presets.KeyCOA].RecordCount)
	assert.Equal(t, 1, coaCalls)
	assert.Equal(t, []string{presets.KeyTax}, presets.Failed(results))

	require.Len(t, snaps, 4)
	assert.Zero(t, snaps[0].Percent)
	assert.Equal(t, "Currency", snaps[1].CurrentPreset)
	assert.Equal(t, 33, snaps[1].Percent)
	assert.Len(t, snaps[1].Results, 1)
	last := snaps[3]
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, 3, last.CurrentStep)
	assert.Equal(t, 3, last.TotalSteps)
	assert.True(t, last.Done)

	assert.Equal(t, []string{presets.KeyCurrency, presets.KeyTax, presets.KeyCOA}, metrics.preset)

	stored, ok, err := store.Load(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Done)
	assert.Len(t, stored.Results, 3)
}

func TestProvisioner_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var secondCalls int

	p := presets.NewProvisioner(nil, nil,
		presets.WithTxRunner(func(ctx context.Context, tenantID string, fn func(context.Context, database.Querier) error) error {
			err := fn(ctx, nil)
			cancel()
			return err
		}),
		presets.WithSeeders(
			fakeSeeder{key: "a", name: "A", count: 1},
			fakeSeeder{key: "b", name: "B", count: 1, calls: &secondCalls},
		),
	)

	results, err := p.Provision(ctx, "tenant-1", presets.Profile{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
	assert.Zero(t, secondCalls)
}

func TestProvisioner_DefaultKeys(t *testing.T) {
	c, err := presets.LoadCatalog()
	require.NoError(t, err)

	p := presets.NewProvisioner(nil, c)
	assert.Equal(t, []string{
		presets.KeyCurrency, presets.KeyTax, presets.KeyCOA, presets.KeyFiscalCalendar,
	}, p.Keys())
}
