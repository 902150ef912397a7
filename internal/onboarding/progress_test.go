package onboarding_test

import (
	"testing"

	"github.com/ledgerline/ledgerline/internal/onboarding"
	"github.com/ledgerline/ledgerline/internal/presets"
	"github.com/stretchr/testify/assert"
)

func TestDeriveProgress_AllSucceeded(t *testing.T) {
	results := map[string]onboarding.PresetResult{
		"currency": {Success: true, RecordCount: 0, Name: "Currency"},
		"coa":      {Success: true, RecordCount: 42, Name: "Chart of Accounts"},
	}
	p := onboarding.DeriveProgress(results, len(results))

	assert.Equal(t, 100, p.Percent)
	assert.True(t, p.Complete())
	assert.Equal(t, 2, p.CurrentStep)
	assert.Equal(t, 2, p.TotalSteps)
	assert.Equal(t, 0, p.Results["currency"].RecordCount)
	assert.Equal(t, 42, p.Results["coa"].RecordCount)
	// coa runs after currency.
	assert.Equal(t, "Chart of Accounts", p.CurrentPreset)
}

func TestDeriveProgress_Partial(t *testing.T) {
	results := map[string]onboarding.PresetResult{
		presets.KeyCurrency: {Success: true, RecordCount: 3, Name: "Currencies"},
		presets.KeyTax:      {Success: false, Name: "Tax codes"},
	}
	p := onboarding.DeriveProgress(results, 4)
	assert.Equal(t, 25, p.Percent)
	assert.False(t, p.Complete())
	assert.Equal(t, "Tax codes", p.CurrentPreset)

	// total never drops below the number of results.
	p = onboarding.DeriveProgress(results, 1)
	assert.Equal(t, 2, p.TotalSteps)
	assert.Equal(t, 50, p.Percent)
}

func TestDeriveProgress_Empty(t *testing.T) {
	p := onboarding.DeriveProgress(nil, 0)
	assert.Zero(t, p.Percent)
	assert.NotNil(t, p.Results)
	assert.False(t, p.Complete())
}

func TestDeriveProgress_DoesNotAlias(t *testing.T) {
	results := map[string]onboarding.PresetResult{"coa": {Success: true, Name: "Chart"}}
	p := onboarding.DeriveProgress(results, 1)
	results["coa"] = onboarding.PresetResult{}
	assert.True(t, p.Results["coa"].Success)
}

func TestProgressFromServer(t *testing.T) {
	p := onboarding.ProgressFromServer(presets.Snapshot{
		TotalSteps: 4,
		Results: map[string]presets.Result{
			presets.KeyCurrency: {Success: true, Name: "Currencies"},
		},
	})
	assert.Equal(t, 25, p.Percent)
	assert.Equal(t, 4, p.TotalSteps)
}
