package onboarding

import (
	"maps"
	"slices"

	"github.com/ledgerline/ledgerline/internal/presets"
)

// ProgressSnapshot mirrors the last provisioning progress seen by the
// client. It is always derived from server data, never advanced locally.
type ProgressSnapshot struct {
	CurrentPreset string
	Percent       int
	CurrentStep   int
	TotalSteps    int
	Results       map[string]PresetResult
}

// Complete reports whether every expected preset succeeded.
func (p ProgressSnapshot) Complete() bool {
	return p.TotalSteps > 0 && p.Percent == 100
}

var presetOrder = []string{presets.KeyCurrency, presets.KeyTax, presets.KeyCOA, presets.KeyFiscalCalendar}

// orderedKeys lists result keys in provisioning order, unknown keys last
// and sorted.
func orderedKeys(results map[string]PresetResult) []string {
	keys := make([]string, 0, len(results))
	for _, k := range presetOrder {
		if _, ok := results[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range results {
		if !slices.Contains(presetOrder, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// DeriveProgress builds a snapshot from a results map. total is the number
// of presets expected; it is raised to len(results) when smaller. Percent
// counts successful presets only, so it reaches 100 once every expected
// entry reports success.
func DeriveProgress(results map[string]PresetResult, total int) ProgressSnapshot {
	if total < len(results) {
		total = len(results)
	}
	snap := ProgressSnapshot{
		CurrentStep: len(results),
		TotalSteps:  total,
		Results:     maps.Clone(results),
	}
	if snap.Results == nil {
		snap.Results = map[string]PresetResult{}
	}
	if total == 0 {
		return snap
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	snap.Percent = succeeded * 100 / total

	if keys := orderedKeys(results); len(keys) > 0 {
		last := results[keys[len(keys)-1]]
		snap.CurrentPreset = last.Name
	}
	return snap
}

// ProgressFromServer derives a snapshot from a server progress document.
func ProgressFromServer(s presets.Snapshot) ProgressSnapshot {
	return DeriveProgress(s.Results, s.TotalSteps)
}
