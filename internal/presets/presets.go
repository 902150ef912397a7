// Package presets seeds country and industry reference data (currencies,
// tax codes, chart of accounts, fiscal calendar) into a new tenant.
package presets

import (
	"context"
	"time"

	"github.com/ledgerline/ledgerline/internal/platform/database"
)

// Preset keys, in provisioning order.
const (
	KeyCurrency       = "currency"
	KeyTax            = "tax"
	KeyCOA            = "coa"
	KeyFiscalCalendar = "fiscal_calendar"
)

// Result is the outcome of one preset.
type Result struct {
	Success     bool   `json:"success"`
	RecordCount int    `json:"record_count"`
	Name        string `json:"name"`
	Error       string `json:"error,omitempty"`
}

// Snapshot is the provisioning progress of a tenant after some presets
// have run.
type Snapshot struct {
	CurrentPreset string            `json:"current_preset"`
	Percent       int               `json:"percent"`
	CurrentStep   int               `json:"current_step"`
	TotalSteps    int               `json:"total_steps"`
	Results       map[string]Result `json:"detailed_results"`
	Done          bool              `json:"done"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Profile is the tenant data the seeders branch on.
type Profile struct {
	CountryCode  string
	IndustryCode string
	CurrencyCode string
}

// Seeder writes one preset into a tenant. q is bound to the tenant's RLS
// session; Seed returns the number of rows it created.
type Seeder interface {
	Key() string
	Name() string
	Seed(ctx context.Context, q database.Querier, tenantID string, p Profile) (int, error)
}
