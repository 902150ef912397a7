package presets

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/platform/database"
)

const tenantSetting = `NULLIF(current_setting('app.current_tenant_id', true), '')::UUID`

// DefaultSeeders returns the standard seeders in provisioning order.
func DefaultSeeders(c *Catalog, now func() time.Time) []Seeder {
	return []Seeder{
		CurrencySeeder{Catalog: c},
		TaxSeeder{Catalog: c},
		ChartSeeder{Catalog: c},
		FiscalCalendarSeeder{Catalog: c, Now: now},
	}
}

// CurrencySeeder creates the base currency plus the reporting currencies.
type CurrencySeeder struct{ Catalog *Catalog }

func (CurrencySeeder) Key() string  { return KeyCurrency }
func (CurrencySeeder) Name() string { return "Currency" }

func (s CurrencySeeder) Seed(ctx context.Context, q database.Querier, _ string, p Profile) (int, error) {
	base := s.Catalog.BaseCurrency(p.CountryCode, p.CurrencyCode)
	codes := append([]string{base}, s.Catalog.ReportingCurrencies...)

	created := 0
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true

		cur, ok := s.Catalog.Currencies[code]
		if !ok {
			cur = Currency{Name: code, Decimals: 2}
		}
		tag, err := q.Exec(ctx,
			`INSERT INTO currencies (tenant_id, code, name, symbol, decimals, is_base)
			 VALUES (`+tenantSetting+`, $1, $2, $3, $4, $5)
			 ON CONFLICT (tenant_id, code) DO NOTHING`,
			code, cur.Name, cur.Symbol, cur.Decimals, code == base,
		)
		if err != nil {
			return created, fmt.Errorf("inserting currency %s: %w", code, err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// TaxSeeder creates the country's tax codes. Countries outside the catalog
// get none.
type TaxSeeder struct{ Catalog *Catalog }

func (TaxSeeder) Key() string  { return KeyTax }
func (TaxSeeder) Name() string { return "Tax Codes" }

func (s TaxSeeder) Seed(ctx context.Context, q database.Querier, _ string, p Profile) (int, error) {
	created := 0
	for _, tax := range s.Catalog.Countries[p.CountryCode].Taxes {
		tag, err := q.Exec(ctx,
			`INSERT INTO tax_codes (tenant_id, code, name, rate)
			 VALUES (`+tenantSetting+`, $1, $2, $3::numeric)
			 ON CONFLICT (tenant_id, code) DO NOTHING`,
			tax.Code, tax.Name, tax.Rate.String(),
		)
		if err != nil {
			return created, fmt.Errorf("inserting tax code %s: %w", tax.Code, err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// ChartSeeder creates the chart of accounts for the tenant's industry.
type ChartSeeder struct{ Catalog *Catalog }

func (ChartSeeder) Key() string  { return KeyCOA }
func (ChartSeeder) Name() string { return "Chart of Accounts" }

func (s ChartSeeder) Seed(ctx context.Context, q database.Querier, _ string, p Profile) (int, error) {
	created := 0
	for _, a := range s.Catalog.Chart(p.IndustryCode) {
		tag, err := q.Exec(ctx,
			`INSERT INTO accounts (tenant_id, code, name, type, parent_code)
			 VALUES (`+tenantSetting+`, $1, $2, $3, NULLIF($4, ''))
			 ON CONFLICT (tenant_id, code) DO NOTHING`,
			a.Code, a.Name, a.Type, a.Parent,
		)
		if err != nil {
			return created, fmt.Errorf("inserting account %s: %w", a.Code, err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// FiscalCalendarSeeder creates twelve monthly periods for the fiscal year
// containing Now.
type FiscalCalendarSeeder struct {
	Catalog *Catalog
	Now     func() time.Time
}

func (FiscalCalendarSeeder) Key() string  { return KeyFiscalCalendar }
func (FiscalCalendarSeeder) Name() string { return "Fiscal Calendar" }

func (s FiscalCalendarSeeder) Seed(ctx context.Context, q database.Querier, _ string, p Profile) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	created := 0
	for _, period := range FiscalPeriods(now(), s.Catalog.FiscalYearStart(p.CountryCode)) {
		tag, err := q.Exec(ctx,
			`INSERT INTO fiscal_periods (tenant_id, name, starts_on, ends_on)
			 VALUES (`+tenantSetting+`, $1, $2, $3)
			 ON CONFLICT (tenant_id, name) DO NOTHING`,
			period.Name, period.StartsOn, period.EndsOn,
		)
		if err != nil {
			return created, fmt.Errorf("inserting fiscal period %s: %w", period.Name, err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// FiscalPeriod is one month of a fiscal year.
type FiscalPeriod struct {
	Name     string
	StartsOn time.Time
	EndsOn   time.Time
}

// FiscalPeriods returns the twelve periods of the fiscal year containing
// at, for a year starting in startMonth. The fiscal year is named after the
// calendar year it ends in.
func FiscalPeriods(at time.Time, startMonth int) []FiscalPeriod {
	year := at.Year()
	if int(at.Month()) < startMonth {
		year--
	}
	start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	fy := start.AddDate(0, 11, 0).Year()

	periods := make([]FiscalPeriod, 12)
	for i := range periods {
		from := start.AddDate(0, i, 0)
		periods[i] = FiscalPeriod{
			Name:     fmt.Sprintf("FY%d-P%02d", fy, i+1),
			StartsOn: from,
			EndsOn:   from.AddDate(0, 1, -1),
		}
	}
	return periods
}
