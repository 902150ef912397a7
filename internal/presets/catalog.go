package presets

import (
	_ "embed"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Currency is a currency definition from the catalog.
type Currency struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// TaxCode is a country tax rate, in percent.
type TaxCode struct {
	Code string          `yaml:"code"`
	Name string          `yaml:"name"`
	Rate decimal.Decimal `yaml:"rate"`
}

// Account is a chart-of-accounts entry.
type Account struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Parent string `yaml:"parent"`
}

// Country holds the per-country presets.
type Country struct {
	Currency        string    `yaml:"currency"`
	FiscalYearStart int       `yaml:"fiscal_year_start"`
	Taxes           []TaxCode `yaml:"taxes"`
}

// Catalog is the parsed preset reference data.
type Catalog struct {
	ReportingCurrencies []string             `yaml:"reporting_currencies"`
	Currencies          map[string]Currency  `yaml:"currencies"`
	Countries           map[string]Country   `yaml:"countries"`
	Charts              map[string][]Account `yaml:"charts"`
}

// GeneralChart is the chart every industry extends.
const GeneralChart = "general"

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses and checks a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing preset catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Charts[GeneralChart]) == 0 {
		return fmt.Errorf("preset catalog: %q chart is empty", GeneralChart)
	}
	for code, country := range c.Countries {
		if _, ok := c.Currencies[country.Currency]; !ok {
			return fmt.Errorf("preset catalog: country %s uses unknown currency %s", code, country.Currency)
		}
		if country.FiscalYearStart < 1 || country.FiscalYearStart > 12 {
			return fmt.Errorf("preset catalog: country %s fiscal year start %d", code, country.FiscalYearStart)
		}
		for _, tax := range country.Taxes {
			if tax.Rate.IsNegative() || tax.Rate.GreaterThan(decimal.NewFromInt(100)) {
				return fmt.Errorf("preset catalog: %s tax %s rate %s out of range", code, tax.Code, tax.Rate)
			}
		}
	}
	for _, cur := range c.ReportingCurrencies {
		if _, ok := c.Currencies[cur]; !ok {
			return fmt.Errorf("preset catalog: unknown reporting currency %s", cur)
		}
	}
	return nil
}

// BaseCurrency picks the tenant's base currency: an explicit choice wins,
// then the country default, then the first reporting currency.
func (c *Catalog) BaseCurrency(countryCode, currencyCode string) string {
	if currencyCode != "" {
		return currencyCode
	}
	if country, ok := c.Countries[countryCode]; ok {
		return country.Currency
	}
	if len(c.ReportingCurrencies) > 0 {
		return c.ReportingCurrencies[0]
	}
	return "USD"
}

// Chart returns the general chart extended by the industry's accounts.
// Industry entries replace general entries with the same code.
func (c *Catalog) Chart(industry string) []Account {
	general := c.Charts[GeneralChart]
	extra := c.Charts[industry]
	if industry == GeneralChart {
		extra = nil
	}

	out := make([]Account, 0, len(general)+len(extra))
	seen := make(map[string]int, len(general)+len(extra))
	for _, a := range general {
		seen[a.Code] = len(out)
		out = append(out, a)
	}
	for _, a := range extra {
		if i, ok := seen[a.Code]; ok {
			out[i] = a
			continue
		}
		seen[a.Code] = len(out)
		out = append(out, a)
	}
	return out
}

// FiscalYearStart returns the first month of the country's fiscal year,
// January when the country is not in the catalog.
func (c *Catalog) FiscalYearStart(countryCode string) int {
	if country, ok := c.Countries[countryCode]; ok {
		return country.FiscalYearStart
	}
	return 1
}
