package onboarding

import (
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/presets"
)

// Billing cycles accepted by step 1.
const (
	BillingTrial   = "trial"
	BillingMonthly = "monthly"
	BillingAnnual  = "annual"
)

// Domain types accepted by step 2.
const (
	DomainSubdomain = "subdomain"
	DomainCustom    = "custom"
)

// PresetResult is the outcome of one provisioned preset.
type PresetResult = presets.Result

// ValidationError lists the fields of a step payload that failed local
// validation, keyed by JSON field name.
type ValidationError struct {
	Step   Step
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return fmt.Sprintf("%s step invalid: %s", e.Step, strings.Join(parts, "; "))
}

type fieldErrors struct {
	step   Step
	fields map[string]string
}

func (f *fieldErrors) add(field, msg string) {
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	f.fields[field] = msg
}

func (f *fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, "is required")
	}
}

func (f *fieldErrors) err() error {
	if len(f.fields) == 0 {
		return nil
	}
	return &ValidationError{Step: f.step, Fields: f.fields}
}

// SubscriptionPayload is the body of step 1.
type SubscriptionPayload struct {
	PlanCode     string `json:"plan_code"`
	BillingCycle string `json:"billing_cycle"`
}

func (p SubscriptionPayload) Validate() error {
	v := fieldErrors{step: StepSubscription}
	v.required("plan_code", p.PlanCode)
	v.required("billing_cycle", p.BillingCycle)
	switch p.BillingCycle {
	case "", BillingTrial, BillingMonthly, BillingAnnual:
	default:
		v.add("billing_cycle", "must be trial, monthly or annual")
	}
	return v.err()
}

// DomainPayload is the body of step 2. PrimaryDomain is omitted from the
// wire when the tenant's domain is locked.
type DomainPayload struct {
	PrimaryDomain string `json:"primary_domain,omitempty"`
	DomainType    string `json:"domain_type"`
}

// Validate checks the payload. A locked domain needs no primary domain.
func (p DomainPayload) Validate(locked bool) error {
	v := fieldErrors{step: StepDomain}
	if !locked {
		v.required("primary_domain", p.PrimaryDomain)
	}
	switch p.DomainType {
	case "", DomainSubdomain, DomainCustom:
	default:
		v.add("domain_type", "must be subdomain or custom")
	}
	return v.err()
}

// Body returns the payload as submitted: the domain type defaults to
// subdomain, and a locked domain is dropped.
func (p DomainPayload) Body(locked bool) DomainPayload {
	out := DomainPayload{
		PrimaryDomain: strings.ToLower(strings.TrimSpace(p.PrimaryDomain)),
		DomainType:    p.DomainType,
	}
	if out.DomainType == "" {
		out.DomainType = DomainSubdomain
	}
	if locked {
		out.PrimaryDomain = ""
	}
	return out
}

// Address is the registered company address.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Contact holds the company's public contact details.
type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// CompanyProfilePayload is the body of step 3.
type CompanyProfilePayload struct {
	LegalName          string  `json:"legal_name"`
	CountryCode        string  `json:"country_code"`
	IndustryCode       string  `json:"industry_code"`
	Timezone           string  `json:"timezone,omitempty"`
	CurrencyCode       string  `json:"currency_code,omitempty"`
	TaxID              string  `json:"tax_id,omitempty"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	Address            Address `json:"address"`
	Contact            Contact `json:"contact"`
}

var (
	countryCodePattern  = regexp.MustCompile(`^[A-Z]{2}$`)
	currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

func (p CompanyProfilePayload) Validate() error {
	v := fieldErrors{step: StepCompanyProfile}
	v.required("legal_name", p.LegalName)
	v.required("industry_code", p.IndustryCode)
	switch {
	case p.CountryCode == "":
		v.add("country_code", "is required")
	case !countryCodePattern.MatchString(p.CountryCode):
		v.add("country_code", "must be an ISO 3166-1 alpha-2 code")
	}
	if p.CurrencyCode != "" && !currencyCodePattern.MatchString(p.CurrencyCode) {
		v.add("currency_code", "must be an ISO 4217 code")
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			v.add("timezone", "unknown time zone")
		}
	}
	if p.Contact.Email != "" {
		if _, err := mail.ParseAddress(p.Contact.Email); err != nil {
			v.add("contact.email", "invalid email address")
		}
	}
	return v.err()
}

// Normalize upper-cases the ISO codes and trims free text.
func (p CompanyProfilePayload) Normalize() CompanyProfilePayload {
	p.LegalName = strings.TrimSpace(p.LegalName)
	p.CountryCode = strings.ToUpper(strings.TrimSpace(p.CountryCode))
	p.CurrencyCode = strings.ToUpper(strings.TrimSpace(p.CurrencyCode))
	p.IndustryCode = strings.ToLower(strings.TrimSpace(p.IndustryCode))
	return p
}

// Status is the wire form of a tenant's onboarding state, returned by the
// status endpoint and embedded in step responses.
type Status struct {
	CurrentStep    Step                    `json:"current_step"`
	CompletedSteps []Step                  `json:"completed_steps"`
	IsComplete     bool                    `json:"is_complete"`
	Subscription   *SubscriptionPayload    `json:"subscription,omitempty"`
	Domain         *DomainPayload          `json:"domain,omitempty"`
	Profile        *CompanyProfilePayload  `json:"profile,omitempty"`
	Presets        map[string]PresetResult `json:"presets,omitempty"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
}

// StatusOf converts a state to its wire form.
func StatusOf(s State) Status {
	completed := slices.Clone(s.Completed)
	if completed == nil {
		completed = []Step{}
	}
	return Status{
		CurrentStep:    s.CurrentStep,
		CompletedSteps: completed,
		IsComplete:     s.IsComplete(),
		Subscription:   s.Subscription,
		Domain:         s.Domain,
		Profile:        s.Profile,
		Presets:        s.Presets,
	}
}
