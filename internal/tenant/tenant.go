package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrSlugTaken      = errors.New("tenant slug already in use")
	ErrInvalidSlug    = errors.New("invalid tenant slug")
	ErrInvalidDomain  = errors.New("invalid domain")
	ErrDomainTaken    = errors.New("domain already in use")
	ErrDomainLocked   = errors.New("tenant domain is already set")
	ErrInvalidProfile = errors.New("invalid tenant profile")
)

const (
	DomainSubdomain = "subdomain"
	DomainCustom    = "custom"
)

const (
	StatusOnboarding = "onboarding"
	StatusActive     = "active"
	StatusSuspended  = "suspended"
)

// Tenant represents an isolated organization.
type Tenant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	PrimaryDomain string    `json:"primary_domain"`
	DomainType    string    `json:"domain_type"`
	Status        string    `json:"status"`
	CountryCode   string    `json:"country_code,omitempty"`
	CurrencyCode  string    `json:"currency_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DomainLocked reports whether the tenant's domain was fixed at signup.
// Either a primary domain or a slug locks it.
func (t *Tenant) DomainLocked() bool {
	return t.PrimaryDomain != "" || t.Slug != ""
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

var reservedSlugs = map[string]bool{
	"api": true, "app": true, "www": true, "admin": true,
	"platform": true, "auth": true, "static": true, "assets": true,
}

// ValidateSlug checks that a slug conforms to DNS label rules and is not reserved.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: must be 3-63 lowercase alphanumeric characters or hyphens, cannot start/end with hyphen", ErrInvalidSlug)
	}
	if reservedSlugs[slug] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, slug)
	}
	return nil
}

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateDomain checks a fully qualified host name and its domain type.
func ValidateDomain(domain, domainType string) error {
	if domainType != DomainSubdomain && domainType != DomainCustom {
		return fmt.Errorf("%w: domain type must be %q or %q", ErrInvalidDomain, DomainSubdomain, DomainCustom)
	}
	if domain == "" || len(domain) > 253 {
		return fmt.Errorf("%w: must be 1-253 characters", ErrInvalidDomain)
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return fmt.Errorf("%w: %q is not fully qualified", ErrInvalidDomain, domain)
	}
	for _, l := range labels {
		if !labelPattern.MatchString(l) {
			return fmt.Errorf("%w: bad label %q", ErrInvalidDomain, l)
		}
	}
	return nil
}

var (
	countryPattern  = regexp.MustCompile(`^[A-Z]{2}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ValidateProfile checks ISO-3166 alpha-2 and ISO-4217 codes. An empty
// currency is allowed.
func ValidateProfile(countryCode, currencyCode string) error {
	if !countryPattern.MatchString(countryCode) {
		return fmt.Errorf("%w: country code %q", ErrInvalidProfile, countryCode)
	}
	if currencyCode != "" && !currencyPattern.MatchString(currencyCode) {
		return fmt.Errorf("%w: currency code %q", ErrInvalidProfile, currencyCode)
	}
	return nil
}
