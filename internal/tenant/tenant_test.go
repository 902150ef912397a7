package tenant_test

import (
	"testing"

	"github.com/ledgerline/ledgerline/internal/tenant"
	"github.com/stretchr/testify/assert"
)

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		slug    string
		wantErr bool
	}{
		{"acme-books", false},
		{"abc", false},
		{"a-b", false},
		{"ab", true},    // too short
		{"-abc", true},  // starts with hyphen
		{"abc-", true},  // ends with hyphen
		{"ABC", true},   // uppercase
		{"a b", true},   // space
		{"api", true},   // reserved
		{"www", true},   // reserved
		{"admin", true}, // reserved
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			err := tenant.ValidateSlug(tt.slug)
			if tt.wantErr {
				assert.ErrorIs(t, err, tenant.ErrInvalidSlug)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name       string
		domain     string
		domainType string
		wantErr    bool
	}{
		{"subdomain", "acme.ledgerline.app", tenant.DomainSubdomain, false},
		{"custom", "books.acme.com", tenant.DomainCustom, false},
		{"empty", "", tenant.DomainCustom, true},
		{"single label", "acme", tenant.DomainCustom, true},
		{"uppercase", "Acme.com", tenant.DomainCustom, true},
		{"empty label", "acme..com", tenant.DomainCustom, true},
		{"leading hyphen", "-acme.com", tenant.DomainCustom, true},
		{"bad type", "acme.com", "vanity", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tenant.ValidateDomain(tt.domain, tt.domainType)
			if tt.wantErr {
				assert.ErrorIs(t, err, tenant.ErrInvalidDomain)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateProfile(t *testing.T) {
	assert.NoError(t, tenant.ValidateProfile("NG", "NGN"))
	assert.NoError(t, tenant.ValidateProfile("US", ""))
	assert.ErrorIs(t, tenant.ValidateProfile("ng", "NGN"), tenant.ErrInvalidProfile)
	assert.ErrorIs(t, tenant.ValidateProfile("NGA", "NGN"), tenant.ErrInvalidProfile)
	assert.ErrorIs(t, tenant.ValidateProfile("NG", "naira"), tenant.ErrInvalidProfile)
}

func TestTenant_DomainLocked(t *testing.T) {
	assert.False(t, (&tenant.Tenant{}).DomainLocked())
	assert.True(t, (&tenant.Tenant{Slug: "acme"}).DomainLocked())
	assert.True(t, (&tenant.Tenant{PrimaryDomain: "acme.com"}).DomainLocked())
}
