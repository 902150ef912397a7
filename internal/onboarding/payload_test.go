package onboarding_test

import (
	"encoding/json"
	"testing"

	"github.com/ledgerline/ledgerline/internal/onboarding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *onboarding.ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Fields
}

func TestSubscriptionPayload_Validate(t *testing.T) {
	assert.NoError(t, onboarding.SubscriptionPayload{PlanCode: "trial", BillingCycle: "trial"}.Validate())

	fields := fieldsOf(t, onboarding.SubscriptionPayload{}.Validate())
	assert.Contains(t, fields, "plan_code")
	assert.Contains(t, fields, "billing_cycle")

	fields = fieldsOf(t, onboarding.SubscriptionPayload{PlanCode: "pro", BillingCycle: "weekly"}.Validate())
	assert.Equal(t, map[string]string{"billing_cycle": "must be trial, monthly or annual"}, fields)
}

func TestDomainPayload(t *testing.T) {
	t.Run("domain required when unlocked", func(t *testing.T) {
		fields := fieldsOf(t, onboarding.DomainPayload{}.Validate(false))
		assert.Contains(t, fields, "primary_domain")
	})

	t.Run("locked needs no domain", func(t *testing.T) {
		assert.NoError(t, onboarding.DomainPayload{}.Validate(true))
	})

	t.Run("locked body omits domain", func(t *testing.T) {
		body := onboarding.DomainPayload{PrimaryDomain: "other.example"}.Body(true)
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"domain_type": "subdomain"}`, string(raw))
	})

	t.Run("body normalises domain", func(t *testing.T) {
		body := onboarding.DomainPayload{PrimaryDomain: " Books.Acme.COM ", DomainType: "custom"}.Body(false)
		assert.Equal(t, "books.acme.com", body.PrimaryDomain)
		assert.Equal(t, "custom", body.DomainType)
	})

	t.Run("unknown type", func(t *testing.T) {
		fields := fieldsOf(t, onboarding.DomainPayload{PrimaryDomain: "a.example", DomainType: "vanity"}.Validate(false))
		assert.Contains(t, fields, "domain_type")
	})
}

func TestCompanyProfilePayload_Validate(t *testing.T) {
	valid := onboarding.CompanyProfilePayload{
		LegalName:    "Acme Books Ltd",
		CountryCode:  "NG",
		IndustryCode: "retail",
		Timezone:     "Africa/Lagos",
		CurrencyCode: "NGN",
		Contact:      onboarding.Contact{Email: "finance@acme.example"},
	}
	assert.NoError(t, valid.Validate())

	fields := fieldsOf(t, onboarding.CompanyProfilePayload{}.Validate())
	assert.Contains(t, fields, "legal_name")
	assert.Contains(t, fields, "country_code")
	assert.Contains(t, fields, "industry_code")

	bad := valid
	bad.CountryCode = "Nigeria"
	bad.CurrencyCode = "naira"
	bad.Timezone = "Mars/Olympus"
	bad.Contact.Email = "not-an-email"
	fields = fieldsOf(t, bad.Validate())
	assert.Len(t, fields, 4)

	norm := onboarding.CompanyProfilePayload{LegalName: " Acme ", CountryCode: "ng", IndustryCode: "Retail", CurrencyCode: "ngn"}.Normalize()
	assert.Equal(t, "Acme", norm.LegalName)
	assert.Equal(t, "NG", norm.CountryCode)
	assert.Equal(t, "NGN", norm.CurrencyCode)
	assert.Equal(t, "retail", norm.IndustryCode)
}

func TestValidationError_Message(t *testing.T) {
	err := &onboarding.ValidationError{
		Step:   onboarding.StepCompanyProfile,
		Fields: map[string]string{"legal_name": "is required", "country_code": "is required"},
	}
	assert.Equal(t, "company_profile step invalid: country_code: is required; legal_name: is required", err.Error())
	assert.Equal(t, onboarding.KindValidation, onboarding.KindOf(err))
}

func TestStatusOf(t *testing.T) {
	st := onboarding.StatusOf(onboarding.NewState())
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"current_step": 1, "completed_steps": [], "is_complete": false}`, string(raw))
}
