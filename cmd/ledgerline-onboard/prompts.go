package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/ledgerline/ledgerline/internal/onboarding"
)

var plans = []string{"starter", "growth", "enterprise"}

// huhPrompter asks for step input with terminal forms.
type huhPrompter struct{}

func (huhPrompter) Subscription(def onboarding.SubscriptionPayload) (onboarding.SubscriptionPayload, error) {
	p := def
	if p.PlanCode == "" {
		p.PlanCode = plans[0]
	}
	if p.BillingCycle == "" {
		p.BillingCycle = onboarding.BillingTrial
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Plan").
			Options(huh.NewOptions(plans...)...).
			Value(&p.PlanCode),
		huh.NewSelect[string]().
			Title("Billing cycle").
			Options(huh.NewOptions(onboarding.BillingTrial, onboarding.BillingMonthly, onboarding.BillingAnnual)...).
			Value(&p.BillingCycle),
	))
	if err := form.Run(); err != nil {
		return def, fmt.Errorf("prompt failed: %w", err)
	}
	return p, nil
}

func (huhPrompter) Domain(def onboarding.DomainPayload, locked bool) (onboarding.DomainPayload, error) {
	p := def
	if p.DomainType == "" {
		p.DomainType = onboarding.DomainSubdomain
	}

	fields := []huh.Field{
		huh.NewSelect[string]().
			Title("Domain type").
			Options(huh.NewOptions(onboarding.DomainSubdomain, onboarding.DomainCustom)...).
			Value(&p.DomainType),
	}
	if locked {
		fields = append([]huh.Field{
			huh.NewNote().
				Title("Primary domain").
				Description("Your tenant's domain is already assigned and cannot be changed."),
		}, fields...)
	} else {
		fields = append([]huh.Field{
			huh.NewInput().
				Title("Primary domain").
				Placeholder("acme.example.com").
				Value(&p.PrimaryDomain).
				Validate(requiredField("primary domain")),
		}, fields...)
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return def, fmt.Errorf("prompt failed: %w", err)
	}
	return p, nil
}

func (huhPrompter) Profile(def onboarding.CompanyProfilePayload) (onboarding.CompanyProfilePayload, error) {
	p := def
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Legal name").Value(&p.LegalName).Validate(requiredField("legal name")),
			huh.NewInput().Title("Country code").Placeholder("US").CharLimit(2).Value(&p.CountryCode).Validate(requiredField("country code")),
			huh.NewInput().Title("Industry").Placeholder("services").Value(&p.IndustryCode).Validate(requiredField("industry")),
			huh.NewInput().Title("Currency code").Placeholder("USD").CharLimit(3).Value(&p.CurrencyCode),
			huh.NewInput().Title("Time zone").Placeholder("America/New_York").Value(&p.Timezone),
		).Title("Company"),
		huh.NewGroup(
			huh.NewInput().Title("Tax ID").Value(&p.TaxID),
			huh.NewInput().Title("Registration number").Value(&p.RegistrationNumber),
			huh.NewInput().Title("Address line 1").Value(&p.Address.Line1),
			huh.NewInput().Title("City").Value(&p.Address.City),
			huh.NewInput().Title("Postal code").Value(&p.Address.PostalCode),
			huh.NewInput().Title("Contact email").Value(&p.Contact.Email),
		).Title("Registration and contact"),
	)
	if err := form.Run(); err != nil {
		return def, fmt.Errorf("prompt failed: %w", err)
	}
	return p, nil
}

func (huhPrompter) Confirm(title string) (bool, error) {
	confirmed := true
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&confirmed),
	)).Run()
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

func requiredField(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
