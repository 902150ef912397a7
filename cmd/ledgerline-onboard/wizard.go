package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ledgerline/ledgerline/internal/onboarding"
	"github.com/ledgerline/ledgerline/internal/presets"
)

// prompter collects step input from the user. Defaults carry values from
// an earlier attempt so a retry does not start from blank fields.
type prompter interface {
	Subscription(def onboarding.SubscriptionPayload) (onboarding.SubscriptionPayload, error)
	Domain(def onboarding.DomainPayload, locked bool) (onboarding.DomainPayload, error)
	Profile(def onboarding.CompanyProfilePayload) (onboarding.CompanyProfilePayload, error)
	Confirm(title string) (bool, error)
}

// progressStreamer follows step 4 while it runs.
type progressStreamer interface {
	StreamProgress(ctx context.Context, fn func(presets.Snapshot) error) error
}

type draft struct {
	subscription onboarding.SubscriptionPayload
	domain       onboarding.DomainPayload
	profile      onboarding.CompanyProfilePayload
}

func runWizard(ctx context.Context, wiz *onboarding.Wizard, stream progressStreamer, p prompter, out io.Writer) error {
	state, err := wiz.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, titleStyle.Render("Ledgerline onboarding"))

	var d draft
	if state.Subscription != nil {
		d.subscription = *state.Subscription
	}
	if state.Domain != nil {
		d.domain = *state.Domain
	}
	if state.Profile != nil {
		d.profile = *state.Profile
	}

	for !state.IsComplete() {
		fmt.Fprintln(out, renderStepHeader(state))

		var next onboarding.State
		switch state.CurrentStep {
		case onboarding.StepSubscription:
			if d.subscription, err = p.Subscription(d.subscription); err != nil {
				return err
			}
			next, err = wiz.SubmitSubscription(ctx, d.subscription)
		case onboarding.StepDomain:
			if d.domain, err = p.Domain(d.domain, state.DomainLocked); err != nil {
				return err
			}
			next, err = wiz.SubmitDomain(ctx, d.domain)
		case onboarding.StepCompanyProfile:
			if d.profile, err = p.Profile(d.profile); err != nil {
				return err
			}
			next, err = wiz.SubmitCompanyProfile(ctx, d.profile)
		case onboarding.StepPresets:
			next, err = submitPresets(ctx, wiz, stream, out)
			if err == nil {
				fmt.Fprintln(out, renderProgress(wiz.Progress()))
			}
		case onboarding.StepConfirmation:
			ok, perr := p.Confirm("Activate the tenant with these settings?")
			if perr != nil {
				return perr
			}
			if !ok {
				fmt.Fprintln(out, mutedStyle.Render("Not activated. Run `ledgerline-onboard run` again when ready."))
				return nil
			}
			next, err = wiz.SubmitConfirmation(ctx)
		default:
			return fmt.Errorf("unexpected step %s", state.CurrentStep)
		}

		if err != nil {
			if retry, herr := handleStepError(err, p, out); !retry {
				return herr
			}
			continue
		}
		state = next
	}

	fmt.Fprintln(out, okStyle.Render("Onboarding complete. Your tenant is active."))
	return nil
}

// submitPresets runs step 4 while a websocket shows live progress. The
// stream is best effort: the step result is authoritative.
func submitPresets(ctx context.Context, wiz *onboarding.Wizard, stream progressStreamer, out io.Writer) (onboarding.State, error) {
	fmt.Fprintln(out, mutedStyle.Render("Provisioning presets, this can take a minute..."))

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	if stream != nil {
		go func() {
			defer close(done)
			_ = stream.StreamProgress(streamCtx, func(s presets.Snapshot) error {
				if s.Done {
					return nil
				}
				fmt.Fprintln(out, renderProgressLine(onboarding.ProgressFromServer(s)))
				return nil
			})
		}()
	} else {
		close(done)
	}

	state, err := wiz.SubmitPresets(ctx)
	cancel()
	<-done
	return state, err
}

// handleStepError reports err and decides whether the wizard loop should
// go around again.
func handleStepError(err error, p prompter, out io.Writer) (bool, error) {
	if errors.Is(err, onboarding.ErrSessionTerminated) {
		return false, err
	}

	var verr *onboarding.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(out, renderValidation(verr))
		return true, nil
	}

	kind := onboarding.KindOf(err)
	fmt.Fprintln(out, errorStyle.Render(kind.String()+" error: ")+err.Error())
	if kind == onboarding.KindValidation {
		return true, nil
	}
	if !kind.Retryable() {
		return false, err
	}
	retry, perr := p.Confirm("Try again?")
	if perr != nil {
		return false, perr
	}
	if !retry {
		return false, err
	}
	return true, nil
}
