package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/ledgerline/ledgerline/internal/presets"
)

var (
	ErrSubmissionInFlight = errors.New("a step submission is already in progress")
	ErrSessionTerminated  = errors.New("onboarding session ended; sign in again")
)

// StepAPI is the server surface the wizard drives. *APIClient implements it.
type StepAPI interface {
	SubmitStep(ctx context.Context, step Step, body any) (*StepResponse, error)
	Status(ctx context.Context) (*Status, error)
	TenantInfo(ctx context.Context) (*TenantInfo, error)
	Progress(ctx context.Context) (*presets.Snapshot, error)
}

// CredentialClearer forgets the stored session.
type CredentialClearer interface {
	Clear() error
}

// Reauthenticator sends the user back through sign-in.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// ReauthenticatorFunc adapts a function to Reauthenticator.
type ReauthenticatorFunc func(ctx context.Context) error

func (f ReauthenticatorFunc) Reauthenticate(ctx context.Context) error { return f(ctx) }

// WizardOption configures a Wizard.
type WizardOption func(*Wizard)

// WithWizardLogger sets the wizard's logger.
func WithWizardLogger(l *slog.Logger) WizardOption {
	return func(w *Wizard) { w.logger = l }
}

// Wizard walks one tenant through onboarding. State only advances after the
// server accepts a step; any failure leaves it untouched.
type Wizard struct {
	api    StepAPI
	creds  CredentialClearer
	reauth Reauthenticator
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	progress   ProgressSnapshot
	inFlight   bool
	terminated bool
}

// NewWizard creates a wizard positioned at step 1. Call Start to resume
// from the server.
func NewWizard(api StepAPI, creds CredentialClearer, reauth Reauthenticator, opts ...WizardOption) *Wizard {
	w := &Wizard{
		api:    api,
		creds:  creds,
		reauth: reauth,
		logger: slog.Default(),
		state:  NewState(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start loads the tenant and its saved progress.
func (w *Wizard) Start(ctx context.Context) (State, error) {
	if err := w.begin(); err != nil {
		return w.State(), err
	}
	defer w.end()

	tenant, err := w.api.TenantInfo(ctx)
	if err != nil {
		return w.State(), w.fail(ctx, err)
	}
	status, err := w.api.Status(ctx)
	if err != nil {
		return w.State(), w.fail(ctx, err)
	}

	st := Resume(status)
	st.DomainLocked = tenant.DomainLocked()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = st
	if st.Presets != nil {
		w.progress = DeriveProgress(st.Presets, len(st.Presets))
	}
	return st.clone(), nil
}

// begin claims the single submission slot.
func (w *Wizard) begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return ErrSessionTerminated
	}
	if w.inFlight {
		return ErrSubmissionInFlight
	}
	w.inFlight = true
	return nil
}

func (w *Wizard) end() {
	w.mu.Lock()
	w.inFlight = false
	w.mu.Unlock()
}

// fail ends the session on an auth failure and passes other errors through.
func (w *Wizard) fail(ctx context.Context, err error) error {
	if KindOf(err) != KindAuth {
		return err
	}

	w.mu.Lock()
	w.terminated = true
	w.mu.Unlock()

	if cerr := w.creds.Clear(); cerr != nil {
		w.logger.Error("clearing credentials", "error", cerr)
	}
	if w.reauth != nil {
		if rerr := w.reauth.Reauthenticate(ctx); rerr != nil {
			w.logger.Error("starting re-authentication", "error", rerr)
		}
	}
	return fmt.Errorf("%w: %w", ErrSessionTerminated, err)
}

// prepareFunc validates against the current state and returns the request
// body and the payload to record on success.
type prepareFunc func(s State) (body, payload any, err error)

func (w *Wizard) submit(ctx context.Context, step Step, prepare prepareFunc) (State, error) {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return w.State(), ErrSessionTerminated
	}
	if w.inFlight {
		w.mu.Unlock()
		return w.State(), ErrSubmissionInFlight
	}
	current := w.state
	if err := CanSubmit(current, step); err != nil {
		w.mu.Unlock()
		return current.clone(), err
	}
	body, payload, err := prepare(current)
	if err != nil {
		w.mu.Unlock()
		return current.clone(), err
	}
	w.inFlight = true
	w.mu.Unlock()

	resp, err := w.api.SubmitStep(ctx, step, body)
	if err != nil {
		var se *StepError
		w.mu.Lock()
		w.inFlight = false
		if step == StepPresets && errors.As(err, &se) && se.DetailedResults != nil {
			w.progress = DeriveProgress(se.DetailedResults, len(se.DetailedResults))
		}
		w.mu.Unlock()
		return w.State(), w.fail(ctx, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false

	if step == StepPresets {
		results := resp.DetailedResults
		if results == nil {
			results = map[string]PresetResult{}
		}
		w.progress = DeriveProgress(results, len(results))
		payload = results
	}

	next, err := Transition(w.state, Submitted{Step: step, Payload: payload})
	if err != nil {
		return w.state.clone(), err
	}
	w.state = next
	w.logger.Debug("onboarding step accepted", "step", step.String())
	return next.clone(), nil
}

// SubmitSubscription submits step 1.
func (w *Wizard) SubmitSubscription(ctx context.Context, p SubscriptionPayload) (State, error) {
	return w.submit(ctx, StepSubscription, func(State) (any, any, error) {
		if err := p.Validate(); err != nil {
			return nil, nil, err
		}
		return p, p, nil
	})
}

// SubmitDomain submits step 2. When the tenant's domain is locked the
// primary domain is neither required nor sent.
func (w *Wizard) SubmitDomain(ctx context.Context, p DomainPayload) (State, error) {
	return w.submit(ctx, StepDomain, func(s State) (any, any, error) {
		if err := p.Validate(s.DomainLocked); err != nil {
			return nil, nil, err
		}
		body := p.Body(s.DomainLocked)
		return body, body, nil
	})
}

// SubmitCompanyProfile submits step 3.
func (w *Wizard) SubmitCompanyProfile(ctx context.Context, p CompanyProfilePayload) (State, error) {
	return w.submit(ctx, StepCompanyProfile, func(State) (any, any, error) {
		p := p.Normalize()
		if err := p.Validate(); err != nil {
			return nil, nil, err
		}
		return p, p, nil
	})
}

// SubmitPresets triggers provisioning and records the per-preset results.
func (w *Wizard) SubmitPresets(ctx context.Context) (State, error) {
	return w.submit(ctx, StepPresets, func(State) (any, any, error) {
		return struct{}{}, nil, nil
	})
}

// SubmitConfirmation completes the workflow.
func (w *Wizard) SubmitConfirmation(ctx context.Context) (State, error) {
	return w.submit(ctx, StepConfirmation, func(State) (any, any, error) {
		return struct{}{}, nil, nil
	})
}

// Back moves to the previous step for review. The server accepts the
// revisited step being submitted again.
func (w *Wizard) Back() (State, error) {
	return w.navigate(Back{})
}

// Forward returns towards the first open step without resubmitting.
func (w *Wizard) Forward() (State, error) {
	return w.navigate(Forward{})
}

func (w *Wizard) navigate(e Event) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return w.state.clone(), ErrSessionTerminated
	}
	if w.inFlight {
		return w.state.clone(), ErrSubmissionInFlight
	}
	next, err := Transition(w.state, e)
	if err != nil {
		return w.state.clone(), err
	}
	w.state = next
	return next.clone(), nil
}

// State returns a copy of the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Progress returns the last provisioning snapshot.
func (w *Wizard) Progress() ProgressSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.progress
	p.Results = maps.Clone(p.Results)
	return p
}

// RefreshProgress re-derives the snapshot from the server's progress
// document.
func (w *Wizard) RefreshProgress(ctx context.Context) (ProgressSnapshot, error) {
	w.mu.Lock()
	terminated := w.terminated
	w.mu.Unlock()
	if terminated {
		return w.Progress(), ErrSessionTerminated
	}

	snap, err := w.api.Progress(ctx)
	if err != nil {
		return w.Progress(), w.fail(ctx, err)
	}
	p := ProgressFromServer(*snap)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.progress = p
	return p, nil
}

// Terminated reports whether an auth failure ended the session.
func (w *Wizard) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}
