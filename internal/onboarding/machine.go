// Package onboarding implements the five-step tenant setup workflow: the
// state machine shared by client and server, the HTTP client driver used by
// the CLI, and the server-side step persistence API.
package onboarding

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Step is a position in the workflow.
type Step int

const (
	StepSubscription Step = iota + 1
	StepDomain
	StepCompanyProfile
	StepPresets
	StepConfirmation
	// Complete is the terminal state reached after StepConfirmation.
	Complete
)

// TotalSteps is the number of submittable steps.
const TotalSteps = 5

var stepNames = map[Step]string{
	StepSubscription:   "subscription",
	StepDomain:         "domain",
	StepCompanyProfile: "company_profile",
	StepPresets:        "presets",
	StepConfirmation:   "confirmation",
	Complete:           "complete",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is a submittable step.
func (s Step) Valid() bool {
	return s >= StepSubscription && s <= StepConfirmation
}

var (
	ErrInvalidStep      = errors.New("invalid onboarding step")
	ErrStepOutOfOrder   = errors.New("onboarding step out of order")
	ErrWorkflowComplete = errors.New("onboarding is already complete")
	ErrCannotGoBack     = errors.New("cannot go back from this step")
	ErrCannotGoForward  = errors.New("cannot go forward past the first open step")
)

// State is a tenant's position in the workflow together with the payloads
// of the steps completed so far.
type State struct {
	CurrentStep  Step
	Completed    []Step
	Subscription *SubscriptionPayload
	Domain       *DomainPayload
	Profile      *CompanyProfilePayload
	Presets      map[string]PresetResult
	DomainLocked bool
}

// NewState returns the state of a tenant that has not started.
func NewState() State {
	return State{CurrentStep: StepSubscription}
}

// IsComplete reports whether the workflow reached its terminal state.
func (s State) IsComplete() bool {
	return s.CurrentStep == Complete
}

// IsCompleted reports whether step has been accepted.
func (s State) IsCompleted(step Step) bool {
	return slices.Contains(s.Completed, step)
}

// clone copies s so a transition never aliases its input.
func (s State) clone() State {
	out := s
	out.Completed = slices.Clone(s.Completed)
	out.Presets = maps.Clone(s.Presets)
	return out
}

// Event drives a transition.
type Event interface {
	event()
}

// Submitted records that the server accepted Step. Payload, when set, must
// be the step's payload type (for StepPresets, the results map) and is
// stored on the new state.
type Submitted struct {
	Step    Step
	Payload any
}

// Back navigates to the previous step.
type Back struct{}

// Forward moves to the next step without submitting, up to the first step
// that has not been completed.
type Forward struct{}

func (Submitted) event() {}
func (Back) event()      {}
func (Forward) event()   {}

// CanSubmit reports whether step may be submitted from s.
func CanSubmit(s State, step Step) error {
	if s.IsComplete() {
		return ErrWorkflowComplete
	}
	if !step.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStep, int(step))
	}
	if step != s.CurrentStep {
		return fmt.Errorf("%w: current step is %d, got %d", ErrStepOutOfOrder, int(s.CurrentStep), int(step))
	}
	for prior := StepSubscription; prior < step; prior++ {
		if !s.IsCompleted(prior) {
			return fmt.Errorf("%w: step %d is not completed", ErrStepOutOfOrder, int(prior))
		}
	}
	return nil
}

// Transition applies e to s. It never mutates s.
func Transition(s State, e Event) (State, error) {
	switch ev := e.(type) {
	case Submitted:
		if err := CanSubmit(s, ev.Step); err != nil {
			return s, err
		}
		next := s.clone()
		if !next.IsCompleted(ev.Step) {
			next.Completed = append(next.Completed, ev.Step)
			slices.Sort(next.Completed)
		}
		if err := next.record(ev.Step, ev.Payload); err != nil {
			return s, err
		}
		next.CurrentStep = ev.Step + 1
		return next, nil

	case Back:
		if s.IsComplete() || s.CurrentStep <= StepSubscription {
			return s, fmt.Errorf("%w: %s", ErrCannotGoBack, s.CurrentStep)
		}
		next := s.clone()
		next.CurrentStep--
		return next, nil

	case Forward:
		if s.IsComplete() || s.CurrentStep >= Step(len(s.Completed))+1 {
			return s, fmt.Errorf("%w: %s", ErrCannotGoForward, s.CurrentStep)
		}
		next := s.clone()
		next.CurrentStep++
		return next, nil

	default:
		return s, fmt.Errorf("unknown onboarding event %T", e)
	}
}

// Revisit positions s at step when step was already completed and lies
// behind the current step, so it can be submitted again. Any other state is
// returned unchanged.
func Revisit(s State, step Step) State {
	if s.IsComplete() || !s.IsCompleted(step) || step >= s.CurrentStep {
		return s
	}
	out := s.clone()
	out.CurrentStep = step
	return out
}

func (s *State) record(step Step, payload any) error {
	if payload == nil {
		return nil
	}
	switch p := payload.(type) {
	case SubscriptionPayload:
		if step == StepSubscription {
			s.Subscription = &p
			return nil
		}
	case DomainPayload:
		if step == StepDomain {
			s.Domain = &p
			return nil
		}
	case CompanyProfilePayload:
		if step == StepCompanyProfile {
			s.Profile = &p
			return nil
		}
	case map[string]PresetResult:
		if step == StepPresets {
			s.Presets = maps.Clone(p)
			return nil
		}
	}
	return fmt.Errorf("payload %T does not belong to step %s", payload, step)
}

// Resume builds a state from a server status payload. A nil status starts
// the workflow from scratch. Completed steps are normalised to the longest
// prefix 1..k present in the payload, and the current step is kept only if
// it lies within 1..k+1.
func Resume(status *Status) State {
	if status == nil {
		return NewState()
	}

	done := make(map[Step]bool, len(status.CompletedSteps))
	for _, s := range status.CompletedSteps {
		done[s] = true
	}

	s := NewState()
	for step := StepSubscription; step <= StepConfirmation && done[step]; step++ {
		s.Completed = append(s.Completed, step)
	}
	k := Step(len(s.Completed))

	switch {
	case k == TotalSteps:
		s.CurrentStep = Complete
	case status.CurrentStep >= StepSubscription && status.CurrentStep <= k+1:
		s.CurrentStep = status.CurrentStep
	default:
		s.CurrentStep = k + 1
	}

	if k >= StepSubscription {
		s.Subscription = status.Subscription
	}
	if k >= StepDomain {
		s.Domain = status.Domain
	}
	if k >= StepCompanyProfile {
		s.Profile = status.Profile
	}
	if k >= StepPresets {
		s.Presets = maps.Clone(status.Presets)
	}
	return s
}
