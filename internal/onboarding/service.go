package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/audit"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/ledgerline/ledgerline/internal/presets"
	"github.com/ledgerline/ledgerline/internal/tenant"
)

var (
	ErrProvisioningFailed = errors.New("preset provisioning failed")
	ErrNoProgress         = errors.New("no provisioning progress recorded")
)

// ProvisioningError reports which presets failed during step 4. The step
// is not completed; resubmitting reruns every preset.
type ProvisioningError struct {
	Results map[string]PresetResult
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProvisioningFailed, strings.Join(presets.Failed(e.Results), ", "))
}

func (e *ProvisioningError) Is(target error) bool { return target == ErrProvisioningFailed }

// TenantStore is the tenant persistence the workflow updates.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*tenant.Tenant, error)
	SetDomain(ctx context.Context, id, domain, domainType string) (*tenant.Tenant, error)
	UpdateProfile(ctx context.Context, q database.Querier, id, countryCode, currencyCode string) (*tenant.Tenant, error)
	Activate(ctx context.Context, q database.Querier, id string) (*tenant.Tenant, error)
}

// Provisioner seeds a tenant's presets. *presets.Provisioner implements it.
type Provisioner interface {
	Provision(ctx context.Context, tenantID string, profile presets.Profile, report func(presets.Snapshot)) (map[string]presets.Result, error)
}

// StepObserver counts step outcomes.
type StepObserver interface {
	ObserveStep(step int, outcome string)
}

// Step outcomes reported to the StepObserver.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// DefaultProvisionTimeout bounds a step 4 run.
const DefaultProvisionTimeout = 5 * time.Minute

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuditLogger records step events.
func WithAuditLogger(l audit.Logger) ServiceOption {
	return func(s *Service) { s.auditLog = l }
}

// WithStepMetrics counts step outcomes.
func WithStepMetrics(m StepObserver) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithBaseDomain sets the parent domain of derived tenant subdomains.
func WithBaseDomain(domain string) ServiceOption {
	return func(s *Service) { s.baseDomain = domain }
}

// WithProvisionTimeout bounds step 4.
func WithProvisionTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.provisionTimeout = d }
}

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// Service persists onboarding steps. It re-validates every payload and
// enforces the same state machine as the client.
type Service struct {
	pool             *pgxpool.Pool
	store            *Store
	tenants          TenantStore
	provisioner      Provisioner
	progress         presets.ProgressStore
	auditLog         audit.Logger
	metrics          StepObserver
	baseDomain       string
	provisionTimeout time.Duration
	now              func() time.Time

	// locks serialises submissions per tenant. An entry lives while some
	// request holds or waits for it.
	locksMu sync.Mutex
	locks   map[string]*tenantLock
}

type tenantLock struct {
	ch   chan struct{}
	refs int
}

// NewService creates the onboarding service. pool must be subject to RLS.
func NewService(pool *pgxpool.Pool, tenants TenantStore, provisioner Provisioner, progress presets.ProgressStore, opts ...ServiceOption) *Service {
	s := &Service{
		pool:             pool,
		store:            NewStore(),
		tenants:          tenants,
		provisioner:      provisioner,
		progress:         progress,
		auditLog:         audit.NopLogger{},
		baseDomain:       "localhost",
		provisionTimeout: DefaultProvisionTimeout,
		now:              time.Now,
		locks:            map[string]*tenantLock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lock(ctx context.Context, tenantID string) (func(), error) {
	s.locksMu.Lock()
	l := s.locks[tenantID]
	if l == nil {
		l = &tenantLock{ch: make(chan struct{}, 1)}
		s.locks[tenantID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			s.unref(tenantID, l)
		}, nil
	case <-ctx.Done():
		s.unref(tenantID, l)
		return nil, ctx.Err()
	}
}

func (s *Service) unref(tenantID string, l *tenantLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, tenantID)
	}
}

func (s *Service) load(ctx context.Context, tenantID string) (Record, error) {
	var rec Record
	err := database.WithTenantConnection(ctx, s.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		var err error
		rec, err = s.store.Load(ctx, q, tenantID)
		return err
	})
	return rec, err
}

// Status returns the tenant's onboarding status.
func (s *Service) Status(ctx context.Context, tenantID string) (Status, error) {
	rec, err := s.load(ctx, tenantID)
	if err != nil {
		return Status{}, err
	}
	st := StatusOf(rec.State)
	st.CompletedAt = rec.CompletedAt
	return st, nil
}

// Progress returns the latest provisioning snapshot. Once the progress
// entry expires, a finished snapshot is rebuilt from the saved results.
func (s *Service) Progress(ctx context.Context, tenantID string) (presets.Snapshot, error) {
	if s.progress != nil {
		snap, ok, err := s.progress.Load(ctx, tenantID)
		if err != nil {
			return presets.Snapshot{}, err
		}
		if ok {
			return snap, nil
		}
	}

	rec, err := s.load(ctx, tenantID)
	if err != nil {
		return presets.Snapshot{}, err
	}
	if !rec.State.IsCompleted(StepPresets) {
		return presets.Snapshot{}, ErrNoProgress
	}
	p := DeriveProgress(rec.State.Presets, len(rec.State.Presets))
	return presets.Snapshot{
		CurrentPreset: p.CurrentPreset,
		Percent:       p.Percent,
		CurrentStep:   p.CurrentStep,
		TotalSteps:    p.TotalSteps,
		Results:       p.Results,
		Done:          true,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}

// SubmitStep validates body for step, applies the step's side effects and
// persists the advanced state.
func (s *Service) SubmitStep(ctx context.Context, tenantID string, step Step, body []byte) (*StepResponse, error) {
	resp, err := s.submitStep(ctx, tenantID, step, body)
	if s.metrics != nil {
		outcome := OutcomeAccepted
		switch {
		case err == nil:
		case isRejection(err):
			outcome = OutcomeRejected
		default:
			outcome = OutcomeFailed
		}
		s.metrics.ObserveStep(int(step), outcome)
	}
	return resp, err
}

func isRejection(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrStepOutOfOrder) ||
		errors.Is(err, ErrWorkflowComplete) ||
		errors.Is(err, ErrInvalidStep) ||
		errors.Is(err, tenant.ErrDomainTaken) ||
		errors.Is(err, tenant.ErrDomainLocked)
}

func (s *Service) submitStep(ctx context.Context, tenantID string, step Step, body []byte) (*StepResponse, error) {
	unlock, err := s.lock(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	// A step behind the saved position is a revision after Back.
	base := Revisit(rec.State, step)
	if err := CanSubmit(base, step); err != nil {
		return nil, err
	}

	var (
		payload     any
		results     map[string]PresetResult
		completedAt *time.Time
		// apply runs in the transaction that saves the advanced state.
		apply func(ctx context.Context, q database.Querier) error
	)
	switch step {
	case StepSubscription:
		var p SubscriptionPayload
		if err := decodeBody(step, body, &p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		payload = p

	case StepDomain:
		p, err := s.applyDomain(ctx, tenantID, body)
		if err != nil {
			return nil, err
		}
		payload = p

	case StepCompanyProfile:
		var p CompanyProfilePayload
		if err := decodeBody(step, body, &p); err != nil {
			return nil, err
		}
		p = p.Normalize()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		apply = func(ctx context.Context, q database.Querier) error {
			if _, err := s.tenants.UpdateProfile(ctx, q, tenantID, p.CountryCode, p.CurrencyCode); err != nil {
				return fmt.Errorf("updating tenant profile: %w", err)
			}
			return nil
		}
		payload = p

	case StepPresets:
		results, err = s.provision(ctx, tenantID, rec.State.Profile)
		if err != nil {
			return nil, err
		}
		payload = results

	case StepConfirmation:
		apply = func(ctx context.Context, q database.Querier) error {
			if _, err := s.tenants.Activate(ctx, q, tenantID); err != nil {
				return fmt.Errorf("activating tenant: %w", err)
			}
			return nil
		}
		now := s.now()
		completedAt = &now
	}

	next, err := Transition(base, Submitted{Step: step, Payload: payload})
	if err != nil {
		return nil, err
	}
	next.CurrentStep = max(next.CurrentStep, rec.State.CurrentStep)
	err = database.WithTenantTx(ctx, s.pool, tenantID, func(ctx context.Context, q database.Querier) error {
		if apply != nil {
			if err := apply(ctx, q); err != nil {
				return err
			}
		}
		return s.store.Save(ctx, q, tenantID, next, completedAt)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, tenantID, step, results)

	status := StatusOf(next)
	if completedAt != nil {
		status.CompletedAt = completedAt
	} else {
		status.CompletedAt = rec.CompletedAt
	}
	resp := &StepResponse{Step: step, Status: &status, DetailedResults: results}
	if payload != nil && step != StepPresets {
		if raw, err := json.Marshal(payload); err == nil {
			resp.Data = raw
		}
	}
	return resp, nil
}

// applyDomain binds the tenant's primary domain. An existing domain is
// never changed; a locked tenant without one gets its slug subdomain.
func (s *Service) applyDomain(ctx context.Context, tenantID string, body []byte) (DomainPayload, error) {
	var p DomainPayload
	if err := decodeBody(StepDomain, body, &p); err != nil {
		return DomainPayload{}, err
	}

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return DomainPayload{}, fmt.Errorf("loading tenant: %w", err)
	}
	locked := t.DomainLocked()
	if err := p.Validate(locked); err != nil {
		return DomainPayload{}, err
	}

	if t.PrimaryDomain != "" {
		return DomainPayload{PrimaryDomain: t.PrimaryDomain, DomainType: t.DomainType}, nil
	}

	want := p.Body(false)
	if want.PrimaryDomain == "" {
		want = DomainPayload{PrimaryDomain: t.Slug + "." + s.baseDomain, DomainType: DomainSubdomain}
	}
	updated, err := s.tenants.SetDomain(ctx, tenantID, want.PrimaryDomain, want.DomainType)
	if err != nil {
		if errors.Is(err, tenant.ErrInvalidDomain) {
			return DomainPayload{}, &ValidationError{Step: StepDomain, Fields: map[string]string{"primary_domain": err.Error()}}
		}
		return DomainPayload{}, err
	}
	return DomainPayload{PrimaryDomain: updated.PrimaryDomain, DomainType: updated.DomainType}, nil
}

func (s *Service) provision(ctx context.Context, tenantID string, profile *CompanyProfilePayload) (map[string]PresetResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: company profile missing", ErrStepOutOfOrder)
	}

	// A dropped client connection must not abort a half-seeded tenant.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.provisionTimeout)
	defer cancel()

	results, err := s.provisioner.Provision(runCtx, tenantID, presets.Profile{
		CountryCode:  profile.CountryCode,
		IndustryCode: profile.IndustryCode,
		CurrencyCode: profile.CurrencyCode,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("provisioning presets: %w", err)
	}
	if len(presets.Failed(results)) > 0 {
		return nil, &ProvisioningError{Results: results}
	}
	return results, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID string, step Step, results map[string]PresetResult) {
	audit.Record(ctx, s.auditLog, tenantID, audit.ActionOnboardingStepCompleted, audit.ResourceOnboarding, tenantID,
		map[string]any{"step": int(step), "step_name": step.String()})

	switch step {
	case StepPresets:
		counts := make(map[string]any, len(results))
		for k, r := range results {
			counts[k] = r.RecordCount
		}
		audit.Record(ctx, s.auditLog, tenantID, audit.ActionPresetsProvisioned, audit.ResourceOnboarding, tenantID, counts)
	case StepConfirmation:
		audit.Record(ctx, s.auditLog, tenantID, audit.ActionOnboardingCompleted, audit.ResourceOnboarding, tenantID, nil)
		audit.Record(ctx, s.auditLog, tenantID, audit.ActionTenantActivated, audit.ResourceTenant, tenantID, nil)
	}
}

// decodeBody reads a step payload. An empty body decodes to the zero
// value so required-field checks report it.
func decodeBody(step Step, body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &ValidationError{Step: step, Fields: map[string]string{"body": "invalid JSON"}}
	}
	return nil
}
