package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerline/ledgerline/internal/platform/database"
)

// Record is a tenant's persisted onboarding state.
type Record struct {
	State       State
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// Store reads and writes onboarding_state rows. Every call runs on a
// Querier bound to the tenant's RLS session.
type Store struct{}

// NewStore creates an onboarding store.
func NewStore() *Store { return &Store{} }

// Load returns the tenant's record, or a fresh state when the tenant has
// not submitted anything yet.
func (s *Store) Load(ctx context.Context, q database.Querier, tenantID string) (Record, error) {
	var (
		current                                int32
		completed                              []int32
		subscription, domain, profile, results []byte
		rec                                    Record
	)
	err := q.QueryRow(ctx,
		`SELECT current_step, completed_steps, subscription, domain, profile, presets, completed_at, updated_at
		 FROM onboarding_state WHERE tenant_id = $1`, tenantID,
	).Scan(&current, &completed, &subscription, &domain, &profile, &results, &rec.CompletedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{State: NewState()}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading onboarding state: %w", err)
	}

	st := State{CurrentStep: Step(current)}
	for _, c := range completed {
		st.Completed = append(st.Completed, Step(c))
	}
	if err := unmarshalColumn(subscription, &st.Subscription); err != nil {
		return Record{}, fmt.Errorf("decoding subscription: %w", err)
	}
	if err := unmarshalColumn(domain, &st.Domain); err != nil {
		return Record{}, fmt.Errorf("decoding domain: %w", err)
	}
	if err := unmarshalColumn(profile, &st.Profile); err != nil {
		return Record{}, fmt.Errorf("decoding profile: %w", err)
	}
	if err := unmarshalColumn(results, &st.Presets); err != nil {
		return Record{}, fmt.Errorf("decoding presets: %w", err)
	}
	rec.State = st
	return rec, nil
}

// Save upserts the tenant's state. completedAt is set once and never
// cleared.
func (s *Store) Save(ctx context.Context, q database.Querier, tenantID string, st State, completedAt *time.Time) error {
	completed := make([]int32, len(st.Completed))
	for i, c := range st.Completed {
		completed[i] = int32(c)
	}

	cols := make([][]byte, 4)
	for i, v := range []any{st.Subscription, st.Domain, st.Profile, st.Presets} {
		raw, err := marshalColumn(v)
		if err != nil {
			return fmt.Errorf("encoding onboarding state: %w", err)
		}
		cols[i] = raw
	}

	_, err := q.Exec(ctx,
		`INSERT INTO onboarding_state
		   (tenant_id, current_step, completed_steps, subscription, domain, profile, presets, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   current_step = EXCLUDED.current_step,
		   completed_steps = EXCLUDED.completed_steps,
		   subscription = EXCLUDED.subscription,
		   domain = EXCLUDED.domain,
		   profile = EXCLUDED.profile,
		   presets = EXCLUDED.presets,
		   completed_at = COALESCE(onboarding_state.completed_at, EXCLUDED.completed_at),
		   updated_at = now()`,
		tenantID, int32(st.CurrentStep), completed, cols[0], cols[1], cols[2], cols[3], completedAt,
	)
	if err != nil {
		return fmt.Errorf("saving onboarding state: %w", err)
	}
	return nil
}

func marshalColumn(v any) ([]byte, error) {
	switch x := v.(type) {
	case *SubscriptionPayload:
		if x == nil {
			return nil, nil
		}
	case *DomainPayload:
		if x == nil {
			return nil, nil
		}
	case *CompanyProfilePayload:
		if x == nil {
			return nil, nil
		}
	case map[string]PresetResult:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func unmarshalColumn[T any](raw []byte, dst *T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
