package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/ledgerline/internal/platform/database"
)

// eventColumns is the insert column order; eventArgs must match it.
const eventColumns = "tenant_id, user_id, action, resource_type, resource_id, metadata, source"

const eventColumnCount = 7

// Store reads and writes the audit_events table.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes events in one multi-row INSERT.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting %d audit events: %w", len(events), err)
	}
	return nil
}

func eventArgs(e Event) ([]any, error) {
	var meta []byte
	if e.Metadata != nil {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return nil, fmt.Errorf("encoding metadata of %s: %w", e.Action, err)
		}
	}
	return []any{e.TenantID, e.UserID, e.Action, e.ResourceType, e.ResourceID, meta, e.Source}, nil
}

func buildBatchInsert(events []Event) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO audit_events (" + eventColumns + ") VALUES ")

	args := make([]any, 0, len(events)*eventColumnCount)
	for i, e := range events {
		row, err := eventArgs(e)
		if err != nil {
			return "", nil, err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteByte(')')
		args = append(args, row...)
	}
	return b.String(), args, nil
}

// ListEventsParams filters an audit query. TenantID is always applied;
// nil filters are skipped.
type ListEventsParams struct {
	TenantID     uuid.UUID
	Action       *string
	ActionPrefix *string // e.g. "onboarding." for the whole workflow trail
	ResourceType *string
	ResourceID   *uuid.UUID
	UserID       *uuid.UUID
	Source       *string
	After        *time.Time
	Before       *time.Time
	Limit        int
}

// StoredEvent is an audit event as read back from the database.
type StoredEvent struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	UserID       *uuid.UUID      `json:"user_id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListEvents returns the newest events matching p.
func (s *Store) ListEvents(ctx context.Context, db database.Querier, p ListEventsParams) ([]StoredEvent, error) {
	sql, args := buildListQuery(p)
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Metadata, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// filter accumulates WHERE conditions with positional arguments.
type filter struct {
	conds []string
	args  []any
}

// add appends cond, whose single %d is replaced by the argument's position.
func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

func addIf[T any](f *filter, cond string, v *T) {
	if v != nil {
		f.add(cond, *v)
	}
}

func buildListQuery(p ListEventsParams) (string, []any) {
	f := &filter{}
	f.add("tenant_id = $%d", p.TenantID)
	addIf(f, "action = $%d", p.Action)
	addIf(f, "starts_with(action, $%d)", p.ActionPrefix)
	addIf(f, "resource_type = $%d", p.ResourceType)
	addIf(f, "resource_id = $%d", p.ResourceID)
	addIf(f, "user_id = $%d", p.UserID)
	addIf(f, "source = $%d", p.Source)
	addIf(f, "created_at > $%d", p.After)
	addIf(f, "created_at < $%d", p.Before)

	args := append(f.args, p.Limit)
	sql := "SELECT id, " + eventColumns + ", created_at FROM audit_events WHERE " +
		strings.Join(f.conds, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	return sql, args
}
