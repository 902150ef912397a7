package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/ledgerline/ledgerline/internal/platform/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves audit query endpoints.
type Handler struct {
	db    database.Querier
	store *Store
}

// NewHandler creates an audit query handler. A nil db serves empty results.
func NewHandler(db database.Querier) *Handler {
	return &Handler{db: db, store: NewStore()}
}

// HandleListEvents returns audit events for the current tenant.
// GET /api/v1/audit/events?limit=50&action_prefix=onboarding.&after=<RFC3339>
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(middleware.GetTenantID(r.Context()))
	if err != nil {
		writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return
	}

	params, errMsg := parseListParams(r)
	if errMsg != "" {
		writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}
	params.TenantID = tenantID

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []StoredEvent{}, "count": 0})
		return
	}

	events, err := h.store.ListEvents(r.Context(), h.db, params)
	if err != nil {
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if events == nil {
		events = []StoredEvent{}
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func parseListParams(r *http.Request) (ListEventsParams, string) {
	q := r.URL.Query()
	p := ListEventsParams{Limit: defaultListLimit}

	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxListLimit {
			p.Limit = n
		}
	}
	for key, dst := range map[string]**string{
		"action":        &p.Action,
		"action_prefix": &p.ActionPrefix,
		"resource_type": &p.ResourceType,
		"source":        &p.Source,
	} {
		if v := q.Get(key); v != "" {
			*dst = &v
		}
	}
	for key, dst := range map[string]**uuid.UUID{"user_id": &p.UserID, "resource_id": &p.ResourceID} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return p, "invalid " + key
		}
		*dst = &id
	}
	for key, dst := range map[string]**time.Time{"after": &p.After, "before": &p.Before} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return p, "invalid " + key + " timestamp"
		}
		*dst = &ts
	}
	return p, ""
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
