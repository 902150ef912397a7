package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ledgerline/ledgerline/internal/platform/middleware"
	"github.com/stretchr/testify/assert"
)

const handlerTenantID = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"

func serveList(t *testing.T, target string, tenantID string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(nil)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if tenantID != "" {
		req = req.WithContext(middleware.WithTenantID(req.Context(), tenantID))
	}
	w := httptest.NewRecorder()
	h.HandleListEvents(w, req)
	return w
}

func TestHandleListEvents_NilPool(t *testing.T) {
	w := serveList(t, "/api/v1/audit/events", handlerTenantID)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestHandleListEvents_MissingTenant(t *testing.T) {
	w := serveList(t, "/api/v1/audit/events", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListEvents_Filters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"limit", "?limit=10", http.StatusOK},
		{"limit out of range falls back", "?limit=9999", http.StatusOK},
		{"action", "?action=role.created", http.StatusOK},
		{"resource type", "?resource_type=onboarding", http.StatusOK},
		{"source", "?source=system", http.StatusOK},
		{"before", "?before=2026-02-26T00:00:00Z", http.StatusOK},
		{"user id", "?user_id=" + handlerTenantID, http.StatusOK},
		{"composed", "?action=user.created&resource_type=user&source=api&limit=25", http.StatusOK},
		{"action prefix", "?action_prefix=onboarding.", http.StatusOK},
		{"resource id", "?resource_id=" + handlerTenantID, http.StatusOK},
		{"invalid user id", "?user_id=not-a-uuid", http.StatusBadRequest},
		{"invalid resource id", "?resource_id=42", http.StatusBadRequest},
		{"invalid after", "?after=yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveList(t, "/api/v1/audit/events"+tt.query, handlerTenantID)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestParseListParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/audit/events?limit=5&action=access.denied&after=2026-01-01T00:00:00Z", nil)

	p, errMsg := parseListParams(req)

	assert.Empty(t, errMsg)
	assert.Equal(t, 5, p.Limit)
	if assert.NotNil(t, p.Action) {
		assert.Equal(t, ActionAccessDenied, *p.Action)
	}
	assert.NotNil(t, p.After)
	assert.Nil(t, p.Before)
	assert.Nil(t, p.ActionPrefix)
}

func TestParseListParams_InvalidResourceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events?resource_id=abc", nil)
	_, errMsg := parseListParams(req)
	assert.Equal(t, "invalid resource_id", errMsg)
}
