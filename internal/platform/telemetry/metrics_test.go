package telemetry_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ledgerline/ledgerline/internal/platform/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveDecision(t *testing.T) {
	m := telemetry.NewMetrics()

	m.ObserveDecision("invoice:read", true)
	m.ObserveDecision("invoice:read", true)
	m.ObserveDecision("invoice:create", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthzDecisions.WithLabelValues("invoice:read", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisions.WithLabelValues("invoice:create", "false")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.ObserveDecision("invoice:read", true)
		m.ObserveStep(1, "ok")
		m.ObservePreset("currency", 0.1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := telemetry.NewMetrics()
	m.ObserveStep(1, "ok")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ledgerline_onboarding_steps_total{outcome="ok",step="1"} 1`)
}
