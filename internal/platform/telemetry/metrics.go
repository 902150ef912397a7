package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors used across ledgerline.
type Metrics struct {
	registry *prometheus.Registry

	AuthzDecisions       *prometheus.CounterVec
	OnboardingSteps      *prometheus.CounterVec
	ProvisioningDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		AuthzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerline",
			Name:      "authz_decisions_total",
			Help:      "Authorization gate decisions by permission and outcome.",
		}, []string{"permission", "allowed"}),
		OnboardingSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerline",
			Name:      "onboarding_steps_total",
			Help:      "Onboarding step submissions by step and outcome.",
		}, []string{"step", "outcome"}),
		ProvisioningDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledgerline",
			Name:      "provisioning_duration_seconds",
			Help:      "Time spent seeding each preset during onboarding.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"preset"}),
	}
	reg.MustRegister(
		m.AuthzDecisions,
		m.OnboardingSteps,
		m.ProvisioningDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecision counts one gate decision. Safe on a nil receiver.
func (m *Metrics) ObserveDecision(permission string, allowed bool) {
	if m == nil {
		return
	}
	m.AuthzDecisions.WithLabelValues(permission, strconv.FormatBool(allowed)).Inc()
}

// ObserveStep counts one onboarding step submission. Safe on a nil receiver.
func (m *Metrics) ObserveStep(step int, outcome string) {
	if m == nil {
		return
	}
	m.OnboardingSteps.WithLabelValues(strconv.Itoa(step), outcome).Inc()
}

// ObservePreset records how long a preset seeder ran. Safe on a nil receiver.
func (m *Metrics) ObservePreset(preset string, seconds float64) {
	if m == nil {
		return
	}
	m.ProvisioningDuration.WithLabelValues(preset).Observe(seconds)
}
