// Package metrics provides Prometheus metrics for the bot service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes
const (
	OutcomeAnswered    = "answered"
	OutcomeLoggedIn    = "logged_in"
	OutcomeSignIn      = "sign_in"
	OutcomePending     = "sign_in_pending"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeLoggedOut   = "logged_out"
	OutcomeUnavailable = "unavailable"
	OutcomeIgnored     = "ignored"
	OutcomeError       = "error"
)

// Metrics holds all Prometheus metrics of the service
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal    *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	TurnsInFlight prometheus.Gauge

	// Backend metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// Activity metrics
	ActivitiesTotal *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all metrics on reg
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.TurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_bridge_turns_total",
			Help: "Total number of processed turns by outcome",
		},
		[]string{"outcome"},
	)

	m.TurnDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_bridge_turn_duration_seconds",
			Help:    "Duration of turns in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	m.TurnsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_bridge_turns_in_flight",
			Help: "Number of turns currently being processed",
		},
	)

	m.BackendRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_bridge_backend_requests_total",
			Help: "Total number of serving endpoint requests",
		},
		[]string{"dialect", "status"},
	)

	m.BackendRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_bridge_backend_request_duration_seconds",
			Help:    "Duration of serving endpoint requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"dialect"},
	)

	m.ActivitiesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_bridge_activities_total",
			Help: "Total number of inbound activities by type",
		},
		[]string{"type"},
	)

	return m
}

// Registry returns the registry used for /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTurn records a finished turn
func (m *Metrics) RecordTurn(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(duration.Seconds())
}

// RecordBackendRequest records a serving endpoint call
func (m *Metrics) RecordBackendRequest(dialect string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BackendRequestsTotal.WithLabelValues(dialect, status).Inc()
	m.BackendRequestDuration.WithLabelValues(dialect).Observe(duration.Seconds())
}

// RecordActivity records an inbound activity
func (m *Metrics) RecordActivity(activityType string) {
	if m == nil {
		return
	}
	m.ActivitiesTotal.WithLabelValues(activityType).Inc()
}

// TurnStarted increments the in-flight gauge and returns a func that decrements it
func (m *Metrics) TurnStarted() func() {
	if m == nil {
		return func() {}
	}
	m.TurnsInFlight.Inc()
	return m.TurnsInFlight.Dec
}
