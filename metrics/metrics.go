// Package metrics provides Prometheus metrics for the session lifecycle and
// the hosted-service adapters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SDK operations.
type Metrics struct {
	enabled bool

	// Session lifecycle metrics
	bootstrapTotal  *prometheus.CounterVec
	authEventsTotal *prometheus.CounterVec

	// Hydration metrics
	hydrationsTotal   *prometheus.CounterVec
	hydrationDuration prometheus.Histogram

	// Access guard metrics
	guardDecisionsTotal *prometheus.CounterVec

	// Collaborator metrics
	checkoutSessionsTotal *prometheus.CounterVec
	uploadBytesTotal      prometheus.Counter
	feedConnectionState   *prometheus.GaugeVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.bootstrapTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmila_bootstrap_total",
		Help: "Session bootstrap runs by outcome",
	}, []string{"outcome"})

	m.authEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmila_auth_events_total",
		Help: "Auth-state events by kind and handling",
	}, []string{"kind", "handled"})

	m.hydrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmila_profile_hydrations_total",
		Help: "Profile hydrations by terminal state",
	}, []string{"result"})

	m.hydrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filmila_profile_hydration_duration_seconds",
		Help:    "Profile hydration duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.guardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmila_guard_decisions_total",
		Help: "Access guard decisions",
	}, []string{"decision"})

	m.checkoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filmila_checkout_sessions_total",
		Help: "Checkout sessions created by result",
	}, []string{"result"})

	m.uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filmila_upload_bytes_total",
		Help: "Bytes uploaded to object storage",
	})

	m.feedConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "filmila_feed_connection_state",
		Help: "Realtime feed connection state (0=polling fallback, 1=connected)",
	}, []string{"feed"})

	return m
}

// RecordBootstrap records one bootstrap run. outcome: session, no_session, error.
func (m *Metrics) RecordBootstrap(outcome string) {
	if !m.enabled {
		return
	}
	m.bootstrapTotal.WithLabelValues(outcome).Inc()
}

// RecordAuthEvent records one processed auth event.
func (m *Metrics) RecordAuthEvent(kind string, handled bool) {
	if !m.enabled {
		return
	}
	h := "false"
	if handled {
		h = "true"
	}
	m.authEventsTotal.WithLabelValues(kind, h).Inc()
}

// RecordHydration records a terminal hydration state and its duration.
// result: hydrated, created, failed, skipped.
func (m *Metrics) RecordHydration(result string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	m.hydrationsTotal.WithLabelValues(result).Inc()
	m.hydrationDuration.Observe(durationSeconds)
}

// RecordGuardDecision records one access guard decision.
func (m *Metrics) RecordGuardDecision(decision string) {
	if !m.enabled {
		return
	}
	m.guardDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordCheckout records a checkout session creation attempt.
func (m *Metrics) RecordCheckout(result string) {
	if !m.enabled {
		return
	}
	m.checkoutSessionsTotal.WithLabelValues(result).Inc()
}

// RecordUploadBytes adds to the uploaded byte counter.
func (m *Metrics) RecordUploadBytes(n int64) {
	if !m.enabled {
		return
	}
	m.uploadBytesTotal.Add(float64(n))
}

// SetFeedConnected flips the realtime feed gauge between push (true) and
// polling fallback (false).
func (m *Metrics) SetFeedConnected(feed string, connected bool) {
	if !m.enabled {
		return
	}
	state := 0.0
	if connected {
		state = 1.0
	}
	m.feedConnectionState.WithLabelValues(feed).Set(state)
}
