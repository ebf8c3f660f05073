// Package metrics exposes Prometheus instrumentation for the conversation
// engine. All methods are safe on a nil receiver so callers can wire metrics
// optionally without guarding every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	roundsTotal     *prometheus.CounterVec
	roundDuration   prometheus.Histogram
	roundIterations prometheus.Histogram

	modelCallsTotal   *prometheus.CounterVec
	modelCallDuration prometheus.Histogram
	modelRetriesTotal prometheus.Counter

	toolInvocationsTotal *prometheus.CounterVec
	toolDuration         *prometheus.HistogramVec

	safetyBlocksTotal *prometheus.CounterVec

	sessionsActive      prometheus.Gauge
	sessionsTotal       prometheus.Counter
	framesRejectedTotal *prometheus.CounterVec
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		roundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "rounds_total",
			Help:      "Conversation rounds completed, by outcome.",
		}, []string{"outcome"}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "round_duration_seconds",
			Help:      "Wall time of one conversation round.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		roundIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "round_model_iterations",
			Help:      "Model iterations used within a round.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
		modelCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "model_calls_total",
			Help:      "Model generate calls, by status.",
		}, []string{"status"}),
		modelCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "model_call_duration_seconds",
			Help:      "Latency of a single model generate call.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		modelRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "model_retries_total",
			Help:      "Model calls retried after a transient failure.",
		}),
		toolInvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "tool_invocations_total",
			Help:      "Tool dispatches, by tool and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "tool_duration_seconds",
			Help:      "Latency of tool handler execution.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"tool"}),
		safetyBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "safety_blocks_total",
			Help:      "Inbound messages blocked by the safety gate, by reason.",
		}, []string{"reason"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "concierge",
			Name:      "sessions_active",
			Help:      "Currently registered sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "sessions_total",
			Help:      "Sessions opened since start.",
		}),
		framesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "frames_rejected_total",
			Help:      "Inbound frames rejected before processing, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.roundsTotal, m.roundDuration, m.roundIterations,
		m.modelCallsTotal, m.modelCallDuration, m.modelRetriesTotal,
		m.toolInvocationsTotal, m.toolDuration,
		m.safetyBlocksTotal,
		m.sessionsActive, m.sessionsTotal, m.framesRejectedTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RoundCompleted records one finished conversation round.
func (m *Metrics) RoundCompleted(outcome string, duration time.Duration, iterations int) {
	if m == nil {
		return
	}
	m.roundsTotal.WithLabelValues(outcome).Inc()
	m.roundDuration.Observe(duration.Seconds())
	m.roundIterations.Observe(float64(iterations))
}

// ModelCall records one model generate attempt.
func (m *Metrics) ModelCall(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.modelCallsTotal.WithLabelValues(status).Inc()
	m.modelCallDuration.Observe(duration.Seconds())
}

// ModelRetried counts a retry after a transient model failure.
func (m *Metrics) ModelRetried() {
	if m == nil {
		return
	}
	m.modelRetriesTotal.Inc()
}

// ToolInvoked records one tool dispatch; satisfies the dispatcher's
// observer contract.
func (m *Metrics) ToolInvoked(name string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.toolInvocationsTotal.WithLabelValues(name, status).Inc()
	m.toolDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// SafetyBlocked counts a message stopped by the safety gate.
func (m *Metrics) SafetyBlocked(reason string) {
	if m == nil {
		return
	}
	m.safetyBlocksTotal.WithLabelValues(reason).Inc()
}

// SessionOpened tracks a new session registration.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

// SessionClosed tracks a session leaving the registry.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// FrameRejected counts an inbound frame dropped before processing.
func (m *Metrics) FrameRejected(reason string) {
	if m == nil {
		return
	}
	m.framesRejectedTotal.WithLabelValues(reason).Inc()
}
