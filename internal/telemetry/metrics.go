package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dyneval"

// Emission result labels.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
)

// Receiver event labels.
const (
	EventValue       = "value"
	EventInvalidated = "invalidated"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	Emissions      *prometheus.CounterVec
	ReceiverEvents *prometheus.CounterVec
	InitFailures   prometheus.Counter
}

// NewMetrics registers the collectors on reg. Use a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Evaluation subscriptions currently collecting.",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Evaluation subscriptions started.",
		}),
		Emissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emissions_total",
			Help:      "Records emitted to subscribers, by result.",
		}, []string{"result"}),
		ReceiverEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receiver_events_total",
			Help:      "Receiver callbacks applied to session state, by event.",
		}, []string{"event"}),
		InitFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "init_failures_total",
			Help:      "Sessions that failed to bind or start their receivers.",
		}),
	}
}

// SessionStarted records a new subscription.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionEnded records the end of a subscription.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// Emission records one record handed to a subscriber.
func (m *Metrics) Emission(invalid bool) {
	if m == nil {
		return
	}
	result := ResultValid
	if invalid {
		result = ResultInvalid
	}
	m.Emissions.WithLabelValues(result).Inc()
}

// ReceiverEvent records one receiver callback.
func (m *Metrics) ReceiverEvent(event string) {
	if m == nil {
		return
	}
	m.ReceiverEvents.WithLabelValues(event).Inc()
}

// InitFailed records a session initialization failure.
func (m *Metrics) InitFailed() {
	if m == nil {
		return
	}
	m.InitFailures.Inc()
}
