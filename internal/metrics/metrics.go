package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsConnected prometheus.Gauge
	SessionsRestored  prometheus.Counter
	SessionsDeleted   prometheus.Counter

	// Connection metrics
	ConnectAttemptsTotal *prometheus.CounterVec
	ReconnectsTotal      *prometheus.CounterVec
	PairingCodesIssued   prometheus.Counter
	PairingWaitDuration  prometheus.Histogram
	IdleEvictionsTotal   prometheus.Counter

	// Messaging metrics
	MessagesSentTotal *prometheus.CounterVec
	SendErrorsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Session metrics
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabridge_sessions_active",
				Help: "Number of sessions in the registry",
			},
		),
		SessionsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabridge_sessions_connected",
				Help: "Number of sessions with a live connection",
			},
		),
		SessionsRestored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wabridge_sessions_restored_total",
				Help: "Total number of sessions restored at startup",
			},
		),
		SessionsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wabridge_sessions_deleted_total",
				Help: "Total number of sessions deleted",
			},
		),

		// Connection metrics
		ConnectAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabridge_connect_attempts_total",
				Help: "Total number of connection attempts",
			},
			[]string{"outcome"},
		),
		ReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabridge_reconnects_total",
				Help: "Total number of scheduled reconnections",
			},
			[]string{"reason"},
		),
		PairingCodesIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wabridge_pairing_codes_issued_total",
				Help: "Total number of pairing codes issued",
			},
		),
		PairingWaitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wabridge_pairing_wait_duration_seconds",
				Help:    "Time callers spent blocked waiting for a pairing outcome",
				Buckets: prometheus.DefBuckets,
			},
		),
		IdleEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wabridge_idle_evictions_total",
				Help: "Total number of idle sessions disconnected by the evictor",
			},
		),

		// Messaging metrics
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabridge_messages_sent_total",
				Help: "Total number of messages sent",
			},
			[]string{"kind"},
		),
		SendErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabridge_send_errors_total",
				Help: "Total number of send failures",
			},
			[]string{"kind"},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.SessionsConnected)
	m.registry.MustRegister(m.SessionsRestored)
	m.registry.MustRegister(m.SessionsDeleted)

	m.registry.MustRegister(m.ConnectAttemptsTotal)
	m.registry.MustRegister(m.ReconnectsTotal)
	m.registry.MustRegister(m.PairingCodesIssued)
	m.registry.MustRegister(m.PairingWaitDuration)
	m.registry.MustRegister(m.IdleEvictionsTotal)

	m.registry.MustRegister(m.MessagesSentTotal)
	m.registry.MustRegister(m.SendErrorsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
