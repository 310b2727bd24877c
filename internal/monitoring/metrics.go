// Package monitoring provides Prometheus instrumentation for the sandbox
// runner: channel traffic, proxy call outcomes, coordinator refreshes, and
// entry lifecycle counts.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one sandbox process.
type Metrics struct {
	// Channel metrics
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec

	// Proxy metrics
	ProxyRequests prometheus.Counter
	ProxyInFlight prometheus.Gauge
	ProxyDuration prometheus.Histogram
	ProxyFailures *prometheus.CounterVec

	// Coordinator metrics
	Refreshes *prometheus.CounterVec

	// Entry metrics
	EntriesActive prometheus.Gauge
	SetupFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own registry, so multiple
// instances can coexist in tests.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_messages_received_total",
				Help: "Inbound control messages by type",
			},
			[]string{"type"},
		),
		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_messages_sent_total",
				Help: "Outbound control messages by type",
			},
			[]string{"type"},
		),

		ProxyRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_proxy_requests_total",
				Help: "Outbound proxied HTTP calls issued",
			},
		),
		ProxyInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_proxy_in_flight",
				Help: "Pending correlated calls awaiting a response",
			},
		),
		ProxyDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_proxy_duration_seconds",
				Help:    "Proxied call round-trip duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ProxyFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_proxy_failures_total",
				Help: "Proxied call failures by reason",
			},
			[]string{"reason"},
		),

		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_coordinator_refreshes_total",
				Help: "Coordinator refresh outcomes",
			},
			[]string{"coordinator", "outcome"},
		),

		EntriesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_entries_active",
				Help: "Entries currently in the Running state",
			},
		),
		SetupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_setup_failures_total",
				Help: "Entry setup failures by classified error type",
			},
			[]string{"error_type"},
		),
	}
}

// Registry exposes the underlying registry for scraping or test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveProxyCall records one completed proxied call.
func (m *Metrics) ObserveProxyCall(start time.Time) {
	m.ProxyDuration.Observe(time.Since(start).Seconds())
}

// RecordRefresh records a coordinator refresh outcome.
func (m *Metrics) RecordRefresh(name string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.Refreshes.WithLabelValues(name, outcome).Inc()
}
