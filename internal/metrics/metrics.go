package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	FailuresTotal     *prometheus.CounterVec
	ReplayRejects     *prometheus.CounterVec
	SinkFailuresTotal prometheus.Counter
	ProcessDuration   *prometheus.HistogramVec
	ReplayCacheSize   *prometheus.GaugeVec
}

// New creates and registers all gateway metrics against the given registry.
// A nil registry gets its own private one (useful in tests).
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_requests_total",
				Help: "Webhook requests processed, by connector and outcome.",
			},
			[]string{"connector", "outcome"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_failures_total",
				Help: "Pipeline failures, by connector and failure code.",
			},
			[]string{"connector", "code"},
		),
		ReplayRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_replay_rejections_total",
				Help: "Requests rejected by the replay cache.",
			},
			[]string{"connector"},
		),
		SinkFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookgate_sink_failures_total",
				Help: "Decision persistence failures (non-fatal).",
			},
		),
		ProcessDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hookgate_process_duration_seconds",
				Help:    "Pipeline processing duration.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"connector"},
		),
		ReplayCacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hookgate_replay_cache_entries",
				Help: "Live entries in the per-connector replay cache.",
			},
			[]string{"connector"},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.FailuresTotal,
		m.ReplayRejects,
		m.SinkFailuresTotal,
		m.ProcessDuration,
		m.ReplayCacheSize,
	)
	return m
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
