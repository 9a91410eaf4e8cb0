// Package metrics provides Prometheus instrumentation for memkeeper. Hook
// invocations are short-lived, so counters are flushed to a node-exporter
// textfile on exit; the serve command exposes them over HTTP instead.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for memkeeper.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Memory tier metrics
	recordsSaved      *prometheus.CounterVec
	duplicatesSkipped *prometheus.CounterVec
	evictions         *prometheus.CounterVec
	hookInvocations   *prometheus.CounterVec

	// Remote tier metrics
	remoteFailures *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	outboxQueued   prometheus.Counter
	outboxFlushed  prometheus.Counter
	outboxDead     prometheus.Counter

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool

	// Textfile is written on exit when set.
	Textfile string

	RemoteDurationBuckets []float64
	HTTPDurationBuckets   []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		RemoteDurationBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		HTTPDurationBuckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}
	if len(cfg.RemoteDurationBuckets) == 0 {
		cfg.RemoteDurationBuckets = DefaultConfig().RemoteDurationBuckets
	}
	if len(cfg.HTTPDurationBuckets) == 0 {
		cfg.HTTPDurationBuckets = DefaultConfig().HTTPDurationBuckets
	}

	m := &Manager{
		registry: prometheus.NewRegistry(),
		enabled:  true,
	}

	m.initMemoryMetrics()
	m.initRemoteMetrics(cfg)
	m.initHTTPMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registry returns the underlying registry, nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterRuntimeCollectors adds Go runtime and process metrics. Only the
// long-running serve command wants them.
func (m *Manager) RegisterRuntimeCollectors() {
	if !m.enabled {
		return
	}
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}
