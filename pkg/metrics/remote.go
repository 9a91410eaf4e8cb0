package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initRemoteMetrics(cfg Config) {
	m.remoteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkeeper_remote_failures_total",
			Help: "Total number of remote tier calls that failed after retries",
		},
		[]string{"op"},
	)

	m.remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memkeeper_remote_call_duration_seconds",
			Help:    "Remote tier call duration in seconds, retries included",
			Buckets: cfg.RemoteDurationBuckets,
		},
		[]string{"op"},
	)

	m.outboxQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memkeeper_outbox_queued_total",
			Help: "Total number of global records queued for a later sync",
		},
	)

	m.outboxFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memkeeper_outbox_flushed_total",
			Help: "Total number of queued records delivered to the remote tier",
		},
	)

	m.outboxDead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memkeeper_outbox_dead_lettered_total",
			Help: "Total number of queued records given up on by sync",
		},
	)

	m.registry.MustRegister(m.remoteFailures)
	m.registry.MustRegister(m.remoteDuration)
	m.registry.MustRegister(m.outboxQueued)
	m.registry.MustRegister(m.outboxFlushed)
	m.registry.MustRegister(m.outboxDead)
}

// RecordRemoteCall records the duration of a remote call and, when err is
// non-nil, a failure. The trace ID of ctx is attached as an exemplar.
func (m *Manager) RecordRemoteCall(ctx context.Context, op string, duration time.Duration, err error) {
	if !m.enabled {
		return
	}
	observe(ctx, m.remoteDuration.WithLabelValues(op), duration.Seconds())
	if err != nil {
		m.remoteFailures.WithLabelValues(op).Inc()
	}
}

// RecordOutboxQueued records a record queued for sync.
func (m *Manager) RecordOutboxQueued() {
	if !m.enabled {
		return
	}
	m.outboxQueued.Inc()
}

// RecordOutboxFlushed records a queued record delivered by sync.
func (m *Manager) RecordOutboxFlushed() {
	if !m.enabled {
		return
	}
	m.outboxFlushed.Inc()
}

// RecordOutboxDeadLettered records a queued record moved to the dead
// letters.
func (m *Manager) RecordOutboxDeadLettered() {
	if !m.enabled {
		return
	}
	m.outboxDead.Inc()
}
