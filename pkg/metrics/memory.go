package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initMemoryMetrics() {
	m.recordsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkeeper_records_saved_total",
			Help: "Total number of memory records saved",
		},
		[]string{"tier"},
	)

	m.duplicatesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkeeper_duplicates_skipped_total",
			Help: "Total number of candidate records suppressed as near-duplicates",
		},
		[]string{"tier"},
	)

	m.evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkeeper_evictions_total",
			Help: "Total number of local records deleted by the retention cap",
		},
		[]string{"category"},
	)

	m.hookInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkeeper_hook_invocations_total",
			Help: "Total number of hook invocations",
		},
		[]string{"hook", "status"},
	)

	m.registry.MustRegister(m.recordsSaved)
	m.registry.MustRegister(m.duplicatesSkipped)
	m.registry.MustRegister(m.evictions)
	m.registry.MustRegister(m.hookInvocations)
}

// RecordSaved records a record persisted to tier.
func (m *Manager) RecordSaved(tier string) {
	if !m.enabled {
		return
	}
	m.recordsSaved.WithLabelValues(tier).Inc()
}

// RecordDuplicate records a candidate suppressed in tier.
func (m *Manager) RecordDuplicate(tier string) {
	if !m.enabled {
		return
	}
	m.duplicatesSkipped.WithLabelValues(tier).Inc()
}

// RecordEvictions records n records evicted from category.
func (m *Manager) RecordEvictions(category string, n int) {
	if !m.enabled || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(category).Add(float64(n))
}

// RecordHook records one hook invocation and its outcome ("ok" or "error").
func (m *Manager) RecordHook(hook, status string) {
	if !m.enabled {
		return
	}
	m.hookInvocations.WithLabelValues(hook, status).Inc()
}
