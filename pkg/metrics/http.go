package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

func (m *Manager) initHTTPMetrics(cfg Config) {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkeeper_api_requests_total",
			Help: "Requests served by the inspection API",
		},
		[]string{"method", "route", "code"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memkeeper_api_request_duration_seconds",
			Help:    "Inspection API latency by route and status class",
			Buckets: cfg.HTTPDurationBuckets,
		},
		[]string{"method", "route", "class"},
	)

	m.registry.MustRegister(m.httpRequests, m.httpDuration)
}

// RecordHTTPRequest counts one API request. route is the matched route
// pattern, never the raw URL path, to keep label cardinality bounded.
func (m *Manager) RecordHTTPRequest(method, route, code string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route, statusClass(code)).Observe(duration.Seconds())
}

// statusClass folds "404" into "4xx". Anything unparseable is "unknown".
func statusClass(code string) string {
	if len(code) != 3 || code[0] < '1' || code[0] > '5' {
		return "unknown"
	}
	return code[:1] + "xx"
}

// observe records v on o, attaching the span of ctx as an exemplar when
// there is one and o supports it.
func observe(ctx context.Context, o prometheus.Observer, v float64) {
	if labels, ok := traceExemplarLabels(ctx); ok {
		if eo, ok := o.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, labels)
			return
		}
	}
	o.Observe(v)
}

func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	if ctx == nil {
		return nil, false
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil, false
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String(), "span_id": sc.SpanID().String()}, true
}
