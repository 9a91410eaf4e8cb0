package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

func TestStatusClass(t *testing.T) {
	for code, want := range map[string]string{
		"200": "2xx",
		"404": "4xx",
		"503": "5xx",
		"":    "unknown",
		"99":  "unknown",
		"700": "unknown",
	} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestRecordHTTPRequest_Labels(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordHTTPRequest("GET", "/api/v1/sessions/{date}", "404", 3*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/sessions/{date}", "404", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/sessions/{date}", "404")); got != 2 {
		t.Fatalf("requests = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.httpDuration, "memkeeper_api_request_duration_seconds"); n != 1 {
		t.Fatalf("duration series = %d, want 1", n)
	}
}

func TestRecordRemoteCall_Exemplar(t *testing.T) {
	m := NewManager(DefaultConfig())
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xaa, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	m.RecordRemoteCall(trace.ContextWithSpanContext(context.Background(), sc), "search", 40*time.Millisecond, nil)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "memkeeper_remote_call_duration_seconds" {
			continue
		}
		for _, b := range mf.GetMetric()[0].GetHistogram().GetBucket() {
			ex := b.GetExemplar()
			if ex == nil {
				continue
			}
			for _, lp := range ex.GetLabel() {
				if lp.GetName() == "trace_id" && strings.HasPrefix(lp.GetValue(), "aa") {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected a trace_id exemplar on the remote duration histogram")
	}
}

func TestTraceExemplarLabels_NoSpan(t *testing.T) {
	if labels, ok := traceExemplarLabels(context.Background()); ok {
		t.Fatalf("unexpected exemplar labels %v", labels)
	}
}
