package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	method, path, status string
}

type mockMetricsRecorder struct {
	requests []recordedRequest
}

func (m *mockMetricsRecorder) RecordHTTPRequest(method, path, status string, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{method, path, status})
}

func TestMetrics_Success(t *testing.T) {
	mock := &mockMetricsRecorder{}

	handler := Metrics(mock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/memories", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(mock.requests) != 1 {
		t.Fatalf("Expected 1 request recorded, got %d", len(mock.requests))
	}
	if got := mock.requests[0]; got != (recordedRequest{"GET", "/api/v1/memories", "200"}) {
		t.Errorf("recorded %+v", got)
	}
}

func TestMetrics_ErrorStatus(t *testing.T) {
	mock := &mockMetricsRecorder{}

	handler := Metrics(mock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/2026-01-02", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(mock.requests) != 1 {
		t.Fatalf("Expected 1 request recorded, got %d", len(mock.requests))
	}
	if got := mock.requests[0]; got.status != "404" || got.path != "/api/v1/sessions/:date" {
		t.Errorf("recorded %+v", got)
	}
}

func TestMetrics_SkipsConfiguredPaths(t *testing.T) {
	mock := &mockMetricsRecorder{}
	handler := Metrics(mock, "/internal/metrics")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if len(mock.requests) != 1 || mock.requests[0].path != "/metrics" {
		t.Errorf("recorded %+v, want only /metrics", mock.requests)
	}
}

func TestMetrics_UnmatchedRoutesShareALabel(t *testing.T) {
	mock := &mockMetricsRecorder{}

	r := chi.NewRouter()
	r.Use(Metrics(mock))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/wp-login.php", "/.env", "/admin/123"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if len(mock.requests) != 3 {
		t.Fatalf("recorded %d requests", len(mock.requests))
	}
	for _, got := range mock.requests {
		if got.path != unmatchedRoute || got.status != "404" {
			t.Errorf("recorded %+v", got)
		}
	}
}

func TestMetrics_PanicIsRecorded(t *testing.T) {
	mock := &mockMetricsRecorder{}
	handler := Metrics(mock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/memories", nil))
	}()

	if len(mock.requests) != 1 || mock.requests[0].status != "500" {
		t.Errorf("recorded %+v", mock.requests)
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	mock := &mockMetricsRecorder{}

	r := chi.NewRouter()
	r.Use(Metrics(mock))
	r.Get("/api/v1/sessions/{date}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sessions/2026-03-04", nil))

	if len(mock.requests) != 1 || mock.requests[0].path != "/api/v1/sessions/{date}" {
		t.Errorf("recorded %+v", mock.requests)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/memories", "/api/v1/memories"},
		{"/api/v1/sessions/2026-01-02", "/api/v1/sessions/:date"},
		{"/api/v1/items/123", "/api/v1/items/:id"},
		{"/api/v1/items/550e8400-e29b-41d4-a716-446655440000", "/api/v1/items/:id"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
