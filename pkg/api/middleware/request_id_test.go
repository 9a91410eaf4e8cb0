package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name          string
		header        string
		wantGenerated bool
	}{
		{name: "generate when missing", header: "", wantGenerated: true},
		{name: "reuse well-formed id", header: "hook-run_42.a", wantGenerated: false},
		{name: "replace id with spaces", header: "bad id", wantGenerated: true},
		{name: "replace id with newline", header: "x\nlevel=error", wantGenerated: true},
		{name: "replace overlong id", header: strings.Repeat("a", 65), wantGenerated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/memories", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			echoed := w.Header().Get(RequestIDHeader)
			if echoed == "" || echoed != captured {
				t.Fatalf("response id %q, context id %q", echoed, captured)
			}

			if tt.wantGenerated {
				if _, err := uuid.Parse(captured); err != nil {
					t.Errorf("generated id %q is not a UUID: %v", captured, err)
				}
			} else if captured != tt.header {
				t.Errorf("request id = %q, want %q", captured, tt.header)
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
