package middleware

import (
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsRecorder receives one observation per served request.
type MetricsRecorder interface {
	RecordHTTPRequest(method, route, status string, duration time.Duration)
}

// unmatchedRoute labels requests no route matched, so scanners probing
// random paths cannot grow the label set.
const unmatchedRoute = "unmatched"

var datePart = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Metrics records method, route, status and latency of every request except
// those whose path is in skip (typically the metrics endpoint itself). A
// panicking handler is recorded as a 500 before the panic continues.
func Metrics(recorder MetricsRecorder, skip ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(skip, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := wrapResponseWriter(w)
			defer func() {
				status := rw.statusCode
				p := recover()
				if p != nil {
					status = http.StatusInternalServerError
				}
				recorder.RecordHTTPRequest(r.Method, routeLabel(r), strconv.Itoa(status), time.Since(start))
				if p != nil {
					panic(p)
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// routeLabel is the matched chi route pattern. Outside a chi router the URL
// path is used with dates and IDs folded into placeholders.
func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return normalizePath(r.URL.Path)
	}
	if pattern := rc.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		switch {
		case part == "":
		case len(part) == 36 && strings.Count(part, "-") == 4:
			parts[i] = ":id"
		case datePart.MatchString(part):
			parts[i] = ":date"
		default:
			if _, err := strconv.Atoi(part); err == nil {
				parts[i] = ":id"
			}
		}
	}
	return strings.Join(parts, "/")
}
