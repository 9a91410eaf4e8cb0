// Package api serves a read-only HTTP view of the project memory: records,
// search, session logs, health and Prometheus metrics.
//
// @title memkeeper inspection API
// @version 1.0
// @description Read-only view of a project's memory records and session logs.
// @contact.name memkeeper
// @contact.url https://github.com/goclaw/memkeeper
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @BasePath /
// @schemes http
package api

//go:generate swag init -g router.go -d .,./handlers,./response,../memory,../localstore,../sessionlog -o ../../docs/swagger --outputTypes go

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/goclaw/memkeeper/config"
	_ "github.com/goclaw/memkeeper/docs/swagger"
	"github.com/goclaw/memkeeper/pkg/api/handlers"
	"github.com/goclaw/memkeeper/pkg/api/middleware"
	"github.com/goclaw/memkeeper/pkg/api/response"
	"github.com/goclaw/memkeeper/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	Health   *handlers.HealthHandler
	Memory   *handlers.MemoryHandler
	Sessions *handlers.SessionHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// MetricsHandler serves MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing("/health", metricsPath(h)))
	}
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics, metricsPath(h)))
	}

	RegisterRoutes(r, h)
	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.Memory != nil {
			r.Get("/memories", h.Memory.ListMemories)
			r.Get("/memories/search", h.Memory.SearchMemories)
		}
		if h.Sessions != nil {
			r.Get("/sessions/{date}", h.Sessions.GetSession)
		}
	})

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
	}
	if h.MetricsHandler != nil {
		r.Method(http.MethodGet, metricsPath(h), h.MetricsHandler)
	}

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Route not found", middleware.GetRequestID(req.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed, "Method not allowed", middleware.GetRequestID(req.Context()))
	})
}

func metricsPath(h *Handlers) string {
	if h.MetricsPath == "" {
		return "/metrics"
	}
	return h.MetricsPath
}
