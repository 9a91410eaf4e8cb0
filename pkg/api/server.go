package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/memkeeper/config"
	"github.com/goclaw/memkeeper/pkg/logger"
)

// Server is the lifecycle of the inspection API.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPServer serves the read-only inspection API over HTTP.
type HTTPServer struct {
	cfg    config.ServerConfig
	srv    *http.Server
	router chi.Router
	log    logger.Logger

	mu    sync.Mutex
	bound net.Addr
}

// NewHTTPServer builds the router and the http.Server for cfg. Request
// contexts carry log, so handlers can reach it with logger.FromContext.
func NewHTTPServer(cfg *config.Config, log logger.Logger, h *Handlers) *HTTPServer {
	router := NewRouter(cfg, log, h)
	apiLog := log.With("component", "api")

	return &HTTPServer{
		cfg:    cfg.Server,
		router: router,
		log:    apiLog,
		srv: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
			MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
			BaseContext: func(net.Listener) context.Context {
				return apiLog.WithContext(context.Background())
			},
		},
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Addr is the address the server is listening on, or nil before Serve.
// With port 0 in the config this is where the kernel-chosen port shows up.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Start listens on the configured address and serves until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves requests on ln until Shutdown. A clean shutdown returns nil.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()

	s.log.Info("inspection API listening",
		"addr", ln.Addr().String(),
		"read_timeout", s.cfg.ReadTimeout,
		"write_timeout", s.cfg.WriteTimeout,
	)

	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.log.Error("inspection API stopped unexpectedly", "error", err)
	return fmt.Errorf("serve inspection API: %w", err)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info("inspection API shutting down")
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("inspection API shutdown incomplete", "error", err)
		return fmt.Errorf("shutdown inspection API: %w", err)
	}
	s.log.Debug("inspection API stopped")
	return nil
}
