package main

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/goclaw/memkeeper/config"
	"github.com/goclaw/memkeeper/pkg/api"
	"github.com/goclaw/memkeeper/pkg/api/handlers"
	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/version"
)

func (a *app) runServe(ctx context.Context) int {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr())
	if err != nil {
		a.log.Error("failed to listen", "addr", a.cfg.Server.Addr(), "error", err)
		return exitFailure
	}
	if err := a.serve(ctx, ln); err != nil {
		return exitFailure
	}
	return exitOK
}

// serve runs the inspection API on ln until ctx is cancelled. When the
// configuration came from a file, the file is watched and the log level and
// search limit follow it.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	a.log.Info("Starting memkeeper API",
		"version", version.Version,
		"root", a.store.Root(),
		"environment", a.cfg.App.Environment,
	)

	var searchLimit atomic.Int64
	searchLimit.Store(int64(a.cfg.Memory.SearchLimit))

	if a.metrics.Enabled() {
		a.metrics.RegisterRuntimeCollectors()
	}

	h := &api.Handlers{
		Health:   handlers.NewHealthHandler(a.store, remoteName(a.cfg.Remote)),
		Memory:   handlers.NewMemoryHandler(a.store, func() int { return int(searchLimit.Load()) }, a.log),
		Sessions: handlers.NewSessionHandler(a.sessions, a.log),
	}
	if a.metrics.Enabled() {
		h.Metrics = a.metrics
		h.MetricsHandler = a.metrics.Handler()
		h.MetricsPath = a.cfg.Metrics.Path
	}
	server := api.NewHTTPServer(a.cfg, a.log, h)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, a.loader,
			config.WithLogger(a.log),
			config.WithOverrides(a.overrides),
		)
		if err != nil {
			a.log.Warn("config hot reload disabled", "error", err)
		} else {
			current := config.ExtractHotReloadable(a.cfg)
			watcher.OnChange(func(cfg *config.Config) {
				next := config.ExtractHotReloadable(cfg)
				if !next.Changed(current) {
					return
				}
				if next.LogLevel != current.LogLevel {
					a.log.SetLevel(logger.ParseLevel(next.LogLevel))
				}
				searchLimit.Store(int64(next.SearchLimit))
				a.log.Info("configuration reloaded",
					"log_level", next.LogLevel,
					"search_limit", next.SearchLimit,
				)
				current = next
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.log.Warn("config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.log.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
