package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/memkeeper/config"
	"github.com/goclaw/memkeeper/pkg/hooks"
	"github.com/goclaw/memkeeper/pkg/localstore"
	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/metrics"
	"github.com/goclaw/memkeeper/pkg/outbox"
	"github.com/goclaw/memkeeper/pkg/remote"
	"github.com/goclaw/memkeeper/pkg/sessionlog"
	"github.com/goclaw/memkeeper/pkg/telemetry/tracing"
	"github.com/goclaw/memkeeper/pkg/version"
)

// app holds the components shared by every command.
type app struct {
	cfg        *config.Config
	loader     *config.Loader
	configPath string
	projectDir string
	overrides  map[string]interface{}

	log      logger.Logger
	metrics  *metrics.Manager
	store    *localstore.Store
	sessions *sessionlog.Log
	remote   remote.Client
	redis    *redis.Client
	outbox   *outbox.Lazy
	runner   *hooks.Runner

	stdout io.Writer
	stderr io.Writer

	closers []func(context.Context) error
}

// buildOverrides maps command line flags to configuration keys.
func buildOverrides(opts globalOptions) map[string]interface{} {
	overrides := make(map[string]interface{})
	if opts.logLevel != "" {
		overrides["log.level"] = opts.logLevel
	}
	if opts.debug {
		overrides["app.debug"] = true
		overrides["log.level"] = "debug"
	}
	return overrides
}

func newApp(ctx context.Context, opts globalOptions, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	projectDir := opts.projectDir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		projectDir = wd
	}

	loader := config.NewLoader(config.WithProjectDir(projectDir))
	overrides := buildOverrides(opts)
	cfg, err := loader.Load(opts.configPath, overrides)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	logger.SetGlobal(log)
	for _, w := range cfg.Warnings {
		log.Warn("invalid configuration value replaced by default", "error", w)
	}

	a := &app{
		cfg:        cfg,
		loader:     loader,
		configPath: resolveConfigPath(opts.configPath, loader),
		projectDir: projectDir,
		overrides:  overrides,
		log:        log,
		stdout:     stdout,
		stderr:     stderr,
	}
	a.closers = append(a.closers, func(context.Context) error { return log.Close() })

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, version.Version, log)
	if err != nil {
		// tracing is optional; commands keep working without it
		log.Warn("tracing disabled", "error", err)
	} else {
		a.closers = append(a.closers, shutdownTracing)
	}

	a.metrics = metrics.NewManager(metrics.Config{
		Enabled:  cfg.Metrics.Enabled,
		Textfile: cfg.Metrics.Textfile,
	})

	root := cfg.Memory.Root
	if root == "" {
		root = filepath.Join(projectDir, localstore.DirName)
	}
	a.store = localstore.New(root, localstore.Options{Logger: log})
	a.sessions = sessionlog.New(filepath.Join(root, localstore.SessionsDir), sessionlog.Options{Logger: log})

	client, rdb, err := newRemote(ctx, cfg, a.metrics, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.remote = client
	a.redis = rdb

	var queue hooks.Outbox
	if cfg.Outbox.Enabled {
		path := cfg.Outbox.Path
		if path == "" {
			path = filepath.Join(root, localstore.OutboxDir)
		}
		a.outbox = outbox.NewLazy(outbox.Config{
			Path:       path,
			SyncWrites: cfg.Outbox.SyncWrites,
			Logger:     log,
		})
		queue = a.outbox
	}

	runner, err := hooks.New(hooks.Options{
		Store:      a.store,
		Sessions:   a.sessions,
		Remote:     a.remote,
		RemoteName: remoteName(cfg.Remote),
		Outbox:     queue,
		Metrics:    a.metrics,
		Logger:     log,
		Settings: hooks.Settings{
			SearchLimit:           cfg.Memory.SearchLimit,
			DedupThreshold:        cfg.Memory.DedupThreshold,
			MaxArchivalPerSession: cfg.Memory.MaxArchivalPerSession,
			MaxLocalPerCategory:   cfg.Memory.MaxLocalPerCategory,
			SummaryPerCategory:    cfg.Memory.SummaryPerCategory,
			PromptResults:         cfg.Memory.PromptResults,
			SyncBatch:             cfg.Outbox.SyncBatch,
			SyncMaxAttempts:       cfg.Outbox.MaxAttempts,
		},
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.runner = runner

	log.Debug("memkeeper initialized",
		"version", version.Version,
		"project", projectDir,
		"root", root,
		"remote", cfg.Remote.Backend,
		"outbox", cfg.Outbox.Enabled,
	)
	return a, nil
}

// newRemote builds the global tier client from the remote and cache sections.
// The Redis client, when one is created, is returned for the caller to close.
func newRemote(ctx context.Context, cfg *config.Config, m *metrics.Manager, log logger.Logger) (remote.Client, *redis.Client, error) {
	rc := cfg.Remote
	retry := remote.RetryPolicy{
		MaxAttempts:       rc.MaxAttempts,
		InitialBackoff:    rc.InitialBackoff,
		BackoffMultiplier: rc.BackoffMultiplier,
		MaxBackoff:        rc.MaxBackoff,
		Timeout:           rc.Timeout,
	}

	opts := remote.Options{
		Backend: rc.Backend,
		HTTP: remote.HTTPConfig{
			BaseURL:   rc.BaseURL,
			APIKey:    rc.APIKey,
			AgentID:   rc.AgentID,
			Retry:     retry,
			RateLimit: rc.RateLimit,
			RateBurst: rc.RateBurst,
		},
		Postgres: remote.PostgresConfig{
			DatabaseURL: rc.DatabaseURL,
			AgentID:     rc.AgentID,
			Retry:       retry,
		},
	}

	var rdb *redis.Client
	if cfg.Cache.Enabled && rc.Backend != remote.BackendNone {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		opts.Redis = rdb
		cache := remote.DefaultCacheConfig()
		cache.KeyPrefix = cfg.Cache.KeyPrefix + rc.AgentID + ":"
		if cfg.Cache.TTL > 0 {
			cache.TTL = cfg.Cache.TTL
		}
		opts.Cache = cache
	}

	client, err := remote.New(ctx, opts, m, log)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, fmt.Errorf("configure remote tier: %w", err)
	}
	return client, rdb, nil
}

// remoteName is how the save summary refers to the global tier.
func remoteName(rc config.RemoteConfig) string {
	switch rc.Backend {
	case remote.BackendHTTP:
		return "archival memory (" + strings.TrimSuffix(rc.BaseURL, "/") + ")"
	case remote.BackendPostgres:
		return "archival memory (postgres)"
	default:
		return "remote memory"
	}
}

// resolveConfigPath returns the file the configuration came from, or "" when
// only defaults and the environment were used.
func resolveConfigPath(explicit string, loader *config.Loader) string {
	if explicit != "" {
		return explicit
	}
	for _, path := range loader.DefaultFiles() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// close releases resources in reverse order and writes the metrics textfile.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.log.Warn("failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
		}
	}
	var errs []error
	if a.outbox != nil {
		errs = append(errs, a.outbox.Close())
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(a.stderr, "memkeeper: shutdown: %v\n", err)
	}
}
