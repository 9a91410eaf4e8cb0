// Package config provides configuration management for memkeeper.
package config

import (
	"fmt"
	"time"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// Config is the global configuration for memkeeper.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Memory holds the tiering and deduplication knobs.
	Memory MemoryConfig `mapstructure:"memory"`

	// Remote is the global memory tier.
	Remote RemoteConfig `mapstructure:"remote"`

	// Cache is the Redis cache in front of remote reads.
	Cache CacheConfig `mapstructure:"cache"`

	// Outbox queues global records while the remote tier is down.
	Outbox OutboxConfig `mapstructure:"outbox"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Server is the read-only inspection API used by "memkeeper serve".
	Server ServerConfig `mapstructure:"server"`

	// Warnings lists the memory knobs that were invalid and replaced by
	// their defaults during loading.
	Warnings []*memory.ConfigError `mapstructure:"-"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, discard, or file path).
	// Hooks print injected context on stdout, so logs default to stderr.
	Output string `mapstructure:"output"`
}

// MemoryConfig holds the memory tier knobs.
type MemoryConfig struct {
	// Root is the project memory directory. Empty means <project>/.memory.
	Root string `mapstructure:"root"`

	// SearchLimit caps the results of a local or remote search.
	SearchLimit int `mapstructure:"search_limit" validate:"min=1"`

	// DedupThreshold is the similarity at or above which a candidate is a
	// duplicate.
	DedupThreshold float64 `mapstructure:"dedup_threshold" validate:"gt=0,lte=1"`

	// MaxArchivalPerSession caps the global records written by one
	// session-end-save run. Extra global items are saved locally.
	MaxArchivalPerSession int `mapstructure:"max_archival_per_session" validate:"min=0"`

	// MaxLocalPerCategory is the retention cap of each local category.
	MaxLocalPerCategory int `mapstructure:"max_local_per_category" validate:"min=1"`

	// SummaryPerCategory is the number of records per category shown at
	// session start.
	SummaryPerCategory int `mapstructure:"summary_per_category" validate:"min=1"`

	// PromptResults caps the lines injected for a prompt.
	PromptResults int `mapstructure:"prompt_results" validate:"min=1"`
}

// RemoteConfig holds the global tier backend settings.
type RemoteConfig struct {
	// Backend is the remote implementation (none, http, postgres).
	Backend string `mapstructure:"backend" validate:"oneof=none http postgres"`

	// BaseURL is the archival-memory service address for the http backend.
	BaseURL string `mapstructure:"base_url" validate:"required_if=Backend http"`

	// APIKey is sent as a bearer token by the http backend.
	APIKey string `mapstructure:"api_key"`

	// AgentID scopes the records of this user.
	AgentID string `mapstructure:"agent_id" validate:"required_unless=Backend none,agentid"`

	// DatabaseURL is the connection string for the postgres backend.
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres"`

	// Timeout bounds a single attempt.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	// MaxAttempts is the retry budget of one call.
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1,max=10"`

	// InitialBackoff is the wait after the first failed attempt.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"min=0"`

	// BackoffMultiplier grows the wait between attempts.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" validate:"gte=1"`

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration `mapstructure:"max_backoff" validate:"min=0"`

	// RateLimit is the sustained request rate per second (0 = unlimited).
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`

	// RateBurst is the request burst size.
	RateBurst int `mapstructure:"rate_burst" validate:"min=0"`
}

// CacheConfig holds Redis cache settings.
type CacheConfig struct {
	// Enabled turns on caching of remote searches.
	Enabled bool `mapstructure:"enabled"`

	// Address is the Redis server address.
	Address string `mapstructure:"address" validate:"required_if=Enabled true,host"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `mapstructure:"key_prefix"`

	// TTL is the lifetime of a cached result.
	TTL time.Duration `mapstructure:"ttl" validate:"min=0"`
}

// OutboxConfig holds BadgerDB outbox settings.
type OutboxConfig struct {
	// Enabled queues global records that fell back to the local tier.
	Enabled bool `mapstructure:"enabled"`

	// Path is the database directory. Empty means <memory root>/outbox.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// SyncBatch is the number of entries replayed per sync run (0 = all).
	SyncBatch int `mapstructure:"sync_batch" validate:"min=0"`

	// MaxAttempts dead-letters an entry after this many failed replays
	// (0 = retry forever). Entries the remote rejects are dead-lettered at
	// once.
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Textfile is written in the Prometheus text format when a command exits.
	Textfile string `mapstructure:"textfile"`

	// Path is the metrics endpoint path served by "memkeeper serve".
	Path string `mapstructure:"path" validate:"startswith=/"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the tracing exporter type.
	Exporter string `mapstructure:"exporter" validate:"oneof=otlp"`

	// Endpoint is the OTLP collector endpoint (host:port or URL).
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	// Sampler is the sampling strategy (always_on, always_off, ratio).
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`

	// ServiceName is reported as the OpenTelemetry service name.
	ServiceName string `mapstructure:"service_name"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host" validate:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, Remote: %s, Root: %q}",
		c.App.Name, c.App.Environment, c.Remote.Backend, c.Memory.Root)
}
