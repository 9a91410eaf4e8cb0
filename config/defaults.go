package config

import (
	"time"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "memkeeper",
			Environment: "development",
			Debug:       false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Memory: MemoryConfig{
			Root:                  "",
			SearchLimit:           memory.DefaultSearchLimit,
			DedupThreshold:        memory.DefaultDedupThreshold,
			MaxArchivalPerSession: memory.DefaultMaxArchivalPerSession,
			MaxLocalPerCategory:   memory.DefaultMaxLocalPerCategory,
			SummaryPerCategory:    5,
			PromptResults:         5,
		},
		Remote: RemoteConfig{
			Backend:           "none",
			Timeout:           5 * time.Second,
			MaxAttempts:       3,
			InitialBackoff:    200 * time.Millisecond,
			BackoffMultiplier: 2,
			MaxBackoff:        2 * time.Second,
			RateLimit:         0,
			RateBurst:         1,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Address:   "localhost:6379",
			DB:        0,
			KeyPrefix: "memkeeper:",
			TTL:       10 * time.Minute,
		},
		Outbox: OutboxConfig{
			Enabled:     true,
			Path:        "",
			SyncWrites:  true,
			SyncBatch:   0,
			MaxAttempts: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp",
			Endpoint:    "localhost:4317",
			Timeout:     5 * time.Second,
			Sampler:     "ratio",
			SampleRate:  1.0,
			ServiceName: "memkeeper",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8765,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
		},
	}
}
