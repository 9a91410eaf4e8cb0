package remote

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/metrics"
)

// Backends accepted by New.
const (
	BackendNone     = "none"
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
)

// Options selects and configures the remote backend.
type Options struct {
	Backend  string
	HTTP     HTTPConfig
	Postgres PostgresConfig

	// Redis enables the search cache when non-nil.
	Redis redis.Cmdable
	Cache CacheConfig
}

// New builds the configured client, wrapped with the optional cache and
// with instrumentation.
func New(ctx context.Context, opts Options, m *metrics.Manager, log logger.Logger) (Client, error) {
	var (
		client Client
		err    error
	)
	switch opts.Backend {
	case "", BackendNone:
		return NewInstrumented(Disabled{}, m), nil
	case BackendHTTP:
		client, err = NewHTTPClient(opts.HTTP, log)
	case BackendPostgres:
		client, err = NewPostgresClient(ctx, opts.Postgres, log)
	default:
		return nil, fmt.Errorf("remote: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.Redis != nil {
		client = NewCachedClient(client, opts.Redis, opts.Cache, log)
	}
	return NewInstrumented(client, m), nil
}
