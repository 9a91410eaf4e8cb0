package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS archival_memory (
	id         UUID PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT 'learning',
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS archival_memory_agent_created_idx
	ON archival_memory (agent_id, created_at DESC);
`

const searchSQL = `
SELECT id::text, content, label, created_at
FROM archival_memory
WHERE agent_id = $1 AND to_tsvector('english', content) @@ to_tsquery('english', $2)
ORDER BY ts_rank(to_tsvector('english', content), to_tsquery('english', $2)) DESC, created_at DESC
LIMIT $3
`

const listSQL = `
SELECT id::text, content, label, created_at
FROM archival_memory
WHERE agent_id = $1
ORDER BY created_at DESC
LIMIT $2
`

const insertSQL = `
INSERT INTO archival_memory (id, agent_id, label, content, created_at)
VALUES ($1, $2, $3, $4, $5)
`

// querier is the subset of *pgxpool.Pool the client uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresConfig configures a PostgresClient.
type PostgresConfig struct {
	DatabaseURL string
	AgentID     string
	Retry       RetryPolicy
}

// PostgresClient keeps global records in an archival_memory table.
type PostgresClient struct {
	db      querier
	pool    *pgxpool.Pool
	agentID string
	retry   RetryPolicy
	log     logger.Logger

	schemaMu sync.Mutex
	migrated bool
}

// NewPostgresClient creates a connection pool. Connections are opened lazily,
// so an unreachable database surfaces on the first call, which also creates
// the archival_memory table.
func NewPostgresClient(ctx context.Context, cfg PostgresConfig, log logger.Logger) (*PostgresClient, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("remote: agent ID is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid database URL: %w", err)
	}
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	c := newPostgresClient(pool, cfg, log)
	c.pool = pool
	return c, nil
}

func newPostgresClient(db querier, cfg PostgresConfig, log logger.Logger) *PostgresClient {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if log == nil {
		log = logger.Global()
	}
	return &PostgresClient{
		db:      db,
		agentID: cfg.AgentID,
		retry:   cfg.Retry,
		log:     log.With("component", "remote", "backend", "postgres"),
	}
}

// EnsureSchema creates the archival_memory table if it does not exist. It
// runs once per client; a failed attempt is repeated by the next call.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	if c.migrated {
		return nil
	}
	_, err := withRetry(ctx, c.retry, "migrate", func(ctx context.Context) (struct{}, error) {
		_, err := c.db.Exec(ctx, schemaSQL)
		return struct{}{}, classifyPgError(err)
	})
	if err != nil {
		return err
	}
	c.migrated = true
	c.log.DebugContext(ctx, "archival_memory schema ready")
	return nil
}

// Search implements Client with PostgreSQL full-text search. Query terms are
// OR-ed together.
func (c *PostgresClient) Search(ctx context.Context, query string, limit int) ([]memory.RemoteRecord, error) {
	tsq := tsQuery(query)
	if tsq == "" {
		return c.List(ctx, limit)
	}
	if err := c.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return withRetry(ctx, c.retry, "search", func(ctx context.Context) ([]memory.RemoteRecord, error) {
		return c.query(ctx, searchSQL, c.agentID, tsq, limit)
	})
}

// List implements Client.
func (c *PostgresClient) List(ctx context.Context, limit int) ([]memory.RemoteRecord, error) {
	if err := c.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return withRetry(ctx, c.retry, "list", func(ctx context.Context) ([]memory.RemoteRecord, error) {
		return c.query(ctx, listSQL, c.agentID, limit)
	})
}

// Create implements Client.
func (c *PostgresClient) Create(ctx context.Context, rec memory.Record) (string, error) {
	id := uuid.New().String()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if err := c.EnsureSchema(ctx); err != nil {
		return "", err
	}
	return withRetry(ctx, c.retry, "create", func(ctx context.Context) (string, error) {
		if _, err := c.db.Exec(ctx, insertSQL, id, c.agentID, label(rec), rec.FullText(), createdAt); err != nil {
			return "", classifyPgError(err)
		}
		return id, nil
	})
}

func (c *PostgresClient) query(ctx context.Context, sql string, args ...any) ([]memory.RemoteRecord, error) {
	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	var out []memory.RemoteRecord
	for rows.Next() {
		var r memory.RemoteRecord
		if err := rows.Scan(&r.ID, &r.Text, &r.Label, &r.CreatedAt); err != nil {
			return nil, permanent(fmt.Errorf("failed to scan archival memory: %w", err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return out, nil
}

// Close implements Client.
func (c *PostgresClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// classifyPgError marks server-reported SQL errors as permanent; connection
// failures stay retryable.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return permanent(err)
	}
	return err
}

// tsQuery builds an OR-ed to_tsquery expression from the plain terms of
// query. Operator characters never reach the database.
func tsQuery(query string) string {
	return strings.Join(searchTerms(query), " | ")
}
