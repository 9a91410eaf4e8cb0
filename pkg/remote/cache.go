package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

// CacheConfig configures a CachedClient.
type CacheConfig struct {
	// KeyPrefix namespaces every key, e.g. "memkeeper:<agent>:".
	KeyPrefix string
	TTL       time.Duration
}

// DefaultCacheConfig returns the cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{KeyPrefix: "memkeeper:", TTL: 10 * time.Minute}
}

// CachedClient caches Search and List results in Redis. Create bumps a
// generation counter that is part of every cache key, so earlier results are
// never served after a write. Redis failures bypass the cache.
type CachedClient struct {
	next   Client
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// NewCachedClient wraps next with a Redis cache.
func NewCachedClient(next Client, rdb redis.Cmdable, cfg CacheConfig, log logger.Logger) *CachedClient {
	def := DefaultCacheConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if log == nil {
		log = logger.Global()
	}
	return &CachedClient{
		next:   next,
		rdb:    rdb,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		log:    log.With("component", "remote-cache"),
	}
}

// Search implements Client.
func (c *CachedClient) Search(ctx context.Context, query string, limit int) ([]memory.RemoteRecord, error) {
	return c.cached(ctx, "search", query+"\x00"+strconv.Itoa(limit), func() ([]memory.RemoteRecord, error) {
		return c.next.Search(ctx, query, limit)
	})
}

// List implements Client.
func (c *CachedClient) List(ctx context.Context, limit int) ([]memory.RemoteRecord, error) {
	return c.cached(ctx, "list", strconv.Itoa(limit), func() ([]memory.RemoteRecord, error) {
		return c.next.List(ctx, limit)
	})
}

// Create implements Client and invalidates cached reads.
func (c *CachedClient) Create(ctx context.Context, rec memory.Record) (string, error) {
	id, err := c.next.Create(ctx, rec)
	if err != nil {
		return "", err
	}
	if err := c.rdb.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.log.WarnContext(ctx, "cache invalidation failed", "error", err)
	}
	return id, nil
}

// Close implements Client. The Redis client is owned by the caller.
func (c *CachedClient) Close() error {
	return c.next.Close()
}

func (c *CachedClient) generationKey() string {
	return c.prefix + "gen"
}

func (c *CachedClient) cached(ctx context.Context, op, args string, load func() ([]memory.RemoteRecord, error)) ([]memory.RemoteRecord, error) {
	gen, err := c.rdb.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.DebugContext(ctx, "cache unavailable", "op", op, "error", err)
		return load()
	}

	sum := sha256.Sum256([]byte(args))
	key := c.prefix + op + ":" + strconv.FormatInt(gen, 10) + ":" + hex.EncodeToString(sum[:12])

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var recs []memory.RemoteRecord
		if err := json.Unmarshal(data, &recs); err == nil {
			return recs, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.DebugContext(ctx, "cache read failed", "op", op, "error", err)
	}

	recs, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(recs); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.DebugContext(ctx, "cache write failed", "op", op, "error", err)
		}
	}
	return recs, nil
}
