package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DependencyCache decorates a ports.DependencyResolver with a Redis cache.
// Resolved packages are immutable per version so entries only expire by TTL.
type DependencyCache struct {
	client *backend.Client
	next   ports.DependencyResolver
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOption configures the DependencyCache.
type CacheOption func(*DependencyCache)

// WithCacheTTL sets how long resolved packages are kept.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *DependencyCache) {
		c.ttl = ttl
	}
}

// WithCachePrefix overrides the key prefix.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *DependencyCache) {
		c.prefix = prefix
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *DependencyCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewDependencyCache wraps next.
func NewDependencyCache(client *backend.Client, next ports.DependencyResolver, opts ...CacheOption) *DependencyCache {
	c := &DependencyCache{
		client: client,
		next:   next,
		prefix: "stepwise:deps:",
		ttl:    24 * time.Hour,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve serves pkg@version from the cache, falling back to the wrapped
// resolver. Cache failures degrade to a direct resolution.
func (c *DependencyCache) Resolve(ctx context.Context, pkg, version string) (map[string]string, error) {
	key := c.prefix + pkg + "@" + version

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var files map[string]string
		if jerr := json.Unmarshal(data, &files); jerr == nil {
			return files, nil
		}
		c.logger.Warn("corrupt dependency cache entry", "key", key)
	case !errors.Is(err, backend.Nil):
		c.logger.Warn("dependency cache read failed", "key", key, "err", err)
	}

	files, err := c.next.Resolve(ctx, pkg, version)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(files); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("dependency cache write failed", "key", key, "err", err)
		}
	}
	return files, nil
}
