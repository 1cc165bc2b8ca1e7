package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CompletionCache stores buffered completion results in Redis. Cache failures
// degrade to misses so a Redis outage never blocks generation.
type CompletionCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCompletionCache creates a Redis-backed completion cache.
func NewCompletionCache(client *redis.Client, logger *zap.Logger) *CompletionCache {
	return &CompletionCache{
		client: client,
		logger: logger.Named("completion-cache"),
	}
}

// Get returns a cached completion result, or a miss on any cache error.
func (c *CompletionCache) Get(ctx context.Context, key string) (*outbound.CompletionResult, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var result outbound.CompletionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("cache entry corrupt, evicting", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}
	return &result, true
}

// Set stores a completion result with the given TTL. Errors are logged and
// dropped.
func (c *CompletionCache) Set(ctx context.Context, key string, result *outbound.CompletionResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
