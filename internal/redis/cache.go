package redis

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/redis/go-redis/v9"
)

// Cache is a best-effort TTL string cache. Both operations swallow
// backend failures: a cold or broken cache only costs a recompute.
type Cache struct {
	client *redis.Client
	logger apt.Logger
}

// NewCache shares the locker's client so the process keeps one Redis
// connection pool.
func NewCache(locker *Locker, logger apt.Logger) *Cache {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Cache{
		client: locker.client,
		logger: logger,
	}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, "cache:"+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("cache read failed", "error", err, "key", key)
		}
		return "", false
	}
	return value, true
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, "cache:"+key, value, ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", "error", err, "key", key)
	}
}
