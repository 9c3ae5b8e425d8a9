package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moment-mint/internal/client"
	"moment-mint/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimitCache is a fixed-window counter per key.
type RateLimitCache struct {
	client *client.RedisClient
	prefix string
}

func NewRateLimitCache(c *client.RedisClient, keyPrefix string) *RateLimitCache {
	return &RateLimitCache{client: c, prefix: keyPrefix + rateLimitPrefix}
}

// IncrementCounter adds one to key and returns the new count. The window
// starts with the first increment and lasts window.
func (c *RateLimitCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int, error) {
	count, err := c.client.IncrWithExpire(ctx, c.prefix+key, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter", zap.String("key", key), zap.Duration("window", window), zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	util.Debug("Rate limit counter incremented", zap.String("key", key), zap.Int64("count", count))
	return int(count), nil
}

// RetryAfter returns how long until the window for key closes.
func (c *RateLimitCache) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, c.prefix+key)
	if err != nil {
		return 0, fmt.Errorf("failed to get rate limit ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
