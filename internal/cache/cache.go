package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache is a JSON read-through cache over Redis. A nil receiver is a no-op so
// callers can leave caching unconfigured.
type Cache struct {
	R   *redis.Client
	TTL time.Duration
}

// GetJSON loads key into dst. The boolean reports a cache hit.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.R == nil {
		return false, nil
	}
	raw, err := c.R.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// Stale or corrupt entry: treat as a miss and drop it.
		_ = c.R.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON stores v under key with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.R == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return c.R.Set(ctx, key, raw, ttl).Err()
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.R == nil || len(keys) == 0 {
		return nil
	}
	return c.R.Del(ctx, keys...).Err()
}

// EndpointsKey is the per-company cache key for active webhook endpoints.
func EndpointsKey(companyID string) string {
	return "webhook:endpoints:" + companyID
}
