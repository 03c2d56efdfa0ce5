package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisReplayProtector claims delivery keys with SET NX so a delivery already
// sent within the TTL is suppressed rather than repeated.
type RedisReplayProtector struct {
	Client *redis.Client
}

// Acquire claims key for ttl, reporting false when another delivery holds
// the claim. A nil client disables protection.
func (p RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if p.Client == nil {
		return true, nil
	}
	return p.Client.SetNX(ctx, key, "1", ttl).Result()
}

// Release drops the claim so a retry may send again immediately.
func (p RedisReplayProtector) Release(ctx context.Context, key string) error {
	if p.Client == nil {
		return nil
	}
	return p.Client.Del(ctx, key).Err()
}
