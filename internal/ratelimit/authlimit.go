package ratelimit

import (
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewCredentialLimiter builds an IP keyed middleware for credential endpoints
// such as login and register. These get a much tighter budget than the global
// sliding window, so brute forcing credentials trips long before the general
// limit does.
func NewCredentialLimiter(rdb *redis.Client, max int64, window time.Duration) (func(http.Handler) http.Handler, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "rl:auth"})
	if err != nil {
		return nil, err
	}
	lim := limiter.New(store, limiter.Rate{Period: window, Limit: max}, limiter.WithTrustForwardHeader(true))
	return limiterstdlib.NewMiddleware(lim).Handler, nil
}
