package ratelimit

import (
	"context"
	"fmt"

	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// incrementScript increments a fixed-window counter, setting the TTL only for
// the first hit in the window.
const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

var incrementLua = redis.NewScript(incrementScript)

// RedisLimiter enforces fixed-window budgets shared by every instance
type RedisLimiter struct {
	client  redis.UniversalClient
	buckets Buckets
	prefix  string
}

// NewRedisLimiter creates a rate limiter backed by the given Redis client
func NewRedisLimiter(client redis.UniversalClient, prefix string, buckets Buckets) ports.RateLimiter {
	return &RedisLimiter{
		client:  client,
		buckets: buckets,
		prefix:  prefix,
	}
}

// Allow records a hit for key in bucket and reports whether it is within budget
func (l *RedisLimiter) Allow(ctx context.Context, key, bucket string) (bool, error) {
	budget, ok := l.buckets.lookup(bucket)
	if !ok {
		return true, nil
	}

	count, err := incrementLua.Run(ctx, l.client, []string{l.prefix + "rl:" + bucket + ":" + key}, budget.Window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return count <= int64(budget.Limit), nil
}
