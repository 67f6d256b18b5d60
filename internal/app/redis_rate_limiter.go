/**
 * @description
 * This file implements the Redis-backed rate limiter consulted before
 * outgoing transfers. One Lua script increments the per-sender counter
 * and arms the window expiry atomically, so counts stay correct across
 * service replicas. The limiter only ever reports; the caller decides
 * whether the count exceeds its limit.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript bumps the counter and returns {count, remaining window ms}.
// PEXPIRE only runs on the first hit, so the window is fixed from the
// first transfer in it, not sliding.
var consumeScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisRateLimiter implements RateLimiter on a shared Redis instance.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "paisavault:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit counts this attempt against the subject's window and
// reports the running count plus how long until the window resets. A nil
// client or non-positive limit/window disables counting entirely.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	key := r.prefix + ":" + scope + ":" + subject
	vals, err := consumeScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit consume for %s: %w", key, err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values, want 2", len(vals))
	}

	count := int(vals[0])
	remaining := time.Duration(vals[1]) * time.Millisecond
	if remaining <= 0 {
		// PTTL reports -1/-2 if the key expired between INCR and the read.
		remaining = window
	}

	retryAfter := int((remaining + time.Second - 1) / time.Second)
	return count, retryAfter, nil
}
