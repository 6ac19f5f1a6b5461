package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultReplayTTL is how long a request id is remembered by the Redis
// replay guard. The in-memory guard is capacity-bounded instead; a TTL is
// the natural horizon for a shared store.
const DefaultReplayTTL = 24 * time.Hour

// RedisReplayGuard stores seen request ids in Redis so multiple gateway
// instances share one dedupe horizon.
type RedisReplayGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReplayGuard creates a Redis-backed replay guard.
func NewRedisReplayGuard(client *redis.Client, ttl time.Duration) *RedisReplayGuard {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &RedisReplayGuard{client: client, ttl: ttl}
}

// CheckAndRecord implements ReplayGuard. SET NX makes the check-and-insert a
// single round trip: the first caller sets the key, everyone else sees a
// duplicate.
func (g *RedisReplayGuard) CheckAndRecord(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}
	set, err := g.client.SetNX(ctx, "dedupe:"+requestID, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis replay check: %w", err)
	}
	return !set, nil
}

// RedisRateLimiter is a fixed-window counter in Redis, one key per origin
// per window.
type RedisRateLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
}

// NewRedisRateLimiter creates a Redis-backed fixed-window limiter.
func NewRedisRateLimiter(client *redis.Client, maxRequests int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, maxRequests: maxRequests, window: window}
}

// Check implements RateLimiter.
func (l *RedisRateLimiter) Check(ctx context.Context, origin string) (RateResult, error) {
	key := "rate:" + origin

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return RateResult{}, fmt.Errorf("redis rate incr: %w", err)
	}
	if count == 1 {
		// First request in this window starts the clock. Expiry doubles as
		// the sweep: Redis drops the key when the window ends.
		if err := l.client.PExpire(ctx, key, l.window).Err(); err != nil {
			return RateResult{}, fmt.Errorf("redis rate expire: %w", err)
		}
	}

	if count > int64(l.maxRequests) {
		ttl, err := l.client.PTTL(ctx, key).Result()
		if err != nil {
			return RateResult{}, fmt.Errorf("redis rate ttl: %w", err)
		}
		return RateResult{
			Allowed:   false,
			Limit:     l.maxRequests,
			Remaining: 0,
			ResetAt:   time.Now().Add(ttl),
		}, nil
	}

	return RateResult{
		Allowed:   true,
		Limit:     l.maxRequests,
		Remaining: l.maxRequests - int(count),
	}, nil
}
