package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether key may perform one more action in the current
// window. When it may not, retryAfter says how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// MemoryLimiter is a sliding window limiter for a single instance.
type MemoryLimiter struct {
	requests map[string][]time.Time
	mutex    sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) < rl.limit {
		rl.requests[key] = append(valid, now)
		return true, 0, nil
	}
	rl.requests[key] = valid
	return false, valid[0].Add(rl.window).Sub(now), nil
}

// counter is the part of the redis client the limiter uses.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter is a fixed window limiter shared by every instance.
type RedisLimiter struct {
	client counter
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client counter, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := rl.prefix + ":" + key
	count, err := rl.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	// First hit opens the window.
	if count == 1 {
		if err := rl.client.Expire(ctx, k, rl.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(rl.limit) {
		return true, 0, nil
	}
	retryAfter, err := rl.client.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	return false, retryAfter, nil
}

// RateLimitMiddleware limits the authenticated caller. Limiter failures are
// logged and the request is let through.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		userID := currentUser(c)
		ok, retryAfter, err := limiter.Allow(c.Request.Context(), userID)
		if err != nil {
			log.Warnf("Rate limiter unavailable, allowing %s: %v", userID, err)
			c.Next()
			return
		}
		if !ok {
			log.Warnf("Rate limit exceeded for user: %s", userID)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(retryAfter.Seconds()),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
