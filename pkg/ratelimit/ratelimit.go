package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"licensegate/pkg/config"
	"licensegate/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Window is the fixed counting window.
const Window = time.Minute

var Module = fx.Module("ratelimit",
	fx.Provide(NewLimiter),
)

// Limiter counts requests per identity (license key, or client IP before a
// key exists). Counters are independent of license balances: a client can be
// rate limited with abundant hours remaining, and vice versa.
type Limiter interface {
	Allow(ctx context.Context, identity string) (allowed bool, retryAfter time.Duration, err error)
}

type Params struct {
	fx.In
	Redis  *redis.Client `optional:"true"`
	Policy config.Policy
}

// NewLimiter returns the redis-backed limiter whenever redis is configured.
// The in-process limiter is an explicitly degraded mode: its counters are not
// shared across replicas.
func NewLimiter(p Params) Limiter {
	if p.Redis != nil {
		return NewRedisLimiter(p.Redis, p.Policy.RatePerMinute)
	}

	zap.L().Warn("[ratelimit] redis not configured, falling back to process-local counters (degraded)")
	return NewLocalLimiter(p.Policy.RatePerMinute)
}

// RedisLimiter keeps one counter per identity per window in redis, shared by
// every request-handling replica.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int64
	now   func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, limit int64) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, identity string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	key, retryAfter := l.window(identity, l.now())

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("ratelimit incr: %w", err)
	}

	if incr.Val() > l.limit {
		return false, retryAfter, nil
	}

	return true, 0, nil
}

// window maps an instant to the counter key for its fixed window and the time
// left until that window rolls over.
func (l *RedisLimiter) window(identity string, now time.Time) (string, time.Duration) {
	windowStart := now.Truncate(Window)
	return rediskey.BuildRateLimitKey(identity, windowStart.Unix()), windowStart.Add(Window).Sub(now)
}

// LocalLimiter mirrors the redis window math with in-process counters.
type LocalLimiter struct {
	limit int64
	now   func() time.Time

	mu       sync.Mutex
	window   time.Time
	counters map[string]int64
}

func NewLocalLimiter(limit int64) *LocalLimiter {
	return &LocalLimiter{
		limit:    limit,
		now:      time.Now,
		counters: make(map[string]int64),
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, identity string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Truncate(Window)
	if !windowStart.Equal(l.window) {
		l.window = windowStart
		l.counters = make(map[string]int64)
	}

	l.counters[identity]++
	if l.counters[identity] > l.limit {
		return false, windowStart.Add(Window).Sub(now), nil
	}

	return true, 0, nil
}
