package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/wandel/pkg/debug"
)

// RateLimiter decides whether the caller may start another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// Limits holds requests per minute by tier. A tier without an entry uses
// Default; zero or less means unlimited.
type Limits struct {
	Default int
	Tiers   map[string]int
}

func (l Limits) perMinute(tier string) int {
	if n, ok := l.Tiers[tier]; ok {
		return n
	}
	return l.Default
}

// WindowLimiter counts requests per subject in fixed one minute windows,
// in process. Replicas each keep their own counts.
type WindowLimiter struct {
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewWindowLimiter creates an in-process limiter.
func NewWindowLimiter(limits Limits) *WindowLimiter {
	return &WindowLimiter{limits: limits, now: time.Now, windows: make(map[string]*window)}
}

// Allow implements RateLimiter.
func (l *WindowLimiter) Allow(_ context.Context, id *Identity) error {
	tier := tierOf(id)
	max := l.limits.perMinute(tier)
	if max <= 0 {
		return nil
	}

	now := l.now()
	key := tier + "/" + id.Subject

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.windows[key] = &window{start: now, count: 1}
		return nil
	}
	w.count++
	if w.count > max {
		return ErrTooManyRequests
	}
	return nil
}

// RedisLimiter shares fixed one minute windows between replicas through
// Redis. It fails open: when Redis cannot be reached the request is let
// through.
type RedisLimiter struct {
	client redis.UniversalClient
	limits Limits
	now    func() time.Time
}

// NewRedisLimiter creates a limiter on client.
func NewRedisLimiter(client redis.UniversalClient, limits Limits) *RedisLimiter {
	return &RedisLimiter{client: client, limits: limits, now: time.Now}
}

// Allow implements RateLimiter.
func (l *RedisLimiter) Allow(ctx context.Context, id *Identity) error {
	tier := tierOf(id)
	max := l.limits.perMinute(tier)
	if max <= 0 {
		return nil
	}

	key := windowKey(tier, id.Subject, l.now())
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		debug.Log("auth", "rate limiter unavailable", "error", err)
		return nil
	}
	if incr.Val() > int64(max) {
		return ErrTooManyRequests
	}
	return nil
}

func windowKey(tier, subject string, now time.Time) string {
	return fmt.Sprintf("wandel:ratelimit:%s:%s:%d", tier, subject, now.Unix()/60)
}
