package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestWindowLimiter(t *testing.T) {
	l := NewWindowLimiter(Limits{Default: 2, Tiers: map[string]int{"gold": 0}})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	alice := &Identity{Subject: "alice"}
	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, alice); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := l.Allow(ctx, alice); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("third request: err = %v", err)
	}
	if err := l.Allow(ctx, &Identity{Subject: "bob"}); err != nil {
		t.Errorf("other subject limited: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := l.Allow(ctx, &Identity{Subject: "alice", Tier: "gold"}); err != nil {
			t.Fatalf("unlimited tier limited: %v", err)
		}
	}

	now = now.Add(time.Minute)
	if err := l.Allow(ctx, alice); err != nil {
		t.Errorf("new window: %v", err)
	}
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0", MaxRetries: -1})
	defer client.Close()

	l := NewRedisLimiter(client, Limits{Default: 1})
	for i := 0; i < 3; i++ {
		if err := l.Allow(context.Background(), &Identity{Subject: "alice"}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
}

func TestWindowKey(t *testing.T) {
	now := time.Unix(120, 0)
	got := windowKey("default", "alice", now)
	if got != "wandel:ratelimit:default:alice:2" {
		t.Errorf("key = %q", got)
	}
	if !strings.HasPrefix(windowKey("gold", "bob", now.Add(time.Minute)), "wandel:ratelimit:gold:bob:3") {
		t.Error("window did not advance")
	}
}
