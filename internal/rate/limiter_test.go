package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, cfg)
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	mr, l := newLimiter(t, Config{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "", "a@x.io", ""); err != nil {
			t.Fatalf("check %d: unexpected error %v", i, err)
		}
		if err := l.RecordFailure(ctx, "", "a@x.io", ""); err != nil {
			t.Fatalf("record %d: unexpected error %v", i, err)
		}
	}

	if err := l.Check(ctx, "", "a@x.io", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "t2", "a@x.io", ""); err != nil {
		t.Fatalf("expected other tenant unaffected, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Check(ctx, "", "a@x.io", ""); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestLimiterResetClearsIdentifierOnly(t *testing.T) {
	_, l := newLimiter(t, Config{MaxAttempts: 2, Cooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "", "a@x.io", "10.0.0.1"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if err := l.Reset(ctx, "", "a@x.io"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if err := l.Check(ctx, "", "a@x.io", ""); err != nil {
		t.Fatalf("expected identifier counter cleared, got %v", err)
	}
	if err := l.Check(ctx, "", "b@x.io", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget still spent, got %v", err)
	}
}

func TestLimiterKeysUsePrefix(t *testing.T) {
	mr, l := newLimiter(t, Config{Prefix: "svc:", MaxAttempts: 3, Cooldown: time.Minute, EnableIPThrottle: true})

	if err := l.RecordFailure(context.Background(), "t1", "a@x.io", "10.0.0.1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	for _, key := range []string{"svc:ial:t1:a@x.io", "svc:iali:t1:10.0.0.1"} {
		if !mr.Exists(key) {
			t.Fatalf("expected key %q, have %v", key, mr.Keys())
		}
	}
}

func TestNilLimiterIsPermissive(t *testing.T) {
	var l *Limiter
	ctx := context.Background()
	if err := l.Check(ctx, "", "a", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.RecordFailure(ctx, "", "a", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Reset(ctx, "", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
