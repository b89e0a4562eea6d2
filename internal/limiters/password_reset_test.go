package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newResetLimiter(t *testing.T, cfg PasswordResetConfig) *PasswordResetLimiter {
	t.Helper()
	_, l := newResetLimiterWithRedis(t, cfg)
	return l
}

func newResetLimiterWithRedis(t *testing.T, cfg PasswordResetConfig) (*miniredis.Miniredis, *PasswordResetLimiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewPasswordResetLimiter(rdb, cfg)
}

func TestPasswordResetLimiterRequestWindow(t *testing.T) {
	l := newResetLimiter(t, PasswordResetConfig{
		EnableIdentifierThrottle: true,
		Window:                   time.Minute,
		MaxRequests:              2,
		MaxVerifications:         5,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckRequest(ctx, "", "a@x.io", ""); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}
	if err := l.CheckRequest(ctx, "", "a@x.io", ""); !errors.Is(err, ErrResetRateLimited) {
		t.Fatalf("expected ErrResetRateLimited, got %v", err)
	}
	if err := l.CheckVerify(ctx, "", "a@x.io", ""); err != nil {
		t.Fatalf("expected verify budget independent, got %v", err)
	}
}

func TestPasswordResetLimiterIPThrottle(t *testing.T) {
	l := newResetLimiter(t, PasswordResetConfig{
		EnableIPThrottle: true,
		Window:           time.Minute,
		MaxRequests:      5,
		MaxVerifications: 1,
	})
	ctx := context.Background()

	if err := l.CheckVerify(ctx, "", "a@x.io", "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckVerify(ctx, "", "b@x.io", "10.0.0.1"); !errors.Is(err, ErrResetRateLimited) {
		t.Fatalf("expected IP throttle across identifiers, got %v", err)
	}
}

func TestPasswordResetLimiterKeysUsePrefix(t *testing.T) {
	mr, l := newResetLimiterWithRedis(t, PasswordResetConfig{
		Prefix:                   "svc:",
		EnableIdentifierThrottle: true,
		EnableIPThrottle:         true,
		Window:                   time.Minute,
		MaxRequests:              5,
		MaxVerifications:         5,
	})
	ctx := context.Background()

	if err := l.CheckRequest(ctx, "", "a@x.io", "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckVerify(ctx, "t2", "a@x.io", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"svc:iprq:0:a@x.io", "svc:iprqip:0:10.0.0.1", "svc:iprv:t2:a@x.io"} {
		if !mr.Exists(key) {
			t.Fatalf("expected key %q, have %v", key, mr.Keys())
		}
	}
}

func TestNilPasswordResetLimiter(t *testing.T) {
	var l *PasswordResetLimiter
	if err := l.CheckRequest(context.Background(), "", "a", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckVerify(context.Background(), "", "a", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
