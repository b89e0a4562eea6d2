package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testResetRecord(token string, ttl time.Duration) *ResetTokenRecord {
	return &ResetTokenRecord{
		SecretHash: sha256.Sum256([]byte(token)),
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
}

func TestResetTokenStoreConsumeOnce(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewResetTokenStore(rdb, "rt")
	ctx := context.Background()

	if err := store.Save(ctx, "", "a@x.io", testResetRecord("tok", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "", "a@x.io", sha256.Sum256([]byte("tok")), 5); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if _, err := store.Consume(ctx, "", "a@x.io", sha256.Sum256([]byte("tok")), 5); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected ErrResetTokenNotFound on replay, got %v", err)
	}
}

func TestResetTokenStoreSaveReplacesPrevious(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewResetTokenStore(rdb, "rt")
	ctx := context.Background()

	if err := store.Save(ctx, "", "a@x.io", testResetRecord("first", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save first failed: %v", err)
	}
	if err := store.Save(ctx, "", "a@x.io", testResetRecord("second", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save second failed: %v", err)
	}

	if _, err := store.Consume(ctx, "", "a@x.io", sha256.Sum256([]byte("first")), 5); !errors.Is(err, ErrResetTokenMismatch) {
		t.Fatalf("expected superseded token to mismatch, got %v", err)
	}
	if _, err := store.Consume(ctx, "", "a@x.io", sha256.Sum256([]byte("second")), 5); err != nil {
		t.Fatalf("expected latest token to succeed, got %v", err)
	}
}

func TestResetTokenStoreBoundToIdentifierAndTenant(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewResetTokenStore(rdb, "rt")
	ctx := context.Background()

	if err := store.Save(ctx, "t1", "a@x.io", testResetRecord("tok", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "t1", "b@x.io", sha256.Sum256([]byte("tok")), 5); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected not found for other identifier, got %v", err)
	}
	if _, err := store.Consume(ctx, "t2", "a@x.io", sha256.Sum256([]byte("tok")), 5); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected not found for other tenant, got %v", err)
	}
	if _, err := store.Consume(ctx, "t1", "a@x.io", sha256.Sum256([]byte("tok")), 5); err != nil {
		t.Fatalf("expected owner consume to succeed, got %v", err)
	}
}

func TestResetTokenStoreAttemptsExceeded(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewResetTokenStore(rdb, "rt")
	ctx := context.Background()

	if err := store.Save(ctx, "", "a@x.io", testResetRecord("tok", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	wrong := sha256.Sum256([]byte("nope"))
	if _, err := store.Consume(ctx, "", "a@x.io", wrong, 2); !errors.Is(err, ErrResetTokenMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := store.Consume(ctx, "", "a@x.io", wrong, 2); !errors.Is(err, ErrResetTokenAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	if _, err := store.Consume(ctx, "", "a@x.io", sha256.Sum256([]byte("tok")), 2); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected record deleted, got %v", err)
	}
}

func TestResetTokenStoreExpired(t *testing.T) {
	mr, rdb := newStoreTestRedis(t)
	store := NewResetTokenStore(rdb, "rt")
	ctx := context.Background()

	if err := store.Save(ctx, "", "a@x.io", testResetRecord("tok", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, "", "a@x.io", sha256.Sum256([]byte("tok")), 5); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
}

func TestResetTokenStoreConcurrentConsumeSingleWinner(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewResetTokenStore(rdb, "rt")
	ctx := context.Background()

	if err := store.Save(ctx, "", "a@x.io", testResetRecord("tok", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "", "a@x.io", sha256.Sum256([]byte("tok")), 5); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", got)
	}
}
