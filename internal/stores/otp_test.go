package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testOTPRecord(code string, ttl time.Duration) *OTPRecord {
	now := time.Now()
	return &OTPRecord{
		SecretHash: sha256.Sum256([]byte(code)),
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
}

func TestOTPStoreIssueAndConsume(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewOTPStore(rdb, "t")
	ctx := context.Background()
	k := OTPKey{TenantID: "", Purpose: "verify", Channel: "email", Identifier: "a@x.io"}

	if err := store.Issue(ctx, k, testOTPRecord("123456", time.Minute), time.Minute, 0); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	rec, err := store.Consume(ctx, k, sha256.Sum256([]byte("123456")), 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if rec.SecretHash != sha256.Sum256([]byte("123456")) {
		t.Fatal("unexpected record hash")
	}

	if _, err := store.Consume(ctx, k, sha256.Sum256([]byte("123456")), 5); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on replay, got %v", err)
	}
}

func TestOTPStoreCooldownBlocksReissue(t *testing.T) {
	mr, rdb := newStoreTestRedis(t)
	store := NewOTPStore(rdb, "t")
	ctx := context.Background()
	k := OTPKey{TenantID: "t1", Purpose: "verify", Channel: "sms", Identifier: "+15550001"}

	if err := store.Issue(ctx, k, testOTPRecord("111111", time.Minute), time.Minute, 30*time.Second); err != nil {
		t.Fatalf("first Issue failed: %v", err)
	}
	if err := store.Issue(ctx, k, testOTPRecord("222222", time.Minute), time.Minute, 30*time.Second); !errors.Is(err, ErrOTPCooldown) {
		t.Fatalf("expected ErrOTPCooldown, got %v", err)
	}

	if ttl := mr.TTL("tcd:t1:verify:sms:+15550001"); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("unexpected cooldown marker ttl: %v", ttl)
	}

	// The first code stays active while cooling down.
	if _, err := store.Consume(ctx, k, sha256.Sum256([]byte("222222")), 5); !errors.Is(err, ErrOTPCodeMismatch) {
		t.Fatalf("expected mismatch for rejected reissue, got %v", err)
	}

	mr.FastForward(31 * time.Second)

	if err := store.Issue(ctx, k, testOTPRecord("333333", time.Minute), time.Minute, 30*time.Second); err != nil {
		t.Fatalf("Issue after cooldown failed: %v", err)
	}
	if _, err := store.Consume(ctx, k, sha256.Sum256([]byte("111111")), 5); !errors.Is(err, ErrOTPCodeMismatch) {
		t.Fatalf("expected superseded code to mismatch, got %v", err)
	}
	if _, err := store.Consume(ctx, k, sha256.Sum256([]byte("333333")), 5); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
}

func TestOTPStoreAttemptsExceeded(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewOTPStore(rdb, "t")
	ctx := context.Background()
	k := OTPKey{Purpose: "reset", Channel: "email", Identifier: "a@x.io"}

	if err := store.Issue(ctx, k, testOTPRecord("123456", time.Minute), time.Minute, 0); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	wrong := sha256.Sum256([]byte("000000"))
	if _, err := store.Consume(ctx, k, wrong, 2); !errors.Is(err, ErrOTPCodeMismatch) {
		t.Fatalf("expected first mismatch, got %v", err)
	}
	if _, err := store.Consume(ctx, k, wrong, 2); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	if _, err := store.Consume(ctx, k, sha256.Sum256([]byte("123456")), 2); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected record deleted after attempts exceeded, got %v", err)
	}
}

func TestOTPStoreExpiredRecord(t *testing.T) {
	mr, rdb := newStoreTestRedis(t)
	store := NewOTPStore(rdb, "t")
	ctx := context.Background()
	k := OTPKey{Purpose: "verify", Channel: "email", Identifier: "a@x.io"}

	if err := store.Issue(ctx, k, testOTPRecord("123456", time.Minute), time.Minute, 0); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, k, sha256.Sum256([]byte("123456")), 5); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after expiry, got %v", err)
	}
}

func TestOTPStoreKeysAreScoped(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewOTPStore(rdb, "t")
	ctx := context.Background()
	base := OTPKey{TenantID: "t1", Purpose: "verify", Channel: "email", Identifier: "a@x.io"}

	if err := store.Issue(ctx, base, testOTPRecord("123456", time.Minute), time.Minute, 0); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	others := []OTPKey{
		{TenantID: "t2", Purpose: "verify", Channel: "email", Identifier: "a@x.io"},
		{TenantID: "t1", Purpose: "reset", Channel: "email", Identifier: "a@x.io"},
		{TenantID: "t1", Purpose: "verify", Channel: "sms", Identifier: "a@x.io"},
	}
	for _, k := range others {
		if _, err := store.Consume(ctx, k, sha256.Sum256([]byte("123456")), 5); !errors.Is(err, ErrOTPNotFound) {
			t.Fatalf("expected ErrOTPNotFound for %+v, got %v", k, err)
		}
	}
}

func TestOTPStoreRedisUnavailable(t *testing.T) {
	mr, rdb := newStoreTestRedis(t)
	store := NewOTPStore(rdb, "t")
	mr.Close()

	k := OTPKey{Purpose: "verify", Channel: "email", Identifier: "a@x.io"}
	err := store.Issue(context.Background(), k, testOTPRecord("123456", time.Minute), time.Minute, 0)
	if !errors.Is(err, ErrOTPRedisUnavailable) {
		t.Fatalf("expected ErrOTPRedisUnavailable, got %v", err)
	}
}

func TestOTPRecordRoundTrip(t *testing.T) {
	in := testOTPRecord("987654", time.Minute)
	in.Attempts = 3

	encoded := in.marshal()
	if len(encoded) != 51 {
		t.Fatalf("expected 51 byte record, got %d", len(encoded))
	}

	out, err := unmarshalOTPRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}
