package identity

import (
	"context"
	"errors"
	"time"

	"github.com/allocar/identity/internal"
	"github.com/allocar/identity/internal/stores"
	"github.com/redis/go-redis/v9"
)

// redisOTPLedger is the built-in OTPLedger. Only SHA-256 digests of codes
// reach Redis.
type redisOTPLedger struct {
	store       *stores.OTPStore
	ttl         time.Duration
	cooldown    time.Duration
	digits      int
	maxAttempts int
	now         func() time.Time
}

// NewRedisOTPLedger builds the OTPLedger the Builder installs by default.
func NewRedisOTPLedger(client redis.UniversalClient, prefix string, cfg OTPConfig) OTPLedger {
	return newRedisOTPLedger(client, prefix, cfg)
}

func newRedisOTPLedger(client redis.UniversalClient, prefix string, cfg OTPConfig) *redisOTPLedger {
	return &redisOTPLedger{
		store:       stores.NewOTPStore(client, prefix+"otp"),
		ttl:         cfg.TTL,
		cooldown:    cfg.Cooldown,
		digits:      cfg.Digits,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

func (l *redisOTPLedger) Issue(ctx context.Context, key OTPKey) (string, error) {
	code, err := internal.NewOTP(l.digits)
	if err != nil {
		return "", err
	}

	now := l.now()
	record := &stores.OTPRecord{
		SecretHash: internal.HashSecret(code),
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(l.ttl).Unix(),
	}

	if err := l.store.Issue(ctx, toStoreKey(key), record, l.ttl, l.cooldown); err != nil {
		if errors.Is(err, stores.ErrOTPCooldown) {
			return "", ErrOTPResendTooSoon
		}
		return "", err
	}
	return code, nil
}

func (l *redisOTPLedger) Verify(ctx context.Context, key OTPKey, code string) (bool, error) {
	if code == "" || !isNumericString(code) || len(code) != l.digits {
		return false, nil
	}

	_, err := l.store.Consume(ctx, toStoreKey(key), internal.HashSecret(code), l.maxAttempts)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, stores.ErrOTPNotFound),
		errors.Is(err, stores.ErrOTPCodeMismatch),
		errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return false, nil
	default:
		return false, err
	}
}

func toStoreKey(key OTPKey) stores.OTPKey {
	return stores.OTPKey{
		TenantID:   key.TenantID,
		Purpose:    string(key.Purpose),
		Channel:    string(key.Channel),
		Identifier: internal.NormalizeIdentifier(key.Identifier),
	}
}

func isNumericString(v string) bool {
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
