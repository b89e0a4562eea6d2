package identity

import (
	"context"
	"errors"
	"time"

	"github.com/allocar/identity/internal"
	"github.com/allocar/identity/internal/stores"
	"github.com/redis/go-redis/v9"
)

type redisResetTokenLedger struct {
	store       *stores.ResetTokenStore
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewRedisResetTokenLedger builds the ResetTokenLedger the Builder installs
// by default.
func NewRedisResetTokenLedger(client redis.UniversalClient, prefix string, cfg PasswordResetConfig) ResetTokenLedger {
	return newRedisResetTokenLedger(client, prefix, cfg)
}

func newRedisResetTokenLedger(client redis.UniversalClient, prefix string, cfg PasswordResetConfig) *redisResetTokenLedger {
	return &redisResetTokenLedger{
		store:       stores.NewResetTokenStore(client, prefix+"rt"),
		ttl:         cfg.TokenTTL,
		maxAttempts: cfg.TokenMaxAttempts,
		now:         time.Now,
	}
}

func (l *redisResetTokenLedger) Issue(ctx context.Context, tenantID, identifier string) (string, error) {
	token, err := internal.NewResetToken()
	if err != nil {
		return "", err
	}

	record := &stores.ResetTokenRecord{
		SecretHash: internal.HashSecret(token),
		ExpiresAt:  l.now().Add(l.ttl).Unix(),
	}
	if err := l.store.Save(ctx, tenantID, internal.NormalizeIdentifier(identifier), record, l.ttl); err != nil {
		return "", err
	}
	return token, nil
}

func (l *redisResetTokenLedger) Consume(ctx context.Context, tenantID, identifier, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	_, err := l.store.Consume(ctx, tenantID, internal.NormalizeIdentifier(identifier), internal.HashSecret(token), l.maxAttempts)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, stores.ErrResetTokenNotFound),
		errors.Is(err, stores.ErrResetTokenMismatch),
		errors.Is(err, stores.ErrResetTokenAttemptsExceeded):
		return false, nil
	default:
		return false, err
	}
}
