package stores

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetRecordVersion = 1
	// version(1) | attempts(2) | expiresAt(8) | sha256(32)
	resetRecordSize = 1 + 2 + 8 + 32

	consumeRetries = 4
)

var (
	ErrResetTokenNotFound         = errors.New("reset token not found")
	ErrResetTokenMismatch         = errors.New("reset token mismatch")
	ErrResetTokenAttemptsExceeded = errors.New("reset token attempts exceeded")
	ErrResetTokenRedisUnavailable = errors.New("reset token redis unavailable")

	errResetRecordCorrupt = errors.New("reset token record corrupt")
)

// ResetTokenRecord is the stored form of a reset token. Only the SHA-256 of
// the token is kept.
type ResetTokenRecord struct {
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// ResetTokenStore keeps at most one reset token per tenant and identifier.
type ResetTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewResetTokenStore(redisClient redis.UniversalClient, prefix string) *ResetTokenStore {
	if prefix == "" {
		prefix = "irt"
	}
	return &ResetTokenStore{redis: redisClient, prefix: prefix}
}

func (s *ResetTokenStore) key(tenantID, identifier string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + identifier
}

// Save binds record to identifier, replacing any token issued earlier.
func (s *ResetTokenStore) Save(ctx context.Context, tenantID, identifier string, record *ResetTokenRecord, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(tenantID, identifier), record.marshal(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetTokenRedisUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the stored record. A match deletes the
// record inside a WATCH transaction, so concurrent callers see at most one
// success. A miss bumps the attempt counter and deletes the record once
// maxAttempts is reached.
func (s *ResetTokenStore) Consume(
	ctx context.Context,
	tenantID, identifier string,
	providedHash [32]byte,
	maxAttempts int,
) (*ResetTokenRecord, error) {
	key := s.key(tenantID, identifier)

	for i := 0; i < consumeRetries; i++ {
		var matched *ResetTokenRecord
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			record, err := s.load(ctx, tx, key)
			if err != nil {
				return err
			}

			remaining := time.Until(time.Unix(record.ExpiresAt, 0))
			if remaining <= 0 {
				return s.discard(ctx, tx, key, ErrResetTokenNotFound)
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) == 1 {
				matched = record
				return s.discard(ctx, tx, key, nil)
			}

			record.Attempts++
			if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
				return s.discard(ctx, tx, key, ErrResetTokenAttemptsExceeded)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, record.marshal(), remaining)
				return nil
			})
			if err != nil {
				return err
			}
			return ErrResetTokenMismatch
		}, key)

		switch {
		case err == nil:
			return matched, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return nil, ErrResetTokenNotFound
		case errors.Is(err, ErrResetTokenNotFound),
			errors.Is(err, ErrResetTokenMismatch),
			errors.Is(err, ErrResetTokenAttemptsExceeded):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrResetTokenRedisUnavailable, err)
		}
	}

	// Every retry lost the race to another consumer.
	return nil, ErrResetTokenNotFound
}

func (s *ResetTokenStore) load(ctx context.Context, tx *redis.Tx, key string) (*ResetTokenRecord, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	return unmarshalResetRecord(data)
}

// discard deletes key in the watched transaction and then reports outcome.
func (s *ResetTokenStore) discard(ctx context.Context, tx *redis.Tx, key string, outcome error) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

func (r *ResetTokenRecord) marshal() []byte {
	buf := make([]byte, resetRecordSize)
	buf[0] = resetRecordVersion
	binary.BigEndian.PutUint16(buf[1:3], r.Attempts)
	binary.BigEndian.PutUint64(buf[3:11], uint64(r.ExpiresAt))
	copy(buf[11:], r.SecretHash[:])
	return buf
}

func unmarshalResetRecord(data []byte) (*ResetTokenRecord, error) {
	if len(data) != resetRecordSize || data[0] != resetRecordVersion {
		return nil, errResetRecordCorrupt
	}
	r := &ResetTokenRecord{
		Attempts:  binary.BigEndian.Uint16(data[1:3]),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[3:11])),
	}
	copy(r.SecretHash[:], data[11:])
	return r, nil
}
