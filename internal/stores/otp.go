package stores

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersion = 1
	// version(1) | attempts(2) | issuedAt(8) | expiresAt(8) | sha256(32)
	otpRecordSize = 1 + 2 + 8 + 8 + 32
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPCodeMismatch     = errors.New("otp code mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPCooldown         = errors.New("otp resend cooldown active")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")

	errOTPRecordCorrupt = errors.New("otp record corrupt")
)

// scriptErrors maps the error replies of the OTP scripts to sentinels.
var scriptErrors = map[string]error{
	"cooldown":          ErrOTPCooldown,
	"not_found":         ErrOTPNotFound,
	"code_mismatch":     ErrOTPCodeMismatch,
	"attempts_exceeded": ErrOTPAttemptsExceeded,
}

// issueScript writes the record and arms the cooldown marker unless a
// previous marker is still live.
//
//	KEYS: record, cooldown
//	ARGV: record bytes, record ttl ms, cooldown ms (0 = none)
var issueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='cooldown'}
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
end
return 'OK'
`)

// verifyScript checks a code against the stored record. A match deletes the
// record and returns it. A miss bumps the attempt counter in place, keeping
// the remaining TTL, and deletes the record once the budget is gone.
//
//	KEYS: record
//	ARGV: sha256 of the code, max attempts, now (unix seconds)
var verifyScript = redis.NewScript(`
local rec = redis.call('GET', KEYS[1])
if not rec or #rec ~= 51 or string.byte(rec, 1) ~= 1 then
  if rec then redis.call('DEL', KEYS[1]) end
  return {err='not_found'}
end

local expires = 0
for i = 12, 19 do
  expires = expires * 256 + string.byte(rec, i)
end
if tonumber(ARGV[3]) > expires then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

if string.sub(rec, 20) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return rec
end

local used = string.byte(rec, 2) * 256 + string.byte(rec, 3) + 1
if used >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return {err='attempts_exceeded'}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
local bumped = string.sub(rec, 1, 1) .. string.char(math.floor(used / 256), used % 256) .. string.sub(rec, 4)
redis.call('SET', KEYS[1], bumped, 'PX', ttl)
return {err='code_mismatch'}
`)

// OTPKey addresses one outstanding code.
type OTPKey struct {
	TenantID   string
	Purpose    string
	Channel    string
	Identifier string
}

func (k OTPKey) suffix() string {
	return strings.Join([]string{normalizeTenantID(k.TenantID), k.Purpose, k.Channel, k.Identifier}, ":")
}

type OTPRecord struct {
	SecretHash [32]byte
	IssuedAt   int64
	ExpiresAt  int64
	Attempts   uint16
}

func (r *OTPRecord) marshal() []byte {
	out := make([]byte, otpRecordSize)
	out[0] = otpRecordVersion
	binary.BigEndian.PutUint16(out[1:3], r.Attempts)
	binary.BigEndian.PutUint64(out[3:11], uint64(r.IssuedAt))
	binary.BigEndian.PutUint64(out[11:19], uint64(r.ExpiresAt))
	copy(out[19:], r.SecretHash[:])
	return out
}

func unmarshalOTPRecord(data []byte) (*OTPRecord, error) {
	if len(data) != otpRecordSize || data[0] != otpRecordVersion {
		return nil, errOTPRecordCorrupt
	}
	r := &OTPRecord{
		Attempts:  binary.BigEndian.Uint16(data[1:3]),
		IssuedAt:  int64(binary.BigEndian.Uint64(data[3:11])),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[11:19])),
	}
	copy(r.SecretHash[:], data[19:])
	return r, nil
}

// OTPStore keeps one active code per key, plus a resend cooldown marker.
type OTPStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewOTPStore(rdb redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "iotp"
	}
	return &OTPStore{rdb: rdb, prefix: prefix}
}

func (s *OTPStore) recordKey(k OTPKey) string   { return s.prefix + ":" + k.suffix() }
func (s *OTPStore) cooldownKey(k OTPKey) string { return s.prefix + "cd:" + k.suffix() }

// Issue stores record as the only active code for k. It fails with
// ErrOTPCooldown while the previous issuance is still cooling down.
func (s *OTPStore) Issue(ctx context.Context, k OTPKey, record *OTPRecord, ttl, cooldown time.Duration) error {
	err := issueScript.Run(ctx, s.rdb,
		[]string{s.recordKey(k), s.cooldownKey(k)},
		record.marshal(), ttl.Milliseconds(), cooldown.Milliseconds(),
	).Err()
	return mapScriptError(err)
}

// Consume validates providedHash against the active code and deletes it on
// success. Mismatches count towards maxAttempts; the record is dropped once
// the budget is spent.
func (s *OTPStore) Consume(ctx context.Context, k OTPKey, providedHash [32]byte, maxAttempts int) (*OTPRecord, error) {
	raw, err := verifyScript.Run(ctx, s.rdb,
		[]string{s.recordKey(k)},
		providedHash[:], maxAttempts, time.Now().Unix(),
	).Text()
	if err != nil {
		return nil, mapScriptError(err)
	}

	record, err := unmarshalOTPRecord([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	// The script compares with plain string equality.
	if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrOTPCodeMismatch
	}
	return record, nil
}

func mapScriptError(err error) error {
	if err == nil {
		return nil
	}
	if sentinel, ok := scriptErrors[err.Error()]; ok {
		return sentinel
	}
	return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}
