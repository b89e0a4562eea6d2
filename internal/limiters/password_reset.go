package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// hitScript increments a window counter and arms its expiry on the first
// hit, in one round trip.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

type PasswordResetConfig struct {
	// Prefix namespaces every counter key, e.g. "identity:".
	Prefix                   string
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
	MaxVerifications         int
}

// bucket names one family of window counters.
type bucket struct {
	byIdentifier string
	byIP         string
}

var (
	requestBucket = bucket{byIdentifier: "iprq", byIP: "iprqip"}
	verifyBucket  = bucket{byIdentifier: "iprv", byIP: "iprvip"}
)

// PasswordResetLimiter throttles reset requests and reset OTP verification
// per identifier and per client IP. A nil limiter allows everything.
type PasswordResetLimiter struct {
	rdb redis.UniversalClient
	cfg PasswordResetConfig
}

func NewPasswordResetLimiter(rdb redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	return &PasswordResetLimiter{rdb: rdb, cfg: cfg}
}

// CheckRequest spends one unit of the request budget.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil {
		return nil
	}
	return l.spend(ctx, requestBucket, l.cfg.MaxRequests, tenantID, identifier, ip)
}

// CheckVerify spends one unit of the verification budget.
func (l *PasswordResetLimiter) CheckVerify(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil {
		return nil
	}
	return l.spend(ctx, verifyBucket, l.cfg.MaxVerifications, tenantID, identifier, ip)
}

func (l *PasswordResetLimiter) spend(ctx context.Context, b bucket, limit int, tenantID, identifier, ip string) error {
	scope := ":" + tenantOrDefault(tenantID) + ":"
	var keys []string
	if l.cfg.EnableIdentifierThrottle {
		keys = append(keys, l.cfg.Prefix+b.byIdentifier+scope+identifier)
	}
	if l.cfg.EnableIPThrottle && ip != "" {
		keys = append(keys, l.cfg.Prefix+b.byIP+scope+ip)
	}

	for _, key := range keys {
		n, err := hitScript.Run(ctx, l.rdb, []string{key}, l.cfg.Window.Milliseconds()).Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
		if n > int64(limit) {
			return ErrResetRateLimited
		}
	}
	return nil
}

func tenantOrDefault(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}
