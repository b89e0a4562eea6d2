package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	// Prefix namespaces every counter key, e.g. "identity:".
	Prefix           string
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

// failScript bumps a failure counter. The window starts at the first
// failure and is not extended by later ones.
var failScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Limiter counts failed authentication attempts per identifier and,
// optionally, per client IP, using fixed-window Redis counters.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg}
}

// Check returns ErrRateLimited once the failure budget for identifier or ip
// is spent. Counters exist whether or not the identifier names an account.
func (l *Limiter) Check(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil {
		return nil
	}
	keys := l.keys(tenantID, identifier, ip)

	pipe := l.rdb.Pipeline()
	reads := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		reads[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for _, read := range reads {
		n, err := read.Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if n >= int64(l.cfg.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordFailure counts one failed attempt against identifier and ip.
func (l *Limiter) RecordFailure(ctx context.Context, tenantID, identifier, ip string) error {
	if l == nil {
		return nil
	}
	window := l.cfg.Cooldown.Milliseconds()
	for _, key := range l.keys(tenantID, identifier, ip) {
		if err := failScript.Run(ctx, l.rdb, []string{key}, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Reset clears the identifier counter after a successful authentication.
// The IP counter is left alone so one good login cannot launder a spray.
func (l *Limiter) Reset(ctx context.Context, tenantID, identifier string) error {
	if l == nil {
		return nil
	}
	if err := l.rdb.Del(ctx, l.identifierKey(tenantID, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) keys(tenantID, identifier, ip string) []string {
	keys := []string{l.identifierKey(tenantID, identifier)}
	if l.cfg.EnableIPThrottle && ip != "" {
		keys = append(keys, l.cfg.Prefix+"iali:"+tenantOrDefault(tenantID)+":"+ip)
	}
	return keys
}

func (l *Limiter) identifierKey(tenantID, identifier string) string {
	return l.cfg.Prefix + "ial:" + tenantOrDefault(tenantID) + ":" + identifier
}

func tenantOrDefault(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}
