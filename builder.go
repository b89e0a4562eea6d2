package identity

import (
	"context"
	"errors"

	"github.com/allocar/identity/internal/audit"
	"github.com/allocar/identity/internal/limiters"
	"github.com/allocar/identity/internal/notify"
	"github.com/allocar/identity/internal/rate"
	"github.com/allocar/identity/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dummyPassword feeds the hash verified for unknown login identifiers.
const dummyPassword = "identity-dummy-password-Zx9!"

// Builder assembles an Engine from its collaborators.
//
// Builder instances are intended to be configured during initialization and then
// discarded; Build may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	hasher    PasswordHasher
	otp       OTPLedger
	resets    ResetTokenLedger
	sender    NotificationSender
	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with DefaultConfig. It does not touch shared
// global state.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing the built-in ledgers and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithPasswordHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

// WithOTPLedger overrides the Redis OTP ledger.
func (b *Builder) WithOTPLedger(ledger OTPLedger) *Builder {
	b.otp = ledger
	return b
}

// WithResetTokenLedger overrides the Redis reset token ledger.
func (b *Builder) WithResetTokenLedger(ledger ResetTokenLedger) *Builder {
	b.resets = ledger
	return b
}

func (b *Builder) WithNotificationSender(sender NotificationSender) *Builder {
	b.sender = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, fills in default collaborators and
// starts the audit and notification goroutines. It returns an error when a
// required collaborator is missing or the configuration is inconsistent.
// A Builder cannot be reused.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.sender == nil {
		return nil, errors.New("notification sender required")
	}

	if b.redis == nil {
		if b.otp == nil || b.resets == nil {
			return nil, errors.New("redis client required")
		}
		if cfg.Login.Throttle.Enabled {
			return nil, errors.New("Login Throttle requires redis client")
		}
		if cfg.PasswordReset.Throttle.Enabled {
			return nil, errors.New("PasswordReset Throttle requires redis client")
		}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- PASSWORD HASHER --------
	hasher := b.hasher
	if hasher == nil {
		chain, err := buildPasswordChain(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = chain
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- LEDGERS --------
	prefix := cfg.RedisPrefix + ":"
	otp := b.otp
	if otp == nil {
		otp = newRedisOTPLedger(b.redis, prefix, cfg.OTP)
	}
	resets := b.resets
	if resets == nil {
		resets = newRedisResetTokenLedger(b.redis, prefix, cfg.PasswordReset)
	}

	// -------- THROTTLES --------
	var loginLimiter *rate.Limiter
	if cfg.Login.Throttle.Enabled {
		loginLimiter = rate.New(b.redis, rate.Config{
			Prefix:           prefix,
			EnableIPThrottle: cfg.Login.Throttle.EnableIPThrottle,
			MaxAttempts:      cfg.Login.Throttle.MaxAttempts,
			Cooldown:         cfg.Login.Throttle.Cooldown,
		})
	}

	var resetLimiter *limiters.PasswordResetLimiter
	if t := cfg.PasswordReset.Throttle; t.Enabled {
		resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
			Prefix:                   prefix,
			EnableIdentifierThrottle: t.EnableIdentifierThrottle,
			EnableIPThrottle:         t.EnableIPThrottle,
			Window:                   t.Window,
			MaxRequests:              t.MaxRequests,
			MaxVerifications:         t.MaxVerifications,
		})
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	e := &Engine{
		config:       cfg,
		store:        b.store,
		hasher:       hasher,
		otp:          otp,
		resets:       resets,
		loginLimiter: loginLimiter,
		resetLimiter: resetLimiter,
		audit:        dispatcher,
		metrics:      NewMetrics(cfg.Metrics),
		logger:       logger,
		dummyHash:    dummyHash,
	}

	// -------- NOTIFICATIONS --------
	sender := b.sender
	e.notifications = notify.NewQueue(notify.Config{
		Workers:     cfg.Notifications.Workers,
		BufferSize:  cfg.Notifications.BufferSize,
		SendTimeout: cfg.Notifications.SendTimeout,
	}, func(ctx context.Context, task notify.Task) error {
		return sender.Send(ctx, notificationFromTask(task))
	}, logger.Named("notify"))

	b.built = true
	return e, nil
}

// buildPasswordChain hashes with the configured algorithm and still verifies
// hashes produced by the other one.
func buildPasswordChain(cfg PasswordConfig) (*password.Chain, error) {
	argonCfg := password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	}
	bcryptCost := cfg.BcryptCost

	// The legacy scheme only verifies, so it runs with default parameters.
	if cfg.Algorithm == PasswordAlgorithmBcrypt {
		argonCfg = password.DefaultConfig()
	} else {
		bcryptCost = 0
	}

	argon, err := password.NewArgon2(argonCfg)
	if err != nil {
		return nil, err
	}

	bc, err := password.NewBcrypt(bcryptCost)
	if err != nil {
		return nil, err
	}

	if cfg.Algorithm == PasswordAlgorithmBcrypt {
		return password.NewChain(bc, argon), nil
	}
	return password.NewChain(argon, bc), nil
}
