package identity

import (
	"errors"
	"strings"
	"time"
)

// Config holds every tunable of the Engine. Obtain a populated value with
// DefaultConfig, adjust it, and pass it to Builder.WithConfig.
type Config struct {
	Login          LoginConfig
	OTP            OTPConfig
	PasswordReset  PasswordResetConfig
	PasswordPolicy PasswordPolicy
	Password       PasswordConfig
	Audit          AuditConfig
	Notifications  NotificationConfig
	Metrics        MetricsConfig
	// RedisPrefix namespaces every ledger key written by the built-in
	// Redis ledgers.
	RedisPrefix string
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls Authenticate.
type LoginConfig struct {
	// RequireVerification rejects login while a present channel is unverified.
	RequireVerification bool
	Throttle            LoginThrottleConfig
}

// LoginThrottleConfig bounds failed logins per identifier and client IP.
type LoginThrottleConfig struct {
	Enabled          bool
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig tunes the built-in Redis OTP ledger.
type OTPConfig struct {
	TTL         time.Duration
	Cooldown    time.Duration
	Digits      int
	MaxAttempts int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

type PasswordResetConfig struct {
	TokenTTL         time.Duration
	TokenMaxAttempts int
	// EnumerationDelay adds a short random sleep when a reset is requested for
	// an unknown identifier.
	EnumerationDelay bool
	Throttle         ResetThrottleConfig
}

type ResetThrottleConfig struct {
	Enabled                  bool
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
	MaxVerifications         int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

const (
	PasswordAlgorithmArgon2 = "argon2id"
	PasswordAlgorithmBcrypt = "bcrypt"
)

// PasswordConfig selects the default hasher built when no PasswordHasher is
// supplied. Hashes from the other algorithm still verify.
type PasswordConfig struct {
	Algorithm   string
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

/*
====================================
AUDIT / NOTIFICATIONS / METRICS
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// LegacyLoginEventName labels successful logins "user.register" for
	// consumers that still key on the historical name.
	LegacyLoginEventName bool
}

type NotificationConfig struct {
	Workers     int
	BufferSize  int
	SendTimeout time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Login: LoginConfig{
			RequireVerification: false,
			Throttle: LoginThrottleConfig{
				Enabled:          false,
				EnableIPThrottle: false,
				MaxAttempts:      5,
				Cooldown:         15 * time.Minute,
			},
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			Cooldown:    60 * time.Second,
			Digits:      6,
			MaxAttempts: 5,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:         15 * time.Minute,
			TokenMaxAttempts: 5,
			EnumerationDelay: true,
			Throttle: ResetThrottleConfig{
				Enabled:                  false,
				EnableIdentifierThrottle: true,
				EnableIPThrottle:         true,
				Window:                   15 * time.Minute,
				MaxRequests:              5,
				MaxVerifications:         10,
			},
		},
		PasswordPolicy: DefaultPasswordPolicy(),
		Password: PasswordConfig{
			Algorithm:   PasswordAlgorithmArgon2,
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			BcryptCost:  12,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Notifications: NotificationConfig{
			Workers:     4,
			BufferSize:  256,
			SendTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		RedisPrefix: "id",
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.Cooldown < 0 {
		return errors.New("OTP Cooldown must be >= 0")
	}
	if c.OTP.Cooldown >= c.OTP.TTL {
		return errors.New("OTP Cooldown must be shorter than OTP TTL")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenMaxAttempts <= 0 {
		return errors.New("PasswordReset TokenMaxAttempts must be > 0")
	}
	if t := c.PasswordReset.Throttle; t.Enabled {
		if t.Window <= 0 {
			return errors.New("PasswordReset Throttle Window must be > 0")
		}
		if t.MaxRequests <= 0 || t.MaxVerifications <= 0 {
			return errors.New("PasswordReset Throttle limits must be > 0")
		}
		if !t.EnableIdentifierThrottle && !t.EnableIPThrottle {
			return errors.New("PasswordReset Throttle requires identifier or IP throttling")
		}
	}

	// Login
	if t := c.Login.Throttle; t.Enabled {
		if t.MaxAttempts <= 0 {
			return errors.New("Login Throttle MaxAttempts must be > 0")
		}
		if t.Cooldown <= 0 {
			return errors.New("Login Throttle Cooldown must be > 0")
		}
	}

	// Password policy
	if err := c.PasswordPolicy.validate(); err != nil {
		return err
	}

	// Password hashing
	switch c.Password.Algorithm {
	case PasswordAlgorithmArgon2:
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case PasswordAlgorithmBcrypt:
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Notifications
	if c.Notifications.Workers <= 0 {
		return errors.New("Notifications Workers must be > 0")
	}
	if c.Notifications.BufferSize <= 0 {
		return errors.New("Notifications BufferSize must be > 0")
	}
	if c.Notifications.SendTimeout < 0 {
		return errors.New("Notifications SendTimeout must be >= 0")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if strings.TrimSpace(c.RedisPrefix) == "" || strings.ContainsAny(c.RedisPrefix, " :") {
		return errors.New("RedisPrefix must be non-empty and contain no spaces or colons")
	}

	return nil
}
