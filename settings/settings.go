// Package settings loads process configuration for the identity daemon from
// dotenv files and the environment using Viper.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	identity "github.com/allocar/identity"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Settings holds daemon configuration. Precedence, lowest first: defaults,
// .env, .env.local, process environment.
type Settings struct {
	Env      string `mapstructure:"APP_ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// AuditFormat is "zap" for structured log entries or "json" for one
	// JSON object per line on stdout.
	AuditFormat string `mapstructure:"AUDIT_FORMAT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	// KafkaBrokers is a comma-separated broker list.
	KafkaBrokers      string `mapstructure:"KAFKA_BROKERS"`
	NotificationTopic string `mapstructure:"NOTIFICATION_TOPIC"`

	RequireVerificationForLogin bool          `mapstructure:"REQUIRE_VERIF_FOR_LOGIN"`
	OTPTTL                      time.Duration `mapstructure:"OTP_TTL"`
	OTPCooldown                 time.Duration `mapstructure:"OTP_COOLDOWN"`
	OTPDigits                   int           `mapstructure:"OTP_DIGITS"`
	ResetTokenTTL               time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	PasswordAlgorithm           string        `mapstructure:"PASSWORD_ALGORITHM"`
	MetricsEnabled              bool          `mapstructure:"METRICS_ENABLED"`
}

// Load reads dir/.env and dir/.env.local when present, then the environment.
// An empty dir means the working directory.
func Load(dir string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("env")
	v.SetConfigFile(filepath.Join(dir, ".env"))
	if err := v.ReadInConfig(); err != nil && !isMissingFile(err) {
		return nil, fmt.Errorf("settings: read .env: %w", err)
	}
	v.SetConfigFile(filepath.Join(dir, ".env.local"))
	if err := v.MergeInConfig(); err != nil && !isMissingFile(err) {
		return nil, fmt.Errorf("settings: read .env.local: %w", err)
	}

	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	defaults := identity.DefaultConfig()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUDIT_FORMAT", "zap")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", defaults.RedisPrefix)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFICATION_TOPIC", "identity.notifications")
	v.SetDefault("REQUIRE_VERIF_FOR_LOGIN", defaults.Login.RequireVerification)
	v.SetDefault("OTP_TTL", defaults.OTP.TTL)
	v.SetDefault("OTP_COOLDOWN", defaults.OTP.Cooldown)
	v.SetDefault("OTP_DIGITS", defaults.OTP.Digits)
	v.SetDefault("RESET_TOKEN_TTL", defaults.PasswordReset.TokenTTL)
	v.SetDefault("PASSWORD_ALGORITHM", defaults.Password.Algorithm)
	v.SetDefault("METRICS_ENABLED", true)
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

func (s *Settings) validate() error {
	if s.HTTPAddr == "" {
		return errors.New("settings: HTTP_ADDR must be set")
	}
	if _, err := zapcore.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("settings: LOG_LEVEL: %w", err)
	}
	switch s.AuditFormat {
	case "zap", "json":
	default:
		return fmt.Errorf("settings: AUDIT_FORMAT must be zap or json, got %q", s.AuditFormat)
	}
	return nil
}

// EngineConfig overlays the settings onto identity.DefaultConfig. The result
// is validated by the engine builder.
func (s *Settings) EngineConfig() identity.Config {
	cfg := identity.DefaultConfig()
	cfg.RedisPrefix = s.RedisPrefix
	cfg.Login.RequireVerification = s.RequireVerificationForLogin
	cfg.OTP.TTL = s.OTPTTL
	cfg.OTP.Cooldown = s.OTPCooldown
	cfg.OTP.Digits = s.OTPDigits
	cfg.PasswordReset.TokenTTL = s.ResetTokenTTL
	cfg.Password.Algorithm = strings.ToLower(strings.TrimSpace(s.PasswordAlgorithm))
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled
	return cfg
}

// Brokers splits KafkaBrokers, dropping blanks. An empty result means
// notifications go to the log instead of Kafka.
func (s *Settings) Brokers() []string {
	if s == nil || s.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(s.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if b := strings.TrimSpace(p); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Level is the parsed LOG_LEVEL.
func (s *Settings) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func (s *Settings) Production() bool {
	return strings.EqualFold(s.Env, "production")
}
