package identity

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Login.RequireVerification {
		t.Fatal("expected verification gate off by default")
	}
	if cfg.OTP.Digits != 6 || cfg.OTP.TTL != 10*time.Minute || cfg.OTP.Cooldown != time.Minute {
		t.Fatalf("unexpected OTP defaults: %+v", cfg.OTP)
	}
	if p := cfg.PasswordPolicy; p.MinLength != 8 || p.MaxLength != 64 {
		t.Fatalf("unexpected policy bounds: %+v", p)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"otp ttl", func(c *Config) { c.OTP.TTL = 0 }, "OTP TTL"},
		{"cooldown not shorter than ttl", func(c *Config) { c.OTP.Cooldown = c.OTP.TTL }, "Cooldown must be shorter"},
		{"digits", func(c *Config) { c.OTP.Digits = 3 }, "Digits"},
		{"otp attempts", func(c *Config) { c.OTP.MaxAttempts = 0 }, "OTP MaxAttempts"},
		{"token ttl", func(c *Config) { c.PasswordReset.TokenTTL = 0 }, "TokenTTL"},
		{"reset throttle window", func(c *Config) {
			c.PasswordReset.Throttle.Enabled = true
			c.PasswordReset.Throttle.Window = 0
		}, "Throttle Window"},
		{"reset throttle scope", func(c *Config) {
			c.PasswordReset.Throttle.Enabled = true
			c.PasswordReset.Throttle.EnableIdentifierThrottle = false
			c.PasswordReset.Throttle.EnableIPThrottle = false
		}, "identifier or IP"},
		{"login throttle", func(c *Config) {
			c.Login.Throttle.Enabled = true
			c.Login.Throttle.MaxAttempts = 0
		}, "Login Throttle MaxAttempts"},
		{"policy bounds", func(c *Config) { c.PasswordPolicy.MaxLength = 4 }, "MaxLength"},
		{"argon memory", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"bcrypt cost", func(c *Config) {
			c.Password.Algorithm = PasswordAlgorithmBcrypt
			c.Password.BcryptCost = 40
		}, "BcryptCost"},
		{"algorithm", func(c *Config) { c.Password.Algorithm = "md5" }, "Algorithm"},
		{"audit buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "Audit BufferSize"},
		{"workers", func(c *Config) { c.Notifications.Workers = 0 }, "Workers"},
		{"latency without metrics", func(c *Config) { c.Metrics.EnableLatencyHistograms = true }, "EnableLatencyHistograms"},
		{"redis prefix", func(c *Config) { c.RedisPrefix = "a:b" }, "RedisPrefix"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %q", tc.want, err)
			}
		})
	}
}

func TestConfigBcryptIgnoresArgonParameters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password.Algorithm = PasswordAlgorithmBcrypt
	cfg.Password.Memory = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected bcrypt config to validate, got %v", err)
	}
}
