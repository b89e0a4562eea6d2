package internaldefs

import (
	identity "github.com/allocar/identity"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: identity.MetricRegisterSuccess, Name: "identity_register_success_total", Help: "Accounts created."},
	{ID: identity.MetricRegisterConflict, Name: "identity_register_conflict_total", Help: "Registrations rejected because the email or phone is taken."},
	{ID: identity.MetricLoginSuccess, Name: "identity_login_success_total", Help: "Successful authentications."},
	{ID: identity.MetricLoginFailure, Name: "identity_login_failure_total", Help: "Failed authentications."},
	{ID: identity.MetricLoginRateLimited, Name: "identity_login_rate_limited_total", Help: "Authentications refused by the login throttle."},
	{ID: identity.MetricOTPIssued, Name: "identity_otp_issued_total", Help: "One-time codes issued."},
	{ID: identity.MetricOTPCooldown, Name: "identity_otp_cooldown_total", Help: "Code issuances refused during the resend cooldown."},
	{ID: identity.MetricOTPVerifySuccess, Name: "identity_otp_verify_success_total", Help: "Channels verified."},
	{ID: identity.MetricOTPVerifyFailure, Name: "identity_otp_verify_failure_total", Help: "Verification codes rejected."},
	{ID: identity.MetricPasswordResetRequest, Name: "identity_password_reset_request_total", Help: "Password reset requests."},
	{ID: identity.MetricPasswordResetRateLimited, Name: "identity_password_reset_rate_limited_total", Help: "Reset requests or verifications refused by the reset throttle."},
	{ID: identity.MetricPasswordResetVerifySuccess, Name: "identity_password_reset_verify_success_total", Help: "Reset codes exchanged for a token."},
	{ID: identity.MetricPasswordResetVerifyFailure, Name: "identity_password_reset_verify_failure_total", Help: "Reset codes rejected."},
	{ID: identity.MetricPasswordResetSuccess, Name: "identity_password_reset_success_total", Help: "Passwords replaced with a reset token."},
	{ID: identity.MetricPasswordResetInvalidToken, Name: "identity_password_reset_invalid_token_total", Help: "Reset tokens rejected."},
	{ID: identity.MetricPasswordChangeSuccess, Name: "identity_password_change_success_total", Help: "Authenticated password changes."},
	{ID: identity.MetricPasswordChangeInvalidOld, Name: "identity_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: identity.MetricPasswordWeakRejected, Name: "identity_password_weak_rejected_total", Help: "Passwords rejected by the strength policy."},
	{ID: identity.MetricNotificationDropped, Name: "identity_notification_dropped_total", Help: "Notifications dropped before reaching a worker."},
}

var HistogramDefs = []HistogramDef{
	{ID: identity.MetricAuthenticateLatency, Name: "identity_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one extra +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
