package identity

import "errors"

// ErrorKind is the stable, machine-readable classification of an identity
// failure. Boundary layers map kinds to transport status codes.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindConflict           ErrorKind = "conflict"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindEmailNotVerified   ErrorKind = "email_not_verified"
	KindPhoneNotVerified   ErrorKind = "phone_not_verified"
	KindUserInactive       ErrorKind = "user_inactive"
	KindOTPInvalid         ErrorKind = "otp_invalid"
	KindInvalidToken       ErrorKind = "invalid_token"
	KindNotFound           ErrorKind = "not_found"
	KindWeakPassword       ErrorKind = "weak_password"
	KindOTPResendTooSoon   ErrorKind = "otp_resend_too_soon"
	KindRateLimited        ErrorKind = "rate_limited"
	KindEngineNotReady     ErrorKind = "engine_not_ready"
)

// Error carries a kind and a human-readable message. Two *Error values
// match under errors.Is when their kinds are equal, so callers can compare
// against the exported sentinels regardless of message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is nil or carries no kind (an unmodified collaborator failure).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

var (
	// ErrValidation is returned when a request is structurally invalid.
	ErrValidation = newError(KindValidation, "validation error")
	// ErrConflict is returned when an email or phone is already registered.
	ErrConflict = newError(KindConflict, "identifier already registered")
	// ErrInvalidCredentials is the single failure for unknown identifier, missing hash or wrong password.
	ErrInvalidCredentials = newError(KindInvalidCredentials, "invalid credentials")
	ErrEmailNotVerified   = newError(KindEmailNotVerified, "email not verified")
	ErrPhoneNotVerified   = newError(KindPhoneNotVerified, "phone not verified")
	ErrUserInactive       = newError(KindUserInactive, "user inactive")
	// ErrOTPInvalid covers wrong, expired, missing and exhausted codes alike.
	ErrOTPInvalid     = newError(KindOTPInvalid, "invalid or expired code")
	ErrInvalidToken   = newError(KindInvalidToken, "invalid or expired reset token")
	ErrNotFound       = newError(KindNotFound, "account not found")
	ErrWeakPassword   = newError(KindWeakPassword, "password does not meet policy")
	ErrRateLimited    = newError(KindRateLimited, "too many attempts")
	ErrEngineNotReady = newError(KindEngineNotReady, "engine not initialized")
	// ErrOTPResendTooSoon is returned by an OTPLedger while the previous
	// code for the same key is still cooling down.
	ErrOTPResendTooSoon = newError(KindOTPResendTooSoon, "otp resend too soon")
)
