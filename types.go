package identity

import (
	"context"
	"time"
)

// Account is the credential-bearing identity. An empty Email or Phone
// means the channel is absent. Verification flags only move false to true.
type Account struct {
	ID              string
	Email           string
	Phone           string
	PasswordHash    string
	IsEmailVerified bool
	IsPhoneVerified bool
	IsActive        bool
	Extras          map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Identifier returns the email, falling back to the phone.
func (a *Account) Identifier() string {
	if a == nil {
		return ""
	}
	if a.Email != "" {
		return a.Email
	}
	return a.Phone
}

// NewAccount is the creation payload handed to a CredentialStore.
type NewAccount struct {
	Email        string
	Phone        string
	PasswordHash string
	IsActive     bool
	Extras       map[string]string
}

// RegisterRequest is the input to Engine.Register.
type RegisterRequest struct {
	Email    string
	Phone    string
	Password string
	Extras   map[string]string
}

// Channel is a verification channel on an account.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// ResetChannel names a delivery channel for password reset codes.
type ResetChannel string

const (
	ResetChannelEmail ResetChannel = "email"
	ResetChannelSMS   ResetChannel = "sms"
)

// OTPPurpose separates verification codes from reset codes so one can
// never satisfy the other.
type OTPPurpose string

const (
	PurposeVerification  OTPPurpose = "verify"
	PurposePasswordReset OTPPurpose = "reset"
)

// OTPKey addresses the single outstanding code for a purpose, channel and
// identifier within a tenant.
type OTPKey struct {
	TenantID   string
	Purpose    OTPPurpose
	Channel    Channel
	Identifier string
}

// NotificationKind selects the template a NotificationSender renders.
type NotificationKind string

const (
	NotificationEmailOTP      NotificationKind = "email_otp"
	NotificationSMSOTP        NotificationKind = "sms_otp"
	NotificationEmailResetOTP NotificationKind = "email_reset_otp"
)

// Notification is one outbound message carrying a freshly issued code.
type Notification struct {
	Kind      NotificationKind
	TenantID  string
	AccountID string
	Recipient string
	Code      string
}

// CredentialStore persists accounts. Find methods return (nil, nil) when no
// account matches. Create must surface a unique-constraint race as an error
// matching ErrConflict.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByPhone(ctx context.Context, phone string) (*Account, error)
	Create(ctx context.Context, account NewAccount) (*Account, error)
	Save(ctx context.Context, account *Account) error
}

// PasswordHasher derives and verifies password hashes. Verify must compare
// in constant time.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// OTPLedger issues and verifies one-time codes. Issue returns
// ErrOTPResendTooSoon while the cooldown for key is active; otherwise the
// new code replaces any outstanding one. Verify consumes the code on
// success and reports false for wrong, expired or missing codes.
type OTPLedger interface {
	Issue(ctx context.Context, key OTPKey) (string, error)
	Verify(ctx context.Context, key OTPKey, code string) (bool, error)
}

// ResetTokenLedger issues single-use reset tokens bound to an identifier.
// Consume returns true at most once per issued token.
type ResetTokenLedger interface {
	Issue(ctx context.Context, tenantID, identifier string) (string, error)
	Consume(ctx context.Context, tenantID, identifier, token string) (bool, error)
}

// NotificationSender delivers a Notification. The Engine always calls it off
// the request path.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationSenderFunc adapts a function to NotificationSender.
type NotificationSenderFunc func(ctx context.Context, n Notification) error

func (f NotificationSenderFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
