package identity

import (
	"context"
	"errors"
	"strings"
)

// RequestOTP describes the requestotp operation and its observable behavior.
//
// RequestOTP issues a fresh verification code for every non-empty channel
// value and queues its delivery. This is the explicit resend action, so every
// ledger failure is returned, including ErrOTPResendTooSoon.
func (e *Engine) RequestOTP(ctx context.Context, account *Account, email, phone string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if account == nil || account.ID == "" {
		return newError(KindValidation, "account is required")
	}

	tenantID := tenantIDFromContext(ctx)
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)

	if email != "" {
		if err := e.sendVerification(ctx, tenantID, account, ChannelEmail, email); err != nil {
			e.countCooldown(err)
			return err
		}
	}
	if phone != "" {
		if err := e.sendVerification(ctx, tenantID, account, ChannelPhone, phone); err != nil {
			e.countCooldown(err)
			return err
		}
	}
	return nil
}

// VerifyOTP describes the verifyotp operation and its observable behavior.
//
// VerifyOTP checks code for the account's own email or phone and marks that
// channel verified. identifier must match the stored value (case-insensitive
// for email, exact for phone) so one account cannot claim another's address.
// Wrong, expired and missing codes all return ErrOTPInvalid; a code that
// succeeded once never succeeds again.
func (e *Engine) VerifyOTP(ctx context.Context, account *Account, channel Channel, identifier, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if account == nil || account.ID == "" {
		return newError(KindValidation, "account is required")
	}

	var stored string
	switch channel {
	case ChannelEmail:
		if account.Email == "" || !sameEmail(identifier, account.Email) {
			return newError(KindValidation, "email does not belong to account")
		}
		stored = account.Email
	case ChannelPhone:
		if account.Phone == "" || identifier != account.Phone {
			return newError(KindValidation, "phone does not belong to account")
		}
		stored = account.Phone
	default:
		return newError(KindValidation, "unknown channel")
	}

	key := OTPKey{
		TenantID:   tenantIDFromContext(ctx),
		Purpose:    PurposeVerification,
		Channel:    channel,
		Identifier: stored,
	}

	ok, err := e.otp.Verify(ctx, key, code)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerified, false, account.ID, ErrOTPInvalid, channelMetadata(channel))
		return ErrOTPInvalid
	}

	// Flip the flag on the stored copy, not the caller's.
	current, err := e.store.FindByID(ctx, account.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}

	switch channel {
	case ChannelEmail:
		current.IsEmailVerified = true
	case ChannelPhone:
		current.IsPhoneVerified = true
	}
	if err := e.store.Save(ctx, current); err != nil {
		return err
	}

	account.IsEmailVerified = account.IsEmailVerified || current.IsEmailVerified
	account.IsPhoneVerified = account.IsPhoneVerified || current.IsPhoneVerified

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerified, true, account.ID, nil, channelMetadata(channel))
	return nil
}

func (e *Engine) countCooldown(err error) {
	if errors.Is(err, ErrOTPResendTooSoon) {
		e.metricInc(MetricOTPCooldown)
	}
}

func channelMetadata(channel Channel) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"channel": string(channel)}
	}
}
