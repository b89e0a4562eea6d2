package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/allocar/identity/internal"
	"github.com/allocar/identity/internal/limiters"
	"go.uber.org/zap"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset sends a reset code on each requested channel the
// account carries. The result never reveals whether identifier exists: an
// unknown identifier, a throttled request and a cooling-down channel all
// return nil. Only collaborator failures are returned.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string, channels []ResetChannel) error {
	if err := e.ready(); err != nil {
		return err
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	tenantID := tenantIDFromContext(ctx)
	if err := e.resetLimiter.CheckRequest(ctx, tenantID, internal.NormalizeIdentifier(identifier), clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrResetRateLimited) {
			e.metricInc(MetricPasswordResetRateLimited)
			e.logger.Debug("password reset request throttled", zap.String("tenant_id", tenantID))
			return nil
		}
		return err
	}

	e.metricInc(MetricPasswordResetRequest)

	account, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if account == nil {
		if e.config.PasswordReset.EnumerationDelay {
			return sleepPasswordResetEnumerationDelay(ctx)
		}
		return nil
	}

	var sent []string
	for _, ch := range uniqueResetChannels(channels) {
		var key OTPKey
		var kind NotificationKind
		var recipient string

		switch {
		case ch == ResetChannelEmail && account.Email != "":
			key = OTPKey{TenantID: tenantID, Purpose: PurposePasswordReset, Channel: ChannelEmail, Identifier: account.Email}
			kind, recipient = NotificationEmailResetOTP, account.Email
		case ch == ResetChannelSMS && account.Phone != "":
			key = OTPKey{TenantID: tenantID, Purpose: PurposePasswordReset, Channel: ChannelPhone, Identifier: account.Phone}
			kind, recipient = NotificationSMSOTP, account.Phone
		default:
			continue
		}

		if err := e.issueAndDispatch(ctx, key, kind, account.ID, recipient); err != nil {
			if errors.Is(err, ErrOTPResendTooSoon) {
				e.metricInc(MetricOTPCooldown)
				e.logger.Debug("reset code cooldown active",
					zap.String("account_id", account.ID),
					zap.String("channel", string(ch)),
				)
				continue
			}
			return err
		}
		sent = append(sent, string(ch))
	}

	e.emitAudit(ctx, auditEventPasswordResetRequested, true, account.ID, nil, func() map[string]string {
		return map[string]string{"channels": strings.Join(sent, ",")}
	})
	return nil
}

// VerifyResetOTP describes the verifyresetotp operation and its observable behavior.
//
// VerifyResetOTP looks the account up strictly on the given channel (email
// only checks email, sms only checks phone), verifies the reset code, and
// returns a single-use reset token bound to identifier. A missing account is
// ErrNotFound and a failed code is ErrOTPInvalid.
func (e *Engine) VerifyResetOTP(ctx context.Context, identifier string, channel ResetChannel, code string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", newError(KindValidation, "identifier is required")
	}
	if channel != ResetChannelEmail && channel != ResetChannelSMS {
		return "", newError(KindValidation, "unknown reset channel")
	}

	tenantID := tenantIDFromContext(ctx)
	if err := e.resetLimiter.CheckVerify(ctx, tenantID, internal.NormalizeIdentifier(identifier), clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrResetRateLimited) {
			e.metricInc(MetricPasswordResetRateLimited)
			return "", ErrRateLimited
		}
		return "", err
	}

	var (
		account *Account
		err     error
		key     = OTPKey{TenantID: tenantID, Purpose: PurposePasswordReset}
	)
	if channel == ResetChannelEmail {
		account, err = e.store.FindByEmail(ctx, identifier)
		key.Channel = ChannelEmail
	} else {
		account, err = e.store.FindByPhone(ctx, identifier)
		key.Channel = ChannelPhone
	}
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrNotFound
	}

	if key.Channel == ChannelEmail {
		key.Identifier = account.Email
	} else {
		key.Identifier = account.Phone
	}

	ok, err := e.otp.Verify(ctx, key, code)
	if err != nil {
		return "", err
	}
	if !ok {
		e.metricInc(MetricPasswordResetVerifyFailure)
		e.emitAudit(ctx, auditEventPasswordResetVerified, false, account.ID, ErrOTPInvalid, nil)
		return "", ErrOTPInvalid
	}

	token, err := e.resets.Issue(ctx, tenantID, identifier)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricPasswordResetVerifySuccess)
	e.emitAudit(ctx, auditEventPasswordResetVerified, true, account.ID, nil, func() map[string]string {
		return map[string]string{"channel": string(channel)}
	})
	return token, nil
}

// ResetPasswordWithToken describes the resetpasswordwithtoken operation and its observable behavior.
//
// ResetPasswordWithToken consumes token for identifier and, when the new
// password passes the strength policy, stores its hash. The token is spent
// even when the password is then rejected. A reused, wrong or expired token
// returns ErrInvalidToken.
func (e *Engine) ResetPasswordWithToken(ctx context.Context, identifier, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	identifier = strings.TrimSpace(identifier)
	account, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrNotFound
	}

	ok, err := e.resets.Consume(ctx, tenantIDFromContext(ctx), identifier, token)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordResetInvalidToken)
		e.emitAudit(ctx, auditEventPasswordReset, false, account.ID, ErrInvalidToken, nil)
		return ErrInvalidToken
	}

	if err := e.CheckPasswordStrength(newPassword, account.PasswordHash, identifier); err != nil {
		e.emitAudit(ctx, auditEventPasswordReset, false, account.ID, err, nil)
		return err
	}

	if err := e.storePassword(ctx, account, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordReset, true, account.ID, nil, nil)
	return nil
}

func uniqueResetChannels(channels []ResetChannel) []ResetChannel {
	out := make([]ResetChannel, 0, len(channels))
	for _, ch := range channels {
		dup := false
		for _, seen := range out {
			if seen == ch {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ch)
		}
	}
	return out
}

func sleepPasswordResetEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
