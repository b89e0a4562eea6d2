package identity

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Register describes the register operation and its observable behavior.
//
// Register creates an account with both verification flags false and sends a
// verification code to every channel it carries. It returns ErrValidation when
// neither email nor phone is given and ErrConflict when either is taken. A
// resend cooldown on a fresh account is tolerated; any other ledger failure is
// returned after the account already exists.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if email == "" && phone == "" {
		return nil, newError(KindValidation, "email or phone is required")
	}
	if req.Password == "" {
		return nil, newError(KindValidation, "password is required")
	}

	if email != "" {
		existing, err := e.store.FindByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			e.metricInc(MetricRegisterConflict)
			return nil, newError(KindConflict, "email already registered")
		}
	}
	if phone != "" {
		existing, err := e.store.FindByPhone(ctx, phone)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			e.metricInc(MetricRegisterConflict)
			return nil, newError(KindConflict, "phone already registered")
		}
	}

	if e.config.PasswordPolicy.EnforceOnRegister {
		identifier := email
		if identifier == "" {
			identifier = phone
		}
		if err := e.config.PasswordPolicy.CheckRegistration(req.Password, identifier); err != nil {
			e.metricInc(MetricPasswordWeakRejected)
			return nil, err
		}
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	account, err := e.store.Create(ctx, NewAccount{
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		IsActive:     true,
		Extras:       req.Extras,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.metricInc(MetricRegisterConflict)
		}
		return nil, err
	}

	tenantID := tenantIDFromContext(ctx)
	var channels []string

	if account.Email != "" {
		channels = append(channels, string(ChannelEmail))
		if err := e.sendVerificationTolerant(ctx, tenantID, account, ChannelEmail, account.Email); err != nil {
			return nil, err
		}
	}
	if account.Phone != "" {
		channels = append(channels, string(ChannelPhone))
		if err := e.sendVerificationTolerant(ctx, tenantID, account, ChannelPhone, account.Phone); err != nil {
			return nil, err
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, account.ID, nil, func() map[string]string {
		return map[string]string{
			"channels": strings.Join(channels, ","),
		}
	})

	return account, nil
}

// sendVerificationTolerant swallows the resend cooldown; registration is not
// the place to surface it.
func (e *Engine) sendVerificationTolerant(ctx context.Context, tenantID string, account *Account, channel Channel, value string) error {
	err := e.sendVerification(ctx, tenantID, account, channel, value)
	if errors.Is(err, ErrOTPResendTooSoon) {
		e.metricInc(MetricOTPCooldown)
		e.logger.Debug("verification code cooldown active",
			zap.String("account_id", account.ID),
			zap.String("channel", string(channel)),
		)
		return nil
	}
	return err
}

func (e *Engine) sendVerification(ctx context.Context, tenantID string, account *Account, channel Channel, value string) error {
	kind := NotificationEmailOTP
	if channel == ChannelPhone {
		kind = NotificationSMSOTP
	}

	key := OTPKey{
		TenantID:   tenantID,
		Purpose:    PurposeVerification,
		Channel:    channel,
		Identifier: value,
	}
	return e.issueAndDispatch(ctx, key, kind, account.ID, value)
}
