package identity

import (
	"context"
	"errors"
	"time"

	"github.com/allocar/identity/internal"
	"github.com/allocar/identity/internal/rate"
	"go.uber.org/zap"
)

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate looks identifier up as an email and then as a phone and
// verifies password against the stored hash. Unknown identifiers, accounts
// without a hash and wrong passwords all return ErrInvalidCredentials with the
// same cost profile. When Config.Login.RequireVerification is set an
// unverified email or phone blocks login; an inactive account is always
// rejected with ErrUserInactive.
func (e *Engine) Authenticate(ctx context.Context, identifier, password string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if e.metrics.enableLatency {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	tenantID := tenantIDFromContext(ctx)
	ip := clientIPFromContext(ctx)
	// Case variants of one email share a failure budget.
	throttleKey := internal.NormalizeIdentifier(identifier)

	if err := e.loginLimiter.Check(ctx, tenantID, throttleKey, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrRateLimited, loginFailureMetadata("rate_limited"))
			return nil, ErrRateLimited
		}
		return nil, err
	}

	account, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if account == nil || account.PasswordHash == "" {
		// Burn the same hashing cost as a real verification.
		_, _ = e.hasher.Verify(password, e.dummyHash)
		return nil, e.loginFailed(ctx, tenantID, throttleKey, ip, "")
	}

	ok, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		e.logger.Warn("stored password hash unusable", zap.String("account_id", account.ID), zap.Error(err))
		return nil, e.loginFailed(ctx, tenantID, throttleKey, ip, account.ID)
	}
	if !ok {
		return nil, e.loginFailed(ctx, tenantID, throttleKey, ip, account.ID)
	}

	if err := e.loginLimiter.Reset(ctx, tenantID, throttleKey); err != nil {
		e.logger.Warn("login throttle reset failed", zap.Error(err))
	}

	if e.config.Login.RequireVerification {
		if account.Email != "" && !account.IsEmailVerified {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrEmailNotVerified, loginFailureMetadata("email_not_verified"))
			return nil, ErrEmailNotVerified
		}
		if account.Phone != "" && !account.IsPhoneVerified {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrPhoneNotVerified, loginFailureMetadata("phone_not_verified"))
			return nil, ErrPhoneNotVerified
		}
	}

	if !account.IsActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrUserInactive, loginFailureMetadata("user_inactive"))
		return nil, ErrUserInactive
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, e.loginEventName(), true, account.ID, nil, nil)

	return account, nil
}

// loginFailed records a credential failure. accountID is empty when the
// identifier is unknown; the returned error is identical either way.
func (e *Engine) loginFailed(ctx context.Context, tenantID, throttleKey, ip, accountID string) error {
	if err := e.loginLimiter.RecordFailure(ctx, tenantID, throttleKey, ip); err != nil {
		e.logger.Warn("login throttle update failed", zap.Error(err))
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, ErrInvalidCredentials, loginFailureMetadata("invalid_credentials"))
	return ErrInvalidCredentials
}

func loginFailureMetadata(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
