package identity

import (
	"context"
)

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword replaces the password of accountID after verifying
// oldPassword. It returns ErrNotFound for an unknown account,
// ErrInvalidCredentials when oldPassword does not verify, and ErrWeakPassword
// when newPassword fails the strength policy (reusing the current password
// included).
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrNotFound
	}

	if account.PasswordHash == "" {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	ok, err := e.hasher.Verify(oldPassword, account.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.CheckPasswordStrength(newPassword, account.PasswordHash, account.Identifier()); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, err, nil)
		return err
	}

	if err := e.storePassword(ctx, account, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChanged, true, account.ID, nil, nil)
	return nil
}

// CheckPasswordStrength applies the configured PasswordPolicy and the reuse
// rule. Composition is checked first, then reuse against currentHash (skipped
// when empty), then the identifier. Every rejection matches ErrWeakPassword.
func (e *Engine) CheckPasswordStrength(password, currentHash, identifier string) error {
	if err := e.ready(); err != nil {
		return err
	}

	policy := e.config.PasswordPolicy
	if err := policy.CheckComposition(password); err != nil {
		e.metricInc(MetricPasswordWeakRejected)
		return err
	}

	if currentHash != "" {
		same, err := e.hasher.Verify(password, currentHash)
		if err != nil {
			return err
		}
		if same {
			e.metricInc(MetricPasswordWeakRejected)
			return weakPassword("new password must differ from the current one")
		}
	}

	if err := policy.CheckIdentifier(password, identifier); err != nil {
		e.metricInc(MetricPasswordWeakRejected)
		return err
	}
	return nil
}

func (e *Engine) storePassword(ctx context.Context, account *Account, newPassword string) error {
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	return e.store.Save(ctx, account)
}
