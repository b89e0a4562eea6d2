package identity

import (
	"context"
	"errors"
	"time"

	"github.com/allocar/identity/internal/audit"
)

const (
	auditEventRegister               = "user.register"
	auditEventLogin                  = "user.login"
	auditEventLoginFailure           = "user.login_failure"
	auditEventOTPVerified            = "user.otp_verified"
	auditEventPasswordResetRequested = "user.password_reset_requested"
	auditEventPasswordResetVerified  = "user.password_reset_verified"
	auditEventPasswordReset          = "user.password_reset"
	auditEventPasswordChanged        = "user.password_changed"
	auditEventPasswordChangeFailure  = "user.password_change_failure"

	auditActorUser      = "user"
	auditActorAnonymous = "anonymous"
	auditTargetUser     = "user"
)

func (e *Engine) loginEventName() string {
	if e.config.Audit.LegacyLoginEventName {
		return auditEventRegister
	}
	return auditEventLogin
}

// emitAudit records an event about accountID performed by that same account.
// An empty accountID produces an anonymous actor with no target.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ActorType: auditActorAnonymous,
		TenantID:  tenantIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if accountID != "" {
		event.ActorType = auditActorUser
		event.ActorID = accountID
		event.TargetType = auditTargetUser
		event.TargetID = accountID
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode never leaks collaborator error text into the audit trail.
func auditErrorCode(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal_error"
}
