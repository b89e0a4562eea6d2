package identity

import (
	"context"
	"strings"

	"github.com/allocar/identity/internal/audit"
	"github.com/allocar/identity/internal/limiters"
	"github.com/allocar/identity/internal/notify"
	"github.com/allocar/identity/internal/rate"
	"go.uber.org/zap"
)

// Engine runs the identity and credential lifecycle: registration, channel
// verification, authentication and the password reset exchange.
//
// Engine instances are built once by a Builder and are safe for concurrent use.
type Engine struct {
	config        Config
	store         CredentialStore
	hasher        PasswordHasher
	otp           OTPLedger
	resets        ResetTokenLedger
	notifications *notify.Queue
	loginLimiter  *rate.Limiter
	resetLimiter  *limiters.PasswordResetLimiter
	audit         *audit.Dispatcher
	metrics       *Metrics
	logger        *zap.Logger
	dummyHash     string
}

// Close describes the close operation and its observable behavior.
//
// Close drains queued notifications and then queued audit events. Operations
// must not be called after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.notifications != nil {
		e.notifications.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotificationsDropped reports notifications lost to a full or closed queue.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil || e.notifications == nil {
		return 0
	}
	return e.notifications.Stats().Dropped
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.hasher == nil || e.otp == nil || e.resets == nil || e.notifications == nil {
		return ErrEngineNotReady
	}
	return nil
}

// lookupByIdentifier tries email first, then phone. A nil account with a nil
// error means neither matched.
func (e *Engine) lookupByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	if identifier == "" {
		return nil, nil
	}

	account, err := e.store.FindByEmail(ctx, identifier)
	if err != nil || account != nil {
		return account, err
	}
	return e.store.FindByPhone(ctx, identifier)
}

// issueAndDispatch issues a code for key and queues its delivery to recipient.
func (e *Engine) issueAndDispatch(ctx context.Context, key OTPKey, kind NotificationKind, accountID, recipient string) error {
	code, err := e.otp.Issue(ctx, key)
	if err != nil {
		return err
	}

	e.metricInc(MetricOTPIssued)
	e.dispatch(Notification{
		Kind:      kind,
		TenantID:  key.TenantID,
		AccountID: accountID,
		Recipient: recipient,
		Code:      code,
	})
	return nil
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
