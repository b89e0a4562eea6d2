package identity

import (
	"github.com/allocar/identity/internal/notify"
	"go.uber.org/zap"
)

func notificationFromTask(task notify.Task) Notification {
	return Notification{
		Kind:      NotificationKind(task.Kind),
		TenantID:  task.TenantID,
		AccountID: task.AccountID,
		Recipient: task.Recipient,
		Code:      task.Code,
	}
}

// dispatch hands n to the worker pool. Delivery never fails the calling
// operation; a full or closed queue only costs the message.
func (e *Engine) dispatch(n Notification) {
	err := e.notifications.Submit(notify.Task{
		Kind:      string(n.Kind),
		TenantID:  n.TenantID,
		AccountID: n.AccountID,
		Recipient: n.Recipient,
		Code:      n.Code,
	})
	if err == nil {
		return
	}

	e.metricInc(MetricNotificationDropped)
	e.logger.Warn("notification dropped",
		zap.String("kind", string(n.Kind)),
		zap.String("tenant_id", n.TenantID),
		zap.String("account_id", n.AccountID),
		zap.Error(err),
	)
}
