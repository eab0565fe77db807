package auth

import (
	"context"
)

// NotificationKind identifies the message template
type NotificationKind string

const (
	NotifyCompanyApproved NotificationKind = "company.approved"
	NotifyCompanyRejected NotificationKind = "company.rejected"
	NotifyMemberApproved  NotificationKind = "member.approved"
	NotifyMemberRejected  NotificationKind = "member.rejected"
	NotifyPasswordReset   NotificationKind = "password.reset"
)

// Notification is a message for a single recipient
type Notification struct {
	Kind      NotificationKind
	Recipient string
	Name      string
	Data      map[string]any
}

// Notifier delivers notifications, e.g. by email. Delivery failures are
// logged by callers and never fail the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

// LogNotifier writes notifications to a logger instead of sending them
type LogNotifier struct {
	Logger Logger
}

// Notify implements Notifier
func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	normalizeLogger(l.Logger).Info("notification",
		"kind", string(n.Kind),
		"recipient", n.Recipient,
		"data", n.Data,
	)
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return LogNotifier{}
	}
	return n
}

func notify(ctx context.Context, notifier Notifier, logger Logger, n Notification) {
	if err := normalizeNotifier(notifier).Notify(ctx, n); err != nil {
		normalizeLogger(logger).Warn("notification failed",
			"kind", string(n.Kind),
			"recipient", n.Recipient,
			"error", err,
		)
	}
}
