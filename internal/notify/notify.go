// Package notify defines the fire-and-forget notification contract.
//
// The core decides when a notification is due; a Dispatcher decides how it
// is delivered (email, push, log). Delivery failures are logged and never
// roll back the state change that triggered them.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Kind names a notification template.
type Kind string

const (
	KindEmailVerification   Kind = "email_verification"
	KindPasswordReset       Kind = "password_reset"
	KindPasswordChanged     Kind = "password_changed"
	KindWelcome             Kind = "welcome"
	KindInactivityWarning   Kind = "inactivity_warning"
	KindDeletionWarning     Kind = "deletion_warning"
	KindDjRequested         Kind = "dj_requested"
	KindDjApproved          Kind = "dj_approved"
	KindGroupInvite         Kind = "group_invite"
	KindNewEventParticipant Kind = "new_event_participant"
)

// Notification is one message to one recipient.
type Notification struct {
	Kind Kind

	// RecipientID is the user id of the recipient.
	RecipientID string

	// Email is the address to use for email-backed kinds. Captured at the
	// time the notification is raised.
	Email string

	// Payload carries template data (token, display name, event title...).
	Payload map[string]string
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// Send dispatches n and logs a failure instead of returning it.
// A nil dispatcher drops the notification.
func Send(ctx context.Context, d Dispatcher, logger *slog.Logger, n Notification) {
	if d == nil {
		return
	}
	if err := d.Notify(ctx, n); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Notification dispatch failed",
			"kind", n.Kind,
			"recipient_id", n.RecipientID,
			"error", err,
		)
	}
}

// LogDispatcher writes notifications to a structured logger. It stands in
// for email/push delivery, which lives outside this service.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher. A nil logger uses slog.Default().
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Notify logs n. Token values are not logged.
func (d *LogDispatcher) Notify(ctx context.Context, n Notification) error {
	attrs := []any{"kind", n.Kind, "recipient_id", n.RecipientID}
	for k, v := range n.Payload {
		if k == "token" {
			continue
		}
		attrs = append(attrs, k, v)
	}
	d.logger.InfoContext(ctx, "Notification queued", attrs...)
	return nil
}

// Recorder keeps every notification in memory. Useful in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification

	// Err, when set, is returned from Notify after recording.
	Err error
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.Err
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// OfKind returns the recorded notifications of kind k.
func (r *Recorder) OfKind(k Kind) []Notification {
	var out []Notification
	for _, n := range r.Sent() {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}
