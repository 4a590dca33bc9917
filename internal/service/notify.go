package service

import (
	"context"
	"log/slog"

	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/registry"
)

// userNotifier addresses notifications to users by id, filling in their
// email and, when they opted in, their push token.
type userNotifier struct {
	users    *registry.UserRegistry
	dispatch notify.Dispatcher
	logger   *slog.Logger
}

func (n userNotifier) send(ctx context.Context, kind notify.Kind, recipientID string, payload map[string]string) {
	user, err := n.users.Get(recipientID)
	if err != nil || user.Status == models.StatusDeleted {
		n.logger.Warn("Dropping notification", "kind", kind, "user_id", recipientID)
		return
	}
	if token, ok := n.users.PushTarget(recipientID); ok {
		if payload == nil {
			payload = map[string]string{}
		}
		payload["pushToken"] = token
	}
	notify.Send(ctx, n.dispatch, n.logger, notify.Notification{
		Kind:        kind,
		RecipientID: recipientID,
		Email:       user.Email,
		Payload:     payload,
	})
}
