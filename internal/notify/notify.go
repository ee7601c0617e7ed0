// Package notify delivers run-status messages to users. Delivery is
// fire-and-forget: failures are logged, never returned.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/topicwatch/topicwatch/internal/models"
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n models.Notification) error
}

// Notifier writes notifications to the store.
type Notifier struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Notifier {
	return &Notifier{store: store, logger: logger}
}

// Publish stores one notification for the user. Errors are swallowed after
// logging so a broken notification path never fails a run.
func (n *Notifier) Publish(ctx context.Context, userID, message string) {
	notification := models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := n.store.Create(ctx, notification); err != nil {
		n.logger.Error("failed to store notification",
			"user_id", userID, "error", err)
		return
	}
	n.logger.Debug("notification stored", "user_id", userID)
}
