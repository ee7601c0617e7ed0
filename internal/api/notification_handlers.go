package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/topicwatch/topicwatch/internal/auth"
	"github.com/topicwatch/topicwatch/internal/models"
)

// NotificationStore lists run status notifications per user.
type NotificationStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// NotificationHandlers serves run status notifications.
type NotificationHandlers struct {
	notifications NotificationStore
	logger        *slog.Logger
}

// NewNotificationHandlers creates notification handlers.
func NewNotificationHandlers(notifications NotificationStore, logger *slog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		notifications: notifications,
		logger:        logger,
	}
}

// ListNotifications handles GET /api/notifications
func (h *NotificationHandlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	notifications, err := h.notifications.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "error", err)
		http.Error(w, "Failed to retrieve notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}
