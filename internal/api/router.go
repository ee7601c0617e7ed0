package api

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/topicwatch/topicwatch/internal/auth"
	"github.com/topicwatch/topicwatch/internal/config"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	mux *http.ServeMux,
	users UserStore,
	topics TopicStore,
	sources SourceStore,
	events EventStore,
	evidence EvidenceStore,
	notifications NotificationStore,
	scheduler Scheduler,
	authConfig config.AuthConfig,
	logger *slog.Logger,
) {
	authHandler := NewAuthHandler(users, authConfig, logger)
	topicHandler := NewTopicHandlers(topics, logger)
	sourceHandler := NewSourceHandlers(sources, topics, scheduler, logger)
	eventHandler := NewEventHandlers(events, evidence, topics, logger)
	notificationHandler := NewNotificationHandlers(notifications, logger)

	authMiddleware := auth.Middleware(authConfig)
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authMiddleware(http.HandlerFunc(h)).ServeHTTP(w, r)
		}
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/register", authHandler.Register)
	mux.HandleFunc("/api/auth/validate", protected(authHandler.ValidateToken))

	// Topic routes
	mux.HandleFunc("/api/topics", protected(topicHandler.HandleTopics))
	mux.HandleFunc("/api/topics/", protected(topicHandler.HandleTopicByID))

	// Source routes, including manual run triggers
	mux.HandleFunc("/api/sources", protected(sourceHandler.HandleSources))
	mux.HandleFunc("/api/sources/", protected(sourceHandler.HandleSourceByID))

	// Consolidated event timelines
	mux.HandleFunc("/api/events", protected(eventHandler.HandleEvents))
	mux.HandleFunc("/api/events/", protected(eventHandler.HandleEventByID))

	// Run status notifications
	mux.HandleFunc("/api/notifications", protected(notificationHandler.ListNotifications))

	// Health check (public)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}
