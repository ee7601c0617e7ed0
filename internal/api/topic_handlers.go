package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"log/slog"

	"github.com/topicwatch/topicwatch/internal/auth"
	"github.com/topicwatch/topicwatch/internal/database"
	"github.com/topicwatch/topicwatch/internal/models"
)

// TopicStore is the topic persistence surface the handlers need.
type TopicStore interface {
	Create(ctx context.Context, topic models.Topic) error
	GetByID(ctx context.Context, id string) (*models.Topic, error)
	ListByUser(ctx context.Context, userID string) ([]models.Topic, error)
	Delete(ctx context.Context, id string) error
}

// TopicHandlers serves topic CRUD.
type TopicHandlers struct {
	topics TopicStore
	logger *slog.Logger
}

// NewTopicHandlers creates topic handlers.
func NewTopicHandlers(topics TopicStore, logger *slog.Logger) *TopicHandlers {
	return &TopicHandlers{
		topics: topics,
		logger: logger,
	}
}

// CreateTopicRequest is the payload for creating a topic.
type CreateTopicRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Country     string `json:"country"`
	Language    string `json:"language"`
}

// HandleTopics handles GET and POST /api/topics
func (h *TopicHandlers) HandleTopics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTopics(w, r)
	case http.MethodPost:
		h.createTopic(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TopicHandlers) listTopics(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	topics, err := h.topics.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list topics", "error", err)
		http.Error(w, "Failed to retrieve topics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"topics": topics,
		"count":  len(topics),
	})
}

func (h *TopicHandlers) createTopic(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := ValidateTopic(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	topic := models.Topic{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Country:     strings.ToUpper(strings.TrimSpace(req.Country)),
		Language:    strings.TrimSpace(req.Language),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.topics.Create(r.Context(), topic); err != nil {
		h.logger.Error("failed to create topic", "error", err)
		http.Error(w, "Failed to create topic", http.StatusInternalServerError)
		return
	}

	h.logger.Info("topic created", "topic_id", topic.ID, "name", topic.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(topic)
}

// HandleTopicByID handles GET and DELETE /api/topics/:id
func (h *TopicHandlers) HandleTopicByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/topics/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	topic, err := h.topics.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Topic not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get topic", "topic_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if topic.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(topic)
	case http.MethodDelete:
		if err := h.topics.Delete(r.Context(), id); err != nil {
			h.logger.Error("failed to delete topic", "topic_id", id, "error", err)
			http.Error(w, "Failed to delete topic", http.StatusInternalServerError)
			return
		}
		h.logger.Info("topic deleted", "topic_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
