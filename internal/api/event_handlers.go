package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/topicwatch/topicwatch/internal/auth"
	"github.com/topicwatch/topicwatch/internal/database"
	"github.com/topicwatch/topicwatch/internal/models"
)

// EventStore is the canonical event read surface for the API.
type EventStore interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListByTopic(ctx context.Context, topicID string) ([]models.Event, error)
}

// EvidenceStore lists the extractions linked to a canonical event.
type EvidenceStore interface {
	ListByEvent(ctx context.Context, eventID string) ([]models.ExtractedEvent, error)
}

// EventHandlers serves the consolidated event timelines.
type EventHandlers struct {
	events   EventStore
	evidence EvidenceStore
	topics   TopicStore
	logger   *slog.Logger
}

// NewEventHandlers creates event handlers.
func NewEventHandlers(events EventStore, evidence EvidenceStore, topics TopicStore, logger *slog.Logger) *EventHandlers {
	return &EventHandlers{
		events:   events,
		evidence: evidence,
		topics:   topics,
		logger:   logger,
	}
}

// HandleEvents handles GET /api/events?topic_id=...
func (h *EventHandlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	topicID := r.URL.Query().Get("topic_id")
	if topicID == "" {
		http.Error(w, "topic_id query parameter is required", http.StatusBadRequest)
		return
	}

	if !h.authorizeTopic(w, r, topicID) {
		return
	}

	events, err := h.events.ListByTopic(r.Context(), topicID)
	if err != nil {
		h.logger.Error("failed to list events", "topic_id", topicID, "error", err)
		http.Error(w, "Failed to retrieve events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// HandleEventByID handles GET /api/events/:id and
// GET /api/events/:id/evidence
func (h *EventHandlers) HandleEventByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
	wantEvidence := strings.HasSuffix(rest, "/evidence")
	id := strings.TrimSuffix(rest, "/evidence")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	event, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get event", "event_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if !h.authorizeTopic(w, r, event.TopicID) {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if !wantEvidence {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(event)
		return
	}

	extractions, err := h.evidence.ListByEvent(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list evidence", "event_id", id, "error", err)
		http.Error(w, "Failed to retrieve evidence", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"event_id":    id,
		"extractions": extractions,
		"count":       len(extractions),
	})
}

func (h *EventHandlers) authorizeTopic(w http.ResponseWriter, r *http.Request, topicID string) bool {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}

	topic, err := h.topics.GetByID(r.Context(), topicID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Topic not found", http.StatusNotFound)
			return false
		}
		h.logger.Error("failed to get topic", "topic_id", topicID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	if topic.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}
