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

// SourceStore is the source persistence surface the handlers need.
type SourceStore interface {
	Create(ctx context.Context, src models.Source) error
	GetByID(ctx context.Context, id string) (*models.Source, error)
	ListByTopic(ctx context.Context, topicID string) ([]models.Source, error)
	Update(ctx context.Context, src models.Source) error
	Delete(ctx context.Context, id string) error
}

// Scheduler is the scheduling surface the source handlers drive. Source
// mutations keep the cron entries in sync with the stored configuration.
type Scheduler interface {
	Schedule(sourceID string, interval time.Duration) error
	Reschedule(sourceID string, interval time.Duration) error
	Unschedule(sourceID string)
	RunNow(sourceID string)
}

// SourceHandlers serves source CRUD and manual run triggers.
type SourceHandlers struct {
	sources   SourceStore
	topics    TopicStore
	scheduler Scheduler
	logger    *slog.Logger
}

// NewSourceHandlers creates source handlers.
func NewSourceHandlers(sources SourceStore, topics TopicStore, scheduler Scheduler, logger *slog.Logger) *SourceHandlers {
	return &SourceHandlers{
		sources:   sources,
		topics:    topics,
		scheduler: scheduler,
		logger:    logger,
	}
}

// CreateSourceRequest is the payload for creating a source.
type CreateSourceRequest struct {
	TopicID               string `json:"topic_id"`
	Name                  string `json:"name"`
	BaseURL               string `json:"base_url"`
	Kind                  string `json:"kind"`
	Language              string `json:"language"`
	Country               string `json:"country"`
	DegreesOfSeparation   int    `json:"degrees_of_separation"`
	ScrapeIntervalMinutes int    `json:"scrape_interval_minutes"`
	Active                *bool  `json:"active"`
}

// UpdateSourceRequest is the payload for updating a source. Nil fields are
// left unchanged.
type UpdateSourceRequest struct {
	Name                  *string `json:"name"`
	BaseURL               *string `json:"base_url"`
	Kind                  *string `json:"kind"`
	Language              *string `json:"language"`
	Country               *string `json:"country"`
	DegreesOfSeparation   *int    `json:"degrees_of_separation"`
	ScrapeIntervalMinutes *int    `json:"scrape_interval_minutes"`
	Active                *bool   `json:"active"`
}

// HandleSources handles GET and POST /api/sources
func (h *SourceHandlers) HandleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listSources(w, r)
	case http.MethodPost:
		h.createSource(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SourceHandlers) listSources(w http.ResponseWriter, r *http.Request) {
	topicID := r.URL.Query().Get("topic_id")
	if topicID == "" {
		http.Error(w, "topic_id query parameter is required", http.StatusBadRequest)
		return
	}

	if _, ok := h.authorizeTopic(w, r, topicID); !ok {
		return
	}

	sources, err := h.sources.ListByTopic(r.Context(), topicID)
	if err != nil {
		h.logger.Error("failed to list sources", "topic_id", topicID, "error", err)
		http.Error(w, "Failed to retrieve sources", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (h *SourceHandlers) createSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := ValidateSource(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := h.authorizeTopic(w, r, req.TopicID); !ok {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	source := models.Source{
		ID:                    uuid.New().String(),
		TopicID:               req.TopicID,
		Name:                  strings.TrimSpace(req.Name),
		BaseURL:               strings.TrimSpace(req.BaseURL),
		Kind:                  models.SourceKind(req.Kind),
		Language:              strings.TrimSpace(req.Language),
		Country:               strings.ToUpper(strings.TrimSpace(req.Country)),
		DegreesOfSeparation:   req.DegreesOfSeparation,
		ScrapeIntervalMinutes: req.ScrapeIntervalMinutes,
		Active:                active,
		LastScrapedAt:         now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := h.sources.Create(r.Context(), source); err != nil {
		h.logger.Error("failed to create source", "error", err)
		http.Error(w, "Failed to create source", http.StatusInternalServerError)
		return
	}

	if source.Active {
		if err := h.scheduler.Schedule(source.ID, source.ScrapeInterval()); err != nil {
			h.logger.Error("failed to schedule source", "source_id", source.ID, "error", err)
		}
	}

	h.logger.Info("source created",
		"source_id", source.ID,
		"topic_id", source.TopicID,
		"kind", source.Kind,
		"active", source.Active,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(source)
}

// HandleSourceByID handles GET, PUT and DELETE /api/sources/:id, plus
// POST /api/sources/:id/run for manual triggers.
func (h *SourceHandlers) HandleSourceByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sources/")

	if strings.HasSuffix(rest, "/run") {
		h.runSource(w, r, strings.TrimSuffix(rest, "/run"))
		return
	}

	id := rest
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	source, ok := h.authorizeSource(w, r, id)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(source)
	case http.MethodPut:
		h.updateSource(w, r, source)
	case http.MethodDelete:
		h.deleteSource(w, r, source)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SourceHandlers) updateSource(w http.ResponseWriter, r *http.Request, source *models.Source) {
	var req UpdateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name != nil {
		source.Name = strings.TrimSpace(*req.Name)
	}
	if req.BaseURL != nil {
		source.BaseURL = strings.TrimSpace(*req.BaseURL)
	}
	if req.Kind != nil {
		source.Kind = models.SourceKind(*req.Kind)
	}
	if req.Language != nil {
		source.Language = strings.TrimSpace(*req.Language)
	}
	if req.Country != nil {
		source.Country = strings.ToUpper(strings.TrimSpace(*req.Country))
	}
	if req.DegreesOfSeparation != nil {
		source.DegreesOfSeparation = *req.DegreesOfSeparation
	}
	if req.ScrapeIntervalMinutes != nil {
		source.ScrapeIntervalMinutes = *req.ScrapeIntervalMinutes
	}
	if req.Active != nil {
		source.Active = *req.Active
	}

	if err := ValidateSource(CreateSourceRequest{
		TopicID:               source.TopicID,
		Name:                  source.Name,
		BaseURL:               source.BaseURL,
		Kind:                  string(source.Kind),
		DegreesOfSeparation:   source.DegreesOfSeparation,
		ScrapeIntervalMinutes: source.ScrapeIntervalMinutes,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	source.UpdatedAt = time.Now().UTC()
	if err := h.sources.Update(r.Context(), *source); err != nil {
		h.logger.Error("failed to update source", "source_id", source.ID, "error", err)
		http.Error(w, "Failed to update source", http.StatusInternalServerError)
		return
	}

	// Keep the cron entry in sync with the stored configuration.
	if source.Active {
		if err := h.scheduler.Reschedule(source.ID, source.ScrapeInterval()); err != nil {
			h.logger.Error("failed to reschedule source", "source_id", source.ID, "error", err)
		}
	} else {
		h.scheduler.Unschedule(source.ID)
	}

	h.logger.Info("source updated", "source_id", source.ID, "active", source.Active)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(source)
}

func (h *SourceHandlers) deleteSource(w http.ResponseWriter, r *http.Request, source *models.Source) {
	h.scheduler.Unschedule(source.ID)

	if err := h.sources.Delete(r.Context(), source.ID); err != nil {
		h.logger.Error("failed to delete source", "source_id", source.ID, "error", err)
		http.Error(w, "Failed to delete source", http.StatusInternalServerError)
		return
	}

	h.logger.Info("source deleted", "source_id", source.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SourceHandlers) runSource(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.authorizeSource(w, r, id); !ok {
		return
	}

	h.scheduler.RunNow(id)

	h.logger.Info("manual run triggered", "source_id", id)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"source_id": id,
		"status":    "triggered",
	})
}

// authorizeTopic loads the topic and verifies the requesting user owns it.
func (h *SourceHandlers) authorizeTopic(w http.ResponseWriter, r *http.Request, topicID string) (*models.Topic, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	topic, err := h.topics.GetByID(r.Context(), topicID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Topic not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("failed to get topic", "topic_id", topicID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	if topic.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return topic, true
}

// authorizeSource loads the source and verifies ownership via its topic.
func (h *SourceHandlers) authorizeSource(w http.ResponseWriter, r *http.Request, id string) (*models.Source, bool) {
	source, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Source not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("failed to get source", "source_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	if _, ok := h.authorizeTopic(w, r, source.TopicID); !ok {
		return nil, false
	}
	return source, true
}
