// Package consolidation merges newly extracted events into the canonical
// per-topic event timeline. A candidate either joins its nearest semantic
// neighbor or founds a new event; field conflicts are settled by fast
// paths, reporting consensus, and recency-weighted evidence scores.
package consolidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/topicwatch/topicwatch/internal/config"
	"github.com/topicwatch/topicwatch/internal/database"
	"github.com/topicwatch/topicwatch/internal/llm"
	"github.com/topicwatch/topicwatch/internal/models"
)

// EventStore is the canonical-event persistence the consolidator needs.
type EventStore interface {
	Create(ctx context.Context, ev models.Event) error
	Update(ctx context.Context, ev models.Event) error
	NearestEvent(ctx context.Context, topicID string, v models.Vector) (*models.Event, float64, error)
}

// ExtractionStore persists embeddings and event links for extractions.
type ExtractionStore interface {
	SetVector(ctx context.Context, id string, v models.Vector) error
	LinkEvent(ctx context.Context, id, eventID string) error
	ListByEvent(ctx context.Context, eventID string) ([]models.ExtractedEvent, error)
}

// ComparisonStore records comparison audit rows.
type ComparisonStore interface {
	Create(ctx context.Context, c models.EventComparison) error
}

// Embedder is the slice of the extraction capability used here.
type Embedder interface {
	Embed(ctx context.Context, text string) (models.Vector, error)
	MergeDecision(ctx context.Context, title1, desc1, title2, desc2 string) (*llm.MergeResult, error)
}

// Recorder receives consolidation outcome counts. The zero-value
// NopRecorder drops everything.
type Recorder interface {
	EventCreated(topicID string)
	EventMerged(topicID string)
}

// NopRecorder ignores all measurements.
type NopRecorder struct{}

func (NopRecorder) EventCreated(string) {}
func (NopRecorder) EventMerged(string)  {}

// Consolidator folds extracted events into canonical events one at a time.
type Consolidator struct {
	events      EventStore
	extractions ExtractionStore
	comparisons ComparisonStore
	llm         Embedder
	cfg         config.ConsolidationConfig
	recorder    Recorder
	logger      *slog.Logger

	now func() time.Time
}

func New(events EventStore, extractions ExtractionStore, comparisons ComparisonStore, embedder Embedder, cfg config.ConsolidationConfig, recorder Recorder, logger *slog.Logger) *Consolidator {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Consolidator{
		events:      events,
		extractions: extractions,
		comparisons: comparisons,
		llm:         embedder,
		cfg:         cfg,
		recorder:    recorder,
		logger:      logger,
		now:         time.Now,
	}
}

// ConsolidateAll processes extractions in order. A failure on one
// extraction stops the pass; everything already consolidated stays
// consolidated.
func (c *Consolidator) ConsolidateAll(ctx context.Context, extractions []models.ExtractedEvent) error {
	for i := range extractions {
		if err := c.Consolidate(ctx, &extractions[i]); err != nil {
			return fmt.Errorf("consolidating extraction %s: %w", extractions[i].ID, err)
		}
	}
	return nil
}

// Consolidate merges one extraction into the timeline.
func (c *Consolidator) Consolidate(ctx context.Context, ee *models.ExtractedEvent) error {
	if ee.SemanticVector == nil {
		vector, err := c.llm.Embed(ctx, ee.SemanticContent())
		if err != nil {
			return fmt.Errorf("embedding extraction: %w", err)
		}
		if err := c.extractions.SetVector(ctx, ee.ID, vector); err != nil {
			return fmt.Errorf("storing embedding: %w", err)
		}
		ee.SemanticVector = vector
	}

	neighbor, similarity, err := c.events.NearestEvent(ctx, ee.TopicID, ee.SemanticVector)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.createEvent(ctx, ee)
		}
		return fmt.Errorf("finding nearest event: %w", err)
	}

	// Below the possibly-same threshold the candidate is a new event
	// outright; no merge call, no audit row.
	if similarity <= c.cfg.PossiblySameThreshold {
		return c.createEvent(ctx, ee)
	}

	verdict, err := c.llm.MergeDecision(ctx, neighbor.Title, neighbor.Description, ee.Title, ee.Description)
	if err != nil {
		return fmt.Errorf("merge decision: %w", err)
	}

	comparison := models.EventComparison{
		ID:                        uuid.New().String(),
		ExtractedEventID:          ee.ID,
		EventID:                   neighbor.ID,
		ExtractedEventTitle:       ee.Title,
		ExtractedEventDescription: ee.Description,
		EventTitle:                neighbor.Title,
		EventDescription:          neighbor.Description,
		VectorSimilarity:          similarity,
		VectorThresholdMet:        similarity > c.cfg.ConfidentThreshold,
		LLMConsidersSameEvent:     verdict.SameEvent,
		CreatedAt:                 c.now(),
	}
	if err := c.comparisons.Create(ctx, comparison); err != nil {
		return fmt.Errorf("storing comparison: %w", err)
	}

	c.logger.Info("nearest event compared",
		"extracted_event_id", ee.ID,
		"event_id", neighbor.ID,
		"similarity", similarity,
		"same_event", verdict.SameEvent)

	if !verdict.SameEvent {
		return c.createEvent(ctx, ee)
	}
	return c.mergeInto(ctx, neighbor, ee, verdict)
}

// createEvent founds a new canonical event from the extraction.
func (c *Consolidator) createEvent(ctx context.Context, ee *models.ExtractedEvent) error {
	event := models.NewEventFromExtraction(uuid.New().String(), ee, c.now())
	if err := c.events.Create(ctx, *event); err != nil {
		return fmt.Errorf("creating event: %w", err)
	}
	if err := c.extractions.LinkEvent(ctx, ee.ID, event.ID); err != nil {
		return fmt.Errorf("linking extraction to new event: %w", err)
	}
	ee.EventID = event.ID
	c.recorder.EventCreated(ee.TopicID)
	c.logger.Info("created event", "event_id", event.ID, "title", event.Title)
	return nil
}

// mergeInto folds the extraction into an existing event. The extraction is
// linked first so that it counts as evidence for its own values during
// conflict resolution.
func (c *Consolidator) mergeInto(ctx context.Context, event *models.Event, ee *models.ExtractedEvent, verdict *llm.MergeResult) error {
	if err := c.extractions.LinkEvent(ctx, ee.ID, event.ID); err != nil {
		return fmt.Errorf("linking extraction to event: %w", err)
	}
	ee.EventID = event.ID

	evidence, err := c.extractions.ListByEvent(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("loading evidence: %w", err)
	}

	if verdict.MergedTitle != "" {
		event.Title = verdict.MergedTitle
	}
	if verdict.MergedDescription != "" {
		event.Description = verdict.MergedDescription
	}

	now := c.now()
	c.resolveDate(event, ee, evidence, now)
	c.resolveDuration(event, ee, evidence, now)
	c.resolveLocation(event, ee, evidence, now)
	event.MergeNotes(ee.Notes)

	event.UpdateHistory = append(event.UpdateHistory, now)
	event.UpdatedAt = now

	if err := c.events.Update(ctx, *event); err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	c.recorder.EventMerged(ee.TopicID)
	c.logger.Info("merged extraction into event",
		"extracted_event_id", ee.ID,
		"event_id", event.ID)
	return nil
}
