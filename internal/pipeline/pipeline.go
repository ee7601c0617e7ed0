// Package pipeline drives one full run for a source: discovery, event
// extraction, commit, consolidation, report. Runs are single-flight per
// source, enforced by an atomic compare-and-set on the source row.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topicwatch/topicwatch/internal/discovery"
	"github.com/topicwatch/topicwatch/internal/llm"
	"github.com/topicwatch/topicwatch/internal/models"
)

// ErrAlreadyRunning is returned when a run is rejected because the
// source's single-flight flag is already held.
var ErrAlreadyRunning = errors.New("source is already being scraped")

// SourceStore is the source persistence the controller needs.
type SourceStore interface {
	GetByID(ctx context.Context, id string) (*models.Source, error)
	TryAcquireScrape(ctx context.Context, id string) (bool, error)
	ReleaseScrape(ctx context.Context, id string) error
	UpdateWatermark(ctx context.Context, id string, t time.Time) error
}

// TopicStore resolves the topic and its owning user.
type TopicStore interface {
	GetByID(ctx context.Context, id string) (*models.Topic, error)
	OwnerID(ctx context.Context, topicID string) (string, error)
}

// Discoverer produces the content items for a run.
type Discoverer interface {
	Discover(ctx context.Context, source models.Source, topic models.Topic) ([]discovery.Item, error)
}

// ExtractionWriter persists extractions and the processed-item ledger.
type ExtractionWriter interface {
	Create(ctx context.Context, ee models.ExtractedEvent) error
	SetVector(ctx context.Context, id string, v models.Vector) error
}

// LedgerWriter records processed content items.
type LedgerWriter interface {
	Record(ctx context.Context, ws models.WebSource) error
}

// Consolidator folds committed extractions into canonical events.
type Consolidator interface {
	ConsolidateAll(ctx context.Context, extractions []models.ExtractedEvent) error
}

// Notifier delivers run-status messages. Implementations never fail the
// caller.
type Notifier interface {
	Publish(ctx context.Context, userID, message string)
}

// Recorder receives pipeline metrics. The zero-value NopRecorder drops
// everything.
type Recorder interface {
	RunStarted(sourceID string)
	RunFinished(sourceID string, success bool, duration time.Duration)
	ItemsDiscovered(sourceID string, n int)
	EventsExtracted(sourceID string, n int)
	ExtractionFailures(sourceID string, n int)
}

// NopRecorder ignores all measurements.
type NopRecorder struct{}

func (NopRecorder) RunStarted(string)                       {}
func (NopRecorder) RunFinished(string, bool, time.Duration) {}
func (NopRecorder) ItemsDiscovered(string, int)             {}
func (NopRecorder) EventsExtracted(string, int)             {}
func (NopRecorder) ExtractionFailures(string, int)          {}

// Report summarizes a finished run.
type Report struct {
	SourceID        string
	RunStartedAt    time.Time
	Duration        time.Duration
	ItemsDiscovered int
	EventsExtracted int
	ItemFailures    int
}

// Controller owns the run stage graph for all sources.
type Controller struct {
	sources      SourceStore
	topics       TopicStore
	discoverer   Discoverer
	llm          llm.Client
	extractions  ExtractionWriter
	ledger       LedgerWriter
	consolidator Consolidator
	notifier     Notifier
	recorder     Recorder
	logger       *slog.Logger

	now func() time.Time
}

func NewController(
	sources SourceStore,
	topics TopicStore,
	discoverer Discoverer,
	client llm.Client,
	extractions ExtractionWriter,
	ledger LedgerWriter,
	consolidator Consolidator,
	notifier Notifier,
	recorder Recorder,
	logger *slog.Logger,
) *Controller {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Controller{
		sources:      sources,
		topics:       topics,
		discoverer:   discoverer,
		llm:          client,
		extractions:  extractions,
		ledger:       ledger,
		consolidator: consolidator,
		notifier:     notifier,
		recorder:     recorder,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one full pass for the source. Concurrent calls for the same
// source are rejected with ErrAlreadyRunning before any work happens.
func (c *Controller) Run(ctx context.Context, sourceID string) (*Report, error) {
	source, err := c.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("loading source %s: %w", sourceID, err)
	}
	topic, err := c.topics.GetByID(ctx, source.TopicID)
	if err != nil {
		return nil, fmt.Errorf("loading topic %s: %w", source.TopicID, err)
	}

	acquired, err := c.sources.TryAcquireScrape(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("acquiring scrape flag for %s: %w", sourceID, err)
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		// Release must survive a canceled run context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.sources.ReleaseScrape(releaseCtx, sourceID); err != nil {
			c.logger.Error("failed to release scrape flag", "source_id", sourceID, "error", err)
		}
	}()

	runStart := c.now()
	c.recorder.RunStarted(sourceID)
	logger := c.logger.With("source_id", sourceID, "topic_id", topic.ID)
	logger.Info("run started", "base_url", source.BaseURL)

	report, runErr := c.execute(ctx, logger, *source, *topic, runStart)
	success := runErr == nil
	c.recorder.RunFinished(sourceID, success, c.now().Sub(runStart))

	c.notifyOwner(topic.ID, source.Name, report, runErr)

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		return nil, runErr
	}

	if err := c.sources.UpdateWatermark(ctx, sourceID, runStart); err != nil {
		logger.Error("failed to update watermark", "error", err)
	}
	logger.Info("run finished",
		"items", report.ItemsDiscovered,
		"events", report.EventsExtracted,
		"item_failures", report.ItemFailures,
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// execute runs the stage graph. Stages are strictly sequential; fan-out
// happens only inside a stage.
func (c *Controller) execute(ctx context.Context, logger *slog.Logger, source models.Source, topic models.Topic, runStart time.Time) (*Report, error) {
	report := &Report{SourceID: source.ID, RunStartedAt: runStart}

	items, err := c.discoverer.Discover(ctx, source, topic)
	if err != nil {
		return report, fmt.Errorf("discovery: %w", err)
	}
	report.ItemsDiscovered = len(items)
	c.recorder.ItemsDiscovered(source.ID, len(items))

	extracted, failures := c.extract(ctx, logger, source, topic, items)
	report.EventsExtracted = len(extracted)
	report.ItemFailures = failures
	c.recorder.EventsExtracted(source.ID, len(extracted))
	c.recorder.ExtractionFailures(source.ID, failures)

	committed, err := c.commit(ctx, logger, extracted)
	if err != nil {
		return report, fmt.Errorf("commit: %w", err)
	}

	if err := c.consolidator.ConsolidateAll(ctx, committed); err != nil {
		return report, fmt.Errorf("consolidation: %w", err)
	}

	report.Duration = c.now().Sub(runStart)
	return report, nil
}

// extract fans out one extraction task per item. Each item is recorded in
// the processed-item ledger right after its attempt, success or failure,
// so it is never reprocessed. One item's failure loses only that branch.
func (c *Controller) extract(ctx context.Context, logger *slog.Logger, source models.Source, topic models.Topic, items []discovery.Item) ([]models.ExtractedEvent, int) {
	var (
		mu       sync.Mutex
		results  []models.ExtractedEvent
		failures int
		wg       sync.WaitGroup
	)

	for _, item := range items {
		wg.Add(1)
		go func(item discovery.Item) {
			defer wg.Done()

			candidates, err := c.llm.ExtractEvents(ctx, topic, source.Language, item.Date, item.Markdown)

			// Ledger first: the attempt happened, the item is spent.
			ledgerErr := c.ledger.Record(ctx, models.WebSource{
				ID:            uuid.New().String(),
				TopicID:       topic.ID,
				SourceID:      source.ID,
				URL:           item.URL,
				PublishedDate: item.Date.UTC(),
				CreatedAt:     c.now(),
			})
			if ledgerErr != nil {
				logger.Error("failed to record ledger row", "url", item.URL, "error", ledgerErr)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("event extraction failed for item", "url", item.URL, "error", err)
				failures++
				return
			}
			for _, candidate := range candidates {
				results = append(results, buildExtraction(uuid.New().String(), source, topic, item, candidate, c.now()))
			}
		}(item)
	}
	wg.Wait()
	return results, failures
}

// commit persists extractions and their embeddings, one short transaction
// each. A failed embedding is not fatal: the consolidator embeds on demand.
func (c *Controller) commit(ctx context.Context, logger *slog.Logger, extracted []models.ExtractedEvent) ([]models.ExtractedEvent, error) {
	committed := make([]models.ExtractedEvent, 0, len(extracted))
	for _, ee := range extracted {
		if err := c.extractions.Create(ctx, ee); err != nil {
			return committed, fmt.Errorf("persisting extraction %q: %w", ee.Title, err)
		}

		vector, err := c.llm.Embed(ctx, ee.SemanticContent())
		if err != nil {
			logger.Warn("embedding failed at commit, deferring", "extracted_event_id", ee.ID, "error", err)
		} else {
			if err := c.extractions.SetVector(ctx, ee.ID, vector); err != nil {
				return committed, fmt.Errorf("storing embedding for %s: %w", ee.ID, err)
			}
			ee.SemanticVector = vector
		}
		committed = append(committed, ee)
	}
	return committed, nil
}

func buildExtraction(id string, source models.Source, topic models.Topic, item discovery.Item, candidate llm.CandidateEvent, now time.Time) models.ExtractedEvent {
	return models.ExtractedEvent{
		ID:                  id,
		TopicID:             topic.ID,
		SourceID:            source.ID,
		Title:               candidate.Title,
		Description:         candidate.Description,
		Date:                candidate.Date,
		Location:            candidate.Location,
		Significance:        candidate.Significance,
		Duration:            candidate.Duration,
		Notes:               candidate.Notes,
		SourceURL:           item.URL,
		SourceTitle:         item.Title,
		SourcePublishedDate: item.Date.UTC(),
		DegreesOfSeparation: item.Depth,
		CreatedAt:           now,
	}
}

// notifyOwner sends the terminal run status to the topic's owner.
// Failures to notify are logged and swallowed.
func (c *Controller) notifyOwner(topicID, sourceName string, report *Report, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, err := c.topics.OwnerID(ctx, topicID)
	if err != nil {
		c.logger.Error("failed to resolve topic owner for notification",
			"topic_id", topicID, "error", err)
		return
	}

	var message string
	if runErr != nil {
		message = fmt.Sprintf("Scrape of %s failed: %v", sourceName, runErr)
	} else {
		message = fmt.Sprintf("Scrape of %s finished: %d items, %d events extracted",
			sourceName, report.ItemsDiscovered, report.EventsExtracted)
	}
	c.notifier.Publish(ctx, userID, message)
}
