// Package scheduler keeps one recurring cron entry per active source and
// triggers pipeline runs. Overlap protection lives in the run controller's
// compare-and-set, not here.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/topicwatch/topicwatch/internal/models"
	"github.com/topicwatch/topicwatch/internal/pipeline"
)

// Runner executes one pipeline run for a source.
type Runner interface {
	Run(ctx context.Context, sourceID string) (*pipeline.Report, error)
}

// SourceLister loads the active sources at startup.
type SourceLister interface {
	ListActive(ctx context.Context) ([]models.Source, error)
}

// Scheduler owns the cron table. Entries are rebuilt from the sources
// table at startup; the API layer calls Schedule/Unschedule/Reschedule
// explicitly on source mutations.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	sources SourceLister
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(runner Runner, sources SourceLister, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		runner:  runner,
		sources: sources,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start rebuilds the cron table from the database and begins dispatching.
// A source whose watermark is more than one interval old has missed at
// least one run; all missed runs coalesce into a single immediate one.
func (s *Scheduler) Start(ctx context.Context) error {
	sources, err := s.sources.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active sources: %w", err)
	}

	now := time.Now()
	overdue := 0
	for _, src := range sources {
		if err := s.Schedule(src.ID, src.ScrapeInterval()); err != nil {
			s.logger.Error("failed to schedule source", "source_id", src.ID, "error", err)
			continue
		}
		if src.Overdue(now) {
			overdue++
			s.RunNow(src.ID)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"sources", len(sources),
		"overdue", overdue)
	return nil
}

// Stop halts dispatching and waits for in-flight cron callbacks.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// Schedule adds a recurring entry for the source, replacing any existing
// one.
func (s *Scheduler) Schedule(sourceID string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v for source %s", interval, sourceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[sourceID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, sourceID)
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.runSource(sourceID)
	})
	if err != nil {
		return fmt.Errorf("adding cron entry for source %s: %w", sourceID, err)
	}
	s.entries[sourceID] = entryID
	s.logger.Info("source scheduled", "source_id", sourceID, "interval", interval)
	return nil
}

// Unschedule removes the source's entry if present.
func (s *Scheduler) Unschedule(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[sourceID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, sourceID)
		s.logger.Info("source unscheduled", "source_id", sourceID)
	}
}

// Reschedule replaces the source's entry with a new interval.
func (s *Scheduler) Reschedule(sourceID string, interval time.Duration) error {
	return s.Schedule(sourceID, interval)
}

// RunNow triggers an immediate run without touching the cron table.
func (s *Scheduler) RunNow(sourceID string) {
	go s.runSource(sourceID)
}

// Scheduled reports whether the source currently has a cron entry.
func (s *Scheduler) Scheduled(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[sourceID]
	return ok
}

func (s *Scheduler) runSource(sourceID string) {
	ctx := context.Background()
	if _, err := s.runner.Run(ctx, sourceID); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			s.logger.Debug("run skipped, already in flight", "source_id", sourceID)
			return
		}
		s.logger.Error("scheduled run failed", "source_id", sourceID, "error", err)
	}
}
