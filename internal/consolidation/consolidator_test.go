package consolidation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/topicwatch/topicwatch/internal/config"
	"github.com/topicwatch/topicwatch/internal/database"
	"github.com/topicwatch/topicwatch/internal/llm"
	"github.com/topicwatch/topicwatch/internal/models"
)

type fakeEventStore struct {
	created []models.Event
	updated []models.Event

	neighbor   *models.Event
	similarity float64
}

func (f *fakeEventStore) Create(ctx context.Context, ev models.Event) error {
	f.created = append(f.created, ev)
	return nil
}

func (f *fakeEventStore) Update(ctx context.Context, ev models.Event) error {
	f.updated = append(f.updated, ev)
	return nil
}

func (f *fakeEventStore) NearestEvent(ctx context.Context, topicID string, v models.Vector) (*models.Event, float64, error) {
	if f.neighbor == nil {
		return nil, 0, database.ErrNotFound
	}
	ev := *f.neighbor
	return &ev, f.similarity, nil
}

type fakeExtractionStore struct {
	vectors  map[string]models.Vector
	links    map[string]string
	evidence []models.ExtractedEvent
}

func newFakeExtractionStore() *fakeExtractionStore {
	return &fakeExtractionStore{
		vectors: map[string]models.Vector{},
		links:   map[string]string{},
	}
}

func (f *fakeExtractionStore) SetVector(ctx context.Context, id string, v models.Vector) error {
	f.vectors[id] = v
	return nil
}

func (f *fakeExtractionStore) LinkEvent(ctx context.Context, id, eventID string) error {
	f.links[id] = eventID
	return nil
}

func (f *fakeExtractionStore) ListByEvent(ctx context.Context, eventID string) ([]models.ExtractedEvent, error) {
	var out []models.ExtractedEvent
	for _, report := range f.evidence {
		if f.links[report.ID] == eventID || report.EventID == eventID {
			out = append(out, report)
		}
	}
	return out, nil
}

type fakeComparisonStore struct {
	rows []models.EventComparison
}

func (f *fakeComparisonStore) Create(ctx context.Context, c models.EventComparison) error {
	f.rows = append(f.rows, c)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nullWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func testCfg() config.ConsolidationConfig {
	return config.ConsolidationConfig{
		PossiblySameThreshold: 0.6,
		ConfidentThreshold:    0.7,
		ConsensusCount:        3,
		HalfLifeDays:          30,
	}
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newConsolidator(events *fakeEventStore, extractions *fakeExtractionStore, comparisons *fakeComparisonStore, mock *llm.Mock) *Consolidator {
	c := New(events, extractions, comparisons, mock, testCfg(), nil, quietLogger())
	c.now = func() time.Time { return fixedNow }
	return c
}

func sampleExtraction(id string) models.ExtractedEvent {
	return models.ExtractedEvent{
		ID:                  id,
		TopicID:             "topic-1",
		SourceID:            "src-1",
		Title:               "Council vote on zoning law",
		Description:         "The city council votes on the new zoning law.",
		Date:                time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		SemanticVector:      make(models.Vector, models.EmbeddingDimensions),
		SourcePublishedDate: fixedNow.Add(-24 * time.Hour),
	}
}

func TestConsolidateEmbedsWhenVectorMissing(t *testing.T) {
	events := &fakeEventStore{}
	extractions := newFakeExtractionStore()
	mock := &llm.Mock{}

	ee := sampleExtraction("ex-1")
	ee.SemanticVector = nil

	c := newConsolidator(events, extractions, &fakeComparisonStore{}, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if _, stored := extractions.vectors["ex-1"]; !stored {
		t.Error("missing vector must be computed and persisted")
	}
	if ee.SemanticVector == nil {
		t.Error("extraction should carry its vector after consolidation")
	}
}

func TestConsolidateCreatesEventWhenNoNeighbor(t *testing.T) {
	events := &fakeEventStore{}
	extractions := newFakeExtractionStore()
	comparisons := &fakeComparisonStore{}

	ee := sampleExtraction("ex-1")
	c := newConsolidator(events, extractions, comparisons, &llm.Mock{})
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	if len(events.created) != 1 {
		t.Fatalf("created %d events, want 1", len(events.created))
	}
	created := events.created[0]
	if created.Title != ee.Title || created.DateFromID != ee.ID {
		t.Errorf("new event must carry the extraction's values and provenance: %+v", created)
	}
	if extractions.links["ex-1"] != created.ID {
		t.Error("extraction must be linked to the new event")
	}
	if len(comparisons.rows) != 0 {
		t.Error("no comparison row may be written without a neighbor")
	}
}

func TestConsolidateBelowThresholdSkipsMergeAndAudit(t *testing.T) {
	neighbor := models.NewEventFromExtraction("ev-1", ptr(sampleExtraction("seed")), fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.5}
	extractions := newFakeExtractionStore()
	comparisons := &fakeComparisonStore{}

	mergeCalled := false
	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			mergeCalled = true
			return &llm.MergeResult{}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	c := newConsolidator(events, extractions, comparisons, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	if mergeCalled {
		t.Error("similarity at or below the possibly-same threshold must not trigger a merge call")
	}
	if len(comparisons.rows) != 0 {
		t.Error("no comparison row below the possibly-same threshold")
	}
	if len(events.created) != 1 {
		t.Errorf("a new event must be created, got %d", len(events.created))
	}
}

func TestConsolidateDifferentVerdictCreatesEventWithAudit(t *testing.T) {
	neighbor := models.NewEventFromExtraction("ev-1", ptr(sampleExtraction("seed")), fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.65}
	extractions := newFakeExtractionStore()
	comparisons := &fakeComparisonStore{}

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: false}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	c := newConsolidator(events, extractions, comparisons, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	if len(comparisons.rows) != 1 {
		t.Fatalf("got %d comparison rows, want 1", len(comparisons.rows))
	}
	row := comparisons.rows[0]
	if row.VectorThresholdMet {
		t.Error("similarity 0.65 is below the confident threshold 0.7")
	}
	if row.LLMConsidersSameEvent {
		t.Error("audit row must record the verdict")
	}
	if len(events.created) != 1 {
		t.Errorf("a different-event verdict founds a new event, got %d created", len(events.created))
	}
}

func TestConsolidateSameVerdictMerges(t *testing.T) {
	seed := sampleExtraction("seed")
	neighbor := models.NewEventFromExtraction("ev-1", &seed, fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.85}
	extractions := newFakeExtractionStore()
	comparisons := &fakeComparisonStore{}

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{
				SameEvent:         true,
				MergedTitle:       "Merged title",
				MergedDescription: "Merged description",
			}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	ee.Notes = map[string]string{"registration_link": "https://example.com/register"}
	c := newConsolidator(events, extractions, comparisons, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	if extractions.links["ex-1"] != "ev-1" {
		t.Error("extraction must be linked to the merged event")
	}
	if len(events.updated) != 1 {
		t.Fatalf("got %d updates, want 1", len(events.updated))
	}
	updated := events.updated[0]
	if updated.Title != "Merged title" || updated.Description != "Merged description" {
		t.Errorf("merged wording must replace the old: %+v", updated)
	}
	if updated.Notes["registration_link"] != "https://example.com/register" {
		t.Error("notes must be merged in")
	}
	if len(updated.UpdateHistory) != 1 || !updated.UpdateHistory[0].Equal(fixedNow) {
		t.Errorf("merge must append to update history: %v", updated.UpdateHistory)
	}
	if comparisons.rows[0].VectorThresholdMet != true {
		t.Error("similarity 0.85 exceeds the confident threshold")
	}
	if len(events.created) != 0 {
		t.Error("no new event on a same-event verdict")
	}
}

func TestMergeAdoptsTimeForDayOnlyDate(t *testing.T) {
	seed := sampleExtraction("seed")
	seed.Date = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	neighbor := models.NewEventFromExtraction("ev-1", &seed, fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.9}
	extractions := newFakeExtractionStore()

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: true, MergedTitle: "T", MergedDescription: "D"}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	ee.Date = time.Date(2026, 7, 1, 14, 30, 0, 0, time.UTC)

	c := newConsolidator(events, extractions, &fakeComparisonStore{}, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	updated := events.updated[0]
	if !updated.Date.Equal(ee.Date) {
		t.Errorf("midnight sentinel plus same-day time must adopt the time: %v", updated.Date)
	}
	if updated.DateFromID != "ex-1" {
		t.Error("adoption must update the date provenance pointer")
	}
}

func TestMergeKeepsTimedDateAgainstWeakEvidence(t *testing.T) {
	seed := sampleExtraction("seed")
	seed.Date = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	seed.SourcePublishedDate = fixedNow.Add(-24 * time.Hour)
	neighbor := models.NewEventFromExtraction("ev-1", &seed, fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.9}

	extractions := newFakeExtractionStore()
	seed.EventID = "ev-1"
	extractions.evidence = []models.ExtractedEvent{seed}

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: true, MergedTitle: "T", MergedDescription: "D"}, nil
		},
	}

	// Conflicting date from an older report: one fresh supporter each side,
	// but the old side's report is newer, so the old value outscores.
	ee := sampleExtraction("ex-1")
	ee.Date = time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)
	ee.SourcePublishedDate = fixedNow.Add(-72 * time.Hour)
	extractions.evidence = append(extractions.evidence, ee)

	c := newConsolidator(events, extractions, &fakeComparisonStore{}, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	updated := events.updated[0]
	if !updated.Date.Equal(seed.Date) {
		t.Errorf("weaker new evidence must not displace the stored date: %v", updated.Date)
	}
}

func TestMergeConsensusOverridesScoring(t *testing.T) {
	oldDate := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	newDate := time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)

	seed := sampleExtraction("seed")
	seed.Date = oldDate
	// A very fresh old-value report outscores three slightly older
	// new-value reports; only consensus can flip the date.
	seed.SourcePublishedDate = fixedNow.Add(-1 * time.Hour)
	neighbor := models.NewEventFromExtraction("ev-1", &seed, fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.9}

	extractions := newFakeExtractionStore()
	seed.EventID = "ev-1"
	extractions.evidence = []models.ExtractedEvent{seed}
	for _, id := range []string{"n1", "n2"} {
		report := sampleExtraction(id)
		report.Date = newDate
		report.EventID = "ev-1"
		report.SourcePublishedDate = fixedNow.Add(30 * time.Minute)
		extractions.evidence = append(extractions.evidence, report)
	}

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: true, MergedTitle: "T", MergedDescription: "D"}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	ee.Date = newDate
	ee.SourcePublishedDate = fixedNow.Add(time.Hour)
	extractions.evidence = append(extractions.evidence, ee)

	c := newConsolidator(events, extractions, &fakeComparisonStore{}, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	updated := events.updated[0]
	if !updated.Date.Equal(newDate) {
		t.Errorf("three strictly newer reports must flip the date by consensus: %v", updated.Date)
	}
	if updated.DateFromID != "ex-1" {
		t.Error("consensus adoption must update provenance")
	}
}

func TestMergeFillsAbsentDuration(t *testing.T) {
	seed := sampleExtraction("seed")
	neighbor := models.NewEventFromExtraction("ev-1", &seed, fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.9}
	extractions := newFakeExtractionStore()

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: true, MergedTitle: "T", MergedDescription: "D"}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	duration := 2 * time.Hour
	ee.Duration = &duration

	c := newConsolidator(events, extractions, &fakeComparisonStore{}, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	updated := events.updated[0]
	if updated.Duration == nil || *updated.Duration != duration {
		t.Errorf("absent stored duration must be filled in: %v", updated.Duration)
	}
	if updated.DurationFromID != "ex-1" {
		t.Error("duration provenance must point at the extraction")
	}
}

func TestMergeLocationSubstringExtension(t *testing.T) {
	seed := sampleExtraction("seed")
	seed.Location = "Berlin"
	neighbor := models.NewEventFromExtraction("ev-1", &seed, fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.9}
	extractions := newFakeExtractionStore()

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: true, MergedTitle: "T", MergedDescription: "D"}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	ee.Location = "Rathaus, Berlin, Germany"

	c := newConsolidator(events, extractions, &fakeComparisonStore{}, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	updated := events.updated[0]
	if updated.Location != "Rathaus, Berlin, Germany" {
		t.Errorf("a location extending the stored one must be adopted: %q", updated.Location)
	}
}

func TestMergeNotesAppendForExistingKey(t *testing.T) {
	seed := sampleExtraction("seed")
	seed.Notes = map[string]string{"reference": "A-100"}
	neighbor := models.NewEventFromExtraction("ev-1", &seed, fixedNow)
	events := &fakeEventStore{neighbor: neighbor, similarity: 0.9}
	extractions := newFakeExtractionStore()

	mock := &llm.Mock{
		MergeDecisionFunc: func(ctx context.Context, t1, d1, t2, d2 string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: true, MergedTitle: "T", MergedDescription: "D"}, nil
		},
	}

	ee := sampleExtraction("ex-1")
	ee.Notes = map[string]string{"reference": "B-200", "venue_note": "side entrance"}

	c := newConsolidator(events, extractions, &fakeComparisonStore{}, mock)
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	updated := events.updated[0]
	if updated.Notes["reference"] != "A-100\nB-200" {
		t.Errorf("existing key must newline-append: %q", updated.Notes["reference"])
	}
	if updated.Notes["venue_note"] != "side entrance" {
		t.Errorf("new key must be added: %q", updated.Notes["venue_note"])
	}
}

func ptr(ee models.ExtractedEvent) *models.ExtractedEvent { return &ee }

type countingRecorder struct {
	created map[string]int
	merged  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{created: map[string]int{}, merged: map[string]int{}}
}

func (r *countingRecorder) EventCreated(topicID string) { r.created[topicID]++ }
func (r *countingRecorder) EventMerged(topicID string)  { r.merged[topicID]++ }

func TestConsolidateReportsOutcomes(t *testing.T) {
	recorder := newCountingRecorder()

	// First pass: no neighbor, a new event is founded.
	events := &fakeEventStore{}
	extractions := newFakeExtractionStore()
	c := New(events, extractions, &fakeComparisonStore{}, &llm.Mock{}, testCfg(), recorder, quietLogger())
	c.now = func() time.Time { return fixedNow }

	ee := sampleExtraction("ex-1")
	if err := c.Consolidate(context.Background(), &ee); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if recorder.created["topic-1"] != 1 {
		t.Fatalf("expected 1 created, got %d", recorder.created["topic-1"])
	}

	// Second pass: confident neighbor and same-event verdict, a merge.
	neighbor := events.created[0]
	events.neighbor = &neighbor
	events.similarity = 0.9
	mock := &llm.Mock{
		MergeDecisionFunc: func(_ context.Context, _, _, _, _ string) (*llm.MergeResult, error) {
			return &llm.MergeResult{SameEvent: true, MergedTitle: "Merged", MergedDescription: "Merged."}, nil
		},
	}
	c = New(events, extractions, &fakeComparisonStore{}, mock, testCfg(), recorder, quietLogger())
	c.now = func() time.Time { return fixedNow }

	ee2 := sampleExtraction("ex-2")
	if err := c.Consolidate(context.Background(), &ee2); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if recorder.merged["topic-1"] != 1 {
		t.Fatalf("expected 1 merged, got %d", recorder.merged["topic-1"])
	}
	if recorder.created["topic-1"] != 1 {
		t.Fatalf("merge must not count as a creation, created=%d", recorder.created["topic-1"])
	}
}
