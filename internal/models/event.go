package models

import (
	"time"
)

// ExtractedEvent is one raw candidate event parsed from one content item.
// It is immutable once written, except for the EventID link set during
// consolidation.
type ExtractedEvent struct {
	ID       string `json:"id"`
	TopicID  string `json:"topic_id"`
	SourceID string `json:"source_id"`

	// EventID links this extraction to the canonical event it was merged
	// into (or that was created from it). Empty until consolidation runs.
	EventID string `json:"event_id,omitempty"`

	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Date         time.Time         `json:"date"`
	Location     string            `json:"location,omitempty"`
	Significance float64           `json:"significance"`
	Duration     *time.Duration    `json:"duration,omitempty"`
	Notes        map[string]string `json:"notes,omitempty"`

	SemanticVector Vector `json:"-"`

	// Provenance of the content item this event was parsed from.
	SourceURL           string    `json:"source_url"`
	SourceTitle         string    `json:"source_title,omitempty"`
	SourcePublishedDate time.Time `json:"source_published_date"`
	DegreesOfSeparation int       `json:"degrees_of_separation"`

	CreatedAt time.Time `json:"created_at"`
}

// SemanticContent returns the text that is embedded for similarity search.
func (e *ExtractedEvent) SemanticContent() string {
	if e.Description == "" {
		return e.Title
	}
	return e.Title + "\n" + e.Description
}

// DateIsDayOnly reports whether the event date carries no time of day.
// Date-only extractions are stored at midnight UTC, so midnight acts as the
// "time unknown" sentinel during conflict resolution.
func (e *ExtractedEvent) DateIsDayOnly() bool {
	h, m, s := e.Date.UTC().Clock()
	return h == 0 && m == 0 && s == 0
}

// Event is the consolidated canonical view of one real-world event for a
// topic. Title and description are always replaced by the LLM merge output;
// the remaining overwritable fields carry provenance pointers to the
// extracted event last responsible for their current value.
type Event struct {
	ID      string `json:"id"`
	TopicID string `json:"topic_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Date       time.Time `json:"date"`
	DateFromID string    `json:"date_from_id,omitempty"`

	Location       string `json:"location,omitempty"`
	LocationFromID string `json:"location_from_id,omitempty"`

	Duration       *time.Duration `json:"duration,omitempty"`
	DurationFromID string         `json:"duration_from_id,omitempty"`

	Notes map[string]string `json:"notes,omitempty"`

	Significance float64 `json:"significance"`
	Confidence   float64 `json:"confidence"`

	SemanticVector Vector `json:"-"`

	// UpdateHistory is an append-only log of merge timestamps.
	UpdateHistory []time.Time `json:"update_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEventFromExtraction creates a canonical event directly from a first
// sighting. The provenance pointers all start at the founding extraction.
func NewEventFromExtraction(id string, ee *ExtractedEvent, now time.Time) *Event {
	notes := make(map[string]string, len(ee.Notes))
	for k, v := range ee.Notes {
		notes[k] = v
	}

	return &Event{
		ID:             id,
		TopicID:        ee.TopicID,
		Title:          ee.Title,
		Description:    ee.Description,
		Date:           ee.Date,
		DateFromID:     ee.ID,
		Location:       ee.Location,
		LocationFromID: ee.ID,
		Duration:       ee.Duration,
		DurationFromID: ee.ID,
		Notes:          notes,
		Significance:   ee.Significance,
		Confidence:     ee.Significance,
		SemanticVector: ee.SemanticVector,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MergeNotes folds the extraction's notes into the event's. Values for an
// existing key are newline-appended rather than overwritten; new keys are
// added. Returns true if anything changed.
func (ev *Event) MergeNotes(incoming map[string]string) bool {
	if len(incoming) == 0 {
		return false
	}
	if ev.Notes == nil {
		ev.Notes = make(map[string]string, len(incoming))
	}

	changed := false
	for k, v := range incoming {
		if existing, ok := ev.Notes[k]; ok {
			if existing == v {
				continue
			}
			ev.Notes[k] = existing + "\n" + v
		} else {
			ev.Notes[k] = v
		}
		changed = true
	}
	return changed
}

// EventComparison is a write-once audit record of one extracted-event /
// canonical-event comparison. The pipeline never reads these back; they
// exist for threshold tuning.
type EventComparison struct {
	ID               string `json:"id"`
	ExtractedEventID string `json:"extracted_event_id"`
	EventID          string `json:"event_id"`

	ExtractedEventTitle       string `json:"extracted_event_title"`
	ExtractedEventDescription string `json:"extracted_event_description,omitempty"`
	EventTitle                string `json:"event_title"`
	EventDescription          string `json:"event_description,omitempty"`

	VectorSimilarity      float64 `json:"vector_similarity"`
	VectorThresholdMet    bool    `json:"vector_threshold_met"`
	LLMConsidersSameEvent bool    `json:"llm_considers_same_event"`

	CreatedAt time.Time `json:"created_at"`
}

// Notification is a fire-and-forget run status message addressed to the
// owning user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
