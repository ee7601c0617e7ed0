package llm

import (
	"context"
	"time"

	"github.com/topicwatch/topicwatch/internal/models"
)

// CandidateLink is a link the model found inside the substantive content of
// a page, pointing at another page worth crawling.
type CandidateLink struct {
	URL   string
	Title string
	Date  *time.Time
}

// CandidateEvent is one upcoming event the model extracted from a page.
// Dates extracted without a time of day are normalized to midnight UTC.
type CandidateEvent struct {
	Title        string
	Description  string
	Date         time.Time
	CountryCode  string
	Location     string
	Significance float64
	Duration     *time.Duration
	Notes        map[string]string
}

// MergeResult is the model's verdict on whether two event descriptions
// refer to the same real-world event, and if so, the merged wording.
// Contradictions are resolved in favor of the second event.
type MergeResult struct {
	SameEvent         bool
	MergedTitle       string
	MergedDescription string
}

// Client is the extraction capability used by discovery and consolidation.
type Client interface {
	// ExtractLinks finds links to related coverage within a page's
	// substantive content.
	ExtractLinks(ctx context.Context, topic models.Topic, pageMarkdown string) ([]CandidateLink, error)

	// ExtractEvents finds upcoming events relevant to the topic in a page.
	ExtractEvents(ctx context.Context, topic models.Topic, language string, publishDate time.Time, pageMarkdown string) ([]CandidateEvent, error)

	// MergeDecision judges whether two events are the same real-world
	// event and merges their wording if they are.
	MergeDecision(ctx context.Context, title1, desc1, title2, desc2 string) (*MergeResult, error)

	// Embed returns the embedding vector for a piece of text.
	Embed(ctx context.Context, text string) (models.Vector, error)
}
