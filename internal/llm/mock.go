package llm

import (
	"context"
	"time"

	"github.com/topicwatch/topicwatch/internal/models"
)

// Mock is a test implementation of Client. Unset functions return empty
// results, so tests only wire the operations they exercise.
type Mock struct {
	ExtractLinksFunc  func(ctx context.Context, topic models.Topic, pageMarkdown string) ([]CandidateLink, error)
	ExtractEventsFunc func(ctx context.Context, topic models.Topic, language string, publishDate time.Time, pageMarkdown string) ([]CandidateEvent, error)
	MergeDecisionFunc func(ctx context.Context, title1, desc1, title2, desc2 string) (*MergeResult, error)
	EmbedFunc         func(ctx context.Context, text string) (models.Vector, error)
}

func (m *Mock) ExtractLinks(ctx context.Context, topic models.Topic, pageMarkdown string) ([]CandidateLink, error) {
	if m.ExtractLinksFunc == nil {
		return nil, nil
	}
	return m.ExtractLinksFunc(ctx, topic, pageMarkdown)
}

func (m *Mock) ExtractEvents(ctx context.Context, topic models.Topic, language string, publishDate time.Time, pageMarkdown string) ([]CandidateEvent, error) {
	if m.ExtractEventsFunc == nil {
		return nil, nil
	}
	return m.ExtractEventsFunc(ctx, topic, language, publishDate, pageMarkdown)
}

func (m *Mock) MergeDecision(ctx context.Context, title1, desc1, title2, desc2 string) (*MergeResult, error) {
	if m.MergeDecisionFunc == nil {
		return &MergeResult{}, nil
	}
	return m.MergeDecisionFunc(ctx, title1, desc1, title2, desc2)
}

func (m *Mock) Embed(ctx context.Context, text string) (models.Vector, error) {
	if m.EmbedFunc == nil {
		return make(models.Vector, models.EmbeddingDimensions), nil
	}
	return m.EmbedFunc(ctx, text)
}
