package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/topicwatch/topicwatch/internal/models"
)

// ComparisonRepository stores write-once comparison audit rows used for
// offline threshold tuning. The pipeline never reads them back.
type ComparisonRepository struct {
	db *sql.DB
}

// NewComparisonRepository creates a new comparison repository.
func NewComparisonRepository(db *sql.DB) *ComparisonRepository {
	return &ComparisonRepository{db: db}
}

// Create inserts a comparison snapshot.
func (r *ComparisonRepository) Create(ctx context.Context, c models.EventComparison) error {
	query := `
		INSERT INTO event_comparisons (
			id, extracted_event_id, event_id,
			extracted_event_title, extracted_event_description,
			event_title, event_description,
			vector_similarity, vector_threshold_met, llm_considers_same_event,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.ExtractedEventID, c.EventID,
		c.ExtractedEventTitle, nullable(c.ExtractedEventDescription),
		c.EventTitle, nullable(c.EventDescription),
		c.VectorSimilarity, c.VectorThresholdMet, c.LLMConsidersSameEvent,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event comparison: %w", err)
	}
	return nil
}

// CountForEvent returns how many comparisons were recorded against an event.
func (r *ComparisonRepository) CountForEvent(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM event_comparisons WHERE event_id = $1", eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count comparisons: %w", err)
	}
	return count, nil
}
