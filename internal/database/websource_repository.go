package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/topicwatch/topicwatch/internal/models"
)

// WebSourceRepository is the insert-only dedup ledger of processed content
// items, keyed by (url, published_date, topic_id).
type WebSourceRepository struct {
	db *sql.DB
}

// NewWebSourceRepository creates a new web source repository.
func NewWebSourceRepository(db *sql.DB) *WebSourceRepository {
	return &WebSourceRepository{db: db}
}

// Exists reports whether a content item was already processed for the topic.
func (r *WebSourceRepository) Exists(ctx context.Context, ws models.WebSource) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM web_sources
			WHERE url = $1 AND published_date = $2 AND topic_id = $3
		)
	`, ws.URL, ws.PublishedDate, ws.TopicID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check web source ledger: %w", err)
	}
	return found, nil
}

// Record inserts a ledger row. A concurrent duplicate insert is not an
// error: the unique constraint makes the second writer a no-op.
func (r *WebSourceRepository) Record(ctx context.Context, ws models.WebSource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO web_sources (id, topic_id, source_id, url, published_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ws.ID, ws.TopicID, nullable(ws.SourceID), ws.URL, ws.PublishedDate, ws.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil
		}
		return fmt.Errorf("failed to record web source: %w", err)
	}
	return nil
}

// CountByTopic returns how many ledger rows exist for a topic.
func (r *WebSourceRepository) CountByTopic(ctx context.Context, topicID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM web_sources WHERE topic_id = $1", topicID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count web sources: %w", err)
	}
	return count, nil
}
