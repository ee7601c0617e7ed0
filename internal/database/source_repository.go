package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/topicwatch/topicwatch/internal/models"
)

// SourceRepository provides access to scraping sources, including the
// single-flight scrape flag.
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

const sourceColumns = `
	id, topic_id, name, base_url, kind,
	COALESCE(language, ''), COALESCE(country, ''),
	degrees_of_separation, scrape_interval_minutes, active,
	last_scraped_at, currently_scraping, created_at, updated_at
`

func scanSource(row interface{ Scan(...interface{}) error }) (*models.Source, error) {
	var s models.Source
	err := row.Scan(
		&s.ID, &s.TopicID, &s.Name, &s.BaseURL, &s.Kind,
		&s.Language, &s.Country,
		&s.DegreesOfSeparation, &s.ScrapeIntervalMinutes, &s.Active,
		&s.LastScrapedAt, &s.CurrentlyScraping, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new source.
func (r *SourceRepository) Create(ctx context.Context, src models.Source) error {
	query := `
		INSERT INTO sources (
			id, topic_id, name, base_url, kind, language, country,
			degrees_of_separation, scrape_interval_minutes, active,
			last_scraped_at, currently_scraping, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		src.ID, src.TopicID, src.Name, src.BaseURL, src.Kind,
		nullable(src.Language), nullable(src.Country),
		src.DegreesOfSeparation, src.ScrapeIntervalMinutes, src.Active,
		src.LastScrapedAt, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

// GetByID retrieves a source by its ID.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*models.Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources WHERE id = $1"
	src, err := scanSource(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	return src, nil
}

// ListByTopic returns all sources configured for a topic.
func (r *SourceRepository) ListByTopic(ctx context.Context, topicID string) ([]models.Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources WHERE topic_id = $1 ORDER BY created_at"
	return r.list(ctx, query, topicID)
}

// ListActive returns every active source across all topics. Used at startup
// to rebuild the scheduler's entries.
func (r *SourceRepository) ListActive(ctx context.Context) ([]models.Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources WHERE active ORDER BY created_at"
	return r.list(ctx, query)
}

func (r *SourceRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// Update persists mutable configuration fields.
func (r *SourceRepository) Update(ctx context.Context, src models.Source) error {
	query := `
		UPDATE sources
		SET name = $2, base_url = $3, kind = $4, language = $5, country = $6,
		    degrees_of_separation = $7, scrape_interval_minutes = $8, active = $9,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		src.ID, src.Name, src.BaseURL, src.Kind,
		nullable(src.Language), nullable(src.Country),
		src.DegreesOfSeparation, src.ScrapeIntervalMinutes, src.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TryAcquireScrape atomically flips the single-flight flag. It returns false
// when another run already holds the flag, without any side effects.
func (r *SourceRepository) TryAcquireScrape(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE sources SET currently_scraping = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT currently_scraping
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to acquire scrape flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check acquire result: %w", err)
	}
	return affected == 1, nil
}

// ReleaseScrape clears the single-flight flag. Safe to call on every
// terminal path.
func (r *SourceRepository) ReleaseScrape(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sources SET currently_scraping = FALSE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to release scrape flag: %w", err)
	}
	return nil
}

// UpdateWatermark advances last_scraped_at after a successful run.
func (r *SourceRepository) UpdateWatermark(ctx context.Context, id string, t time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sources SET last_scraped_at = $2, updated_at = NOW() WHERE id = $1", id, t)
	if err != nil {
		return fmt.Errorf("failed to update watermark: %w", err)
	}
	return nil
}

// Delete removes a source, its ledger rows and extracted events (schema
// cascade), then prunes canonical events left with zero linked extractions.
func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var topicID string
	err = tx.QueryRowContext(ctx, "SELECT topic_id FROM sources WHERE id = $1", id).Scan(&topicID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up source: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	// An event must always have at least one extraction pointing at it.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM events e
		WHERE e.topic_id = $1
		  AND NOT EXISTS (SELECT 1 FROM extracted_events x WHERE x.event_id = e.id)
	`, topicID); err != nil {
		return fmt.Errorf("failed to prune orphaned events: %w", err)
	}

	return tx.Commit()
}
