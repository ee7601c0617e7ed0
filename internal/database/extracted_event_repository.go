package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/topicwatch/topicwatch/internal/models"
)

// ExtractedEventRepository stores raw candidate events. Rows are immutable
// once written, except for the canonical-event link and the embedding set
// during the commit stage.
type ExtractedEventRepository struct {
	db *sql.DB
}

// NewExtractedEventRepository creates a new extracted event repository.
func NewExtractedEventRepository(db *sql.DB) *ExtractedEventRepository {
	return &ExtractedEventRepository{db: db}
}

// Create inserts a new extracted event, including its embedding when already
// computed.
func (r *ExtractedEventRepository) Create(ctx context.Context, ee models.ExtractedEvent) error {
	notesJSON, err := marshalNotes(ee.Notes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO extracted_events (
			id, topic_id, source_id, event_id, title, description, event_date,
			location, significance, duration_seconds, notes, semantic_vector,
			source_url, source_title, source_published_date, degrees_of_separation, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.db.ExecContext(ctx, query,
		ee.ID, ee.TopicID, ee.SourceID, nullable(ee.EventID),
		ee.Title, nullable(ee.Description), ee.Date,
		nullable(ee.Location), ee.Significance, durationSeconds(ee.Duration), notesJSON,
		vectorOrNil(ee.SemanticVector),
		ee.SourceURL, nullable(ee.SourceTitle), ee.SourcePublishedDate,
		ee.DegreesOfSeparation, ee.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert extracted event: %w", err)
	}
	return nil
}

// SetVector stores the embedding computed for an extracted event.
func (r *ExtractedEventRepository) SetVector(ctx context.Context, id string, v models.Vector) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE extracted_events SET semantic_vector = $2 WHERE id = $1", id, v)
	if err != nil {
		return fmt.Errorf("failed to set semantic vector: %w", err)
	}
	return nil
}

// LinkEvent points an extracted event at the canonical event it was merged
// into. This is the only mutation an extracted event ever receives after
// its embedding is set.
func (r *ExtractedEventRepository) LinkEvent(ctx context.Context, id, eventID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE extracted_events SET event_id = $2 WHERE id = $1", id, eventID)
	if err != nil {
		return fmt.Errorf("failed to link extracted event: %w", err)
	}
	return nil
}

// ListByEvent returns every extracted event linked to a canonical event.
// The conflict resolver partitions these into evidence sets in memory.
func (r *ExtractedEventRepository) ListByEvent(ctx context.Context, eventID string) ([]models.ExtractedEvent, error) {
	query := `
		SELECT id, topic_id, source_id, COALESCE(event_id::text, ''), title, COALESCE(description, ''),
		       event_date, COALESCE(location, ''), significance, duration_seconds, notes,
		       source_url, COALESCE(source_title, ''), source_published_date,
		       degrees_of_separation, created_at
		FROM extracted_events
		WHERE event_id = $1
		ORDER BY source_published_date
	`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query extracted events: %w", err)
	}
	defer rows.Close()

	var out []models.ExtractedEvent
	for rows.Next() {
		ee, err := scanExtractedEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ee)
	}
	return out, rows.Err()
}

func scanExtractedEvent(rows *sql.Rows) (*models.ExtractedEvent, error) {
	var ee models.ExtractedEvent
	var durSecs sql.NullInt64
	var notesJSON []byte

	if err := rows.Scan(
		&ee.ID, &ee.TopicID, &ee.SourceID, &ee.EventID, &ee.Title, &ee.Description,
		&ee.Date, &ee.Location, &ee.Significance, &durSecs, &notesJSON,
		&ee.SourceURL, &ee.SourceTitle, &ee.SourcePublishedDate,
		&ee.DegreesOfSeparation, &ee.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan extracted event: %w", err)
	}

	if durSecs.Valid {
		d := time.Duration(durSecs.Int64) * time.Second
		ee.Duration = &d
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &ee.Notes); err != nil {
			return nil, fmt.Errorf("failed to decode notes: %w", err)
		}
	}
	return &ee, nil
}

func marshalNotes(notes map[string]string) (interface{}, error) {
	if len(notes) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notes: %w", err)
	}
	return b, nil
}

func durationSeconds(d *time.Duration) interface{} {
	if d == nil {
		return nil
	}
	return int64(d.Seconds())
}

func vectorOrNil(v models.Vector) interface{} {
	if v == nil {
		return nil
	}
	return v
}
