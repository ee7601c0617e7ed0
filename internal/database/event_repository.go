package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/topicwatch/topicwatch/internal/models"
)

// EventRepository stores canonical events, including the pgvector-backed
// nearest-neighbor lookup the consolidation engine runs for each candidate.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new canonical event.
func (r *EventRepository) Create(ctx context.Context, ev models.Event) error {
	notesJSON, err := marshalNotes(ev.Notes)
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(timesOrEmpty(ev.UpdateHistory))
	if err != nil {
		return fmt.Errorf("failed to encode update history: %w", err)
	}

	query := `
		INSERT INTO events (
			id, topic_id, title, description, event_date, date_from_id,
			location, location_from_id, duration_seconds, duration_from_id,
			notes, significance, confidence, semantic_vector, update_history,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.db.ExecContext(ctx, query,
		ev.ID, ev.TopicID, ev.Title, nullable(ev.Description),
		ev.Date, nullable(ev.DateFromID),
		nullable(ev.Location), nullable(ev.LocationFromID),
		durationSeconds(ev.Duration), nullable(ev.DurationFromID),
		notesJSON, ev.Significance, ev.Confidence,
		vectorOrNil(ev.SemanticVector), historyJSON,
		ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Update persists the merge-mutable fields of a canonical event.
func (r *EventRepository) Update(ctx context.Context, ev models.Event) error {
	notesJSON, err := marshalNotes(ev.Notes)
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(timesOrEmpty(ev.UpdateHistory))
	if err != nil {
		return fmt.Errorf("failed to encode update history: %w", err)
	}

	query := `
		UPDATE events
		SET title = $2, description = $3, event_date = $4, date_from_id = $5,
		    location = $6, location_from_id = $7,
		    duration_seconds = $8, duration_from_id = $9,
		    notes = $10, significance = $11, confidence = $12,
		    update_history = $13, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		ev.ID, ev.Title, nullable(ev.Description),
		ev.Date, nullable(ev.DateFromID),
		nullable(ev.Location), nullable(ev.LocationFromID),
		durationSeconds(ev.Duration), nullable(ev.DurationFromID),
		notesJSON, ev.Significance, ev.Confidence, historyJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
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

const eventColumns = `
	id, topic_id, title, COALESCE(description, ''), event_date, COALESCE(date_from_id::text, ''),
	COALESCE(location, ''), COALESCE(location_from_id::text, ''),
	duration_seconds, COALESCE(duration_from_id::text, ''),
	notes, significance, confidence, semantic_vector, update_history,
	created_at, updated_at
`

// GetByID retrieves a canonical event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE id = $1"
	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, id), nil)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ListByTopic returns all canonical events for a topic ordered by date.
func (r *EventRepository) ListByTopic(ctx context.Context, topicID string) ([]models.Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE topic_id = $1 ORDER BY event_date"
	rows, err := r.db.QueryContext(ctx, query, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows, nil)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// NearestEvent returns the topic's single nearest canonical event by cosine
// similarity, or ErrNotFound when the topic has no embedded events yet.
func (r *EventRepository) NearestEvent(ctx context.Context, topicID string, v models.Vector) (*models.Event, float64, error) {
	query := "SELECT " + eventColumns + `,
		1 - (semantic_vector <=> $2) AS similarity
		FROM events
		WHERE topic_id = $1 AND semantic_vector IS NOT NULL
		ORDER BY similarity DESC
		LIMIT 1
	`
	var similarity float64
	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, topicID, v), &similarity)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return ev, similarity, nil
}

func scanEvent(row interface{ Scan(...interface{}) error }, similarity *float64) (*models.Event, error) {
	var ev models.Event
	var durSecs sql.NullInt64
	var notesJSON, historyJSON []byte

	dest := []interface{}{
		&ev.ID, &ev.TopicID, &ev.Title, &ev.Description, &ev.Date, &ev.DateFromID,
		&ev.Location, &ev.LocationFromID,
		&durSecs, &ev.DurationFromID,
		&notesJSON, &ev.Significance, &ev.Confidence, &ev.SemanticVector, &historyJSON,
		&ev.CreatedAt, &ev.UpdatedAt,
	}
	if similarity != nil {
		dest = append(dest, similarity)
	}

	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	if durSecs.Valid {
		d := time.Duration(durSecs.Int64) * time.Second
		ev.Duration = &d
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &ev.Notes); err != nil {
			return nil, fmt.Errorf("failed to decode notes: %w", err)
		}
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &ev.UpdateHistory); err != nil {
			return nil, fmt.Errorf("failed to decode update history: %w", err)
		}
	}
	return &ev, nil
}

func timesOrEmpty(ts []time.Time) []time.Time {
	if ts == nil {
		return []time.Time{}
	}
	return ts
}
