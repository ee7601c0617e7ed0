package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/topicwatch/topicwatch/internal/models"
)

// TopicRepository provides access to topics.
type TopicRepository struct {
	db *sql.DB
}

// NewTopicRepository creates a new topic repository.
func NewTopicRepository(db *sql.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// Create inserts a new topic.
func (r *TopicRepository) Create(ctx context.Context, topic models.Topic) error {
	query := `
		INSERT INTO topics (id, user_id, name, description, country, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		topic.ID, topic.UserID, topic.Name,
		nullable(topic.Description), nullable(topic.Country), nullable(topic.Language),
		topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert topic: %w", err)
	}
	return nil
}

// GetByID retrieves a topic by its ID.
func (r *TopicRepository) GetByID(ctx context.Context, id string) (*models.Topic, error) {
	query := `
		SELECT id, user_id, name, COALESCE(description, ''), COALESCE(country, ''), COALESCE(language, ''), created_at, updated_at
		FROM topics WHERE id = $1
	`
	var topic models.Topic
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&topic.ID, &topic.UserID, &topic.Name,
		&topic.Description, &topic.Country, &topic.Language,
		&topic.CreatedAt, &topic.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query topic: %w", err)
	}
	return &topic, nil
}

// ListByUser returns all topics belonging to a user.
func (r *TopicRepository) ListByUser(ctx context.Context, userID string) ([]models.Topic, error) {
	query := `
		SELECT id, user_id, name, COALESCE(description, ''), COALESCE(country, ''), COALESCE(language, ''), created_at, updated_at
		FROM topics WHERE user_id = $1 ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var topic models.Topic
		if err := rows.Scan(
			&topic.ID, &topic.UserID, &topic.Name,
			&topic.Description, &topic.Country, &topic.Language,
			&topic.CreatedAt, &topic.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	return topics, rows.Err()
}

// Delete removes a topic. Sources, web sources, extracted events, events,
// and comparison rows cascade at the schema level.
func (r *TopicRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM topics WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnerID returns the ID of the user that owns the topic.
func (r *TopicRepository) OwnerID(ctx context.Context, topicID string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, "SELECT user_id FROM topics WHERE id = $1", topicID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query topic owner: %w", err)
	}
	return userID, nil
}

// nullable converts an empty string to a SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
