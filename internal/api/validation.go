package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/topicwatch/topicwatch/internal/models"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateTopic checks a topic creation payload.
func ValidateTopic(req CreateTopicRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if len(req.Name) > 200 {
		return ValidationError{Field: "name", Message: "name must be at most 200 characters"}
	}
	if c := strings.TrimSpace(req.Country); c != "" && len(c) != 2 {
		return ValidationError{Field: "country", Message: "country must be a two-letter ISO code"}
	}
	return nil
}

// ValidateSource checks a source creation payload.
func ValidateSource(req CreateSourceRequest) error {
	if req.TopicID == "" {
		return ValidationError{Field: "topic_id", Message: "topic_id is required"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}

	base := strings.TrimSpace(req.BaseURL)
	if base == "" {
		return ValidationError{Field: "base_url", Message: "base_url is required"}
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "base_url", Message: "base_url must be a valid absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: "base_url", Message: "base_url must use http or https"}
	}

	switch models.SourceKind(req.Kind) {
	case models.SourceKindWebpage, models.SourceKindRSS:
	default:
		return ValidationError{Field: "kind", Message: "kind must be one of: webpage, rss"}
	}

	if req.DegreesOfSeparation < 0 || req.DegreesOfSeparation > 3 {
		return ValidationError{Field: "degrees_of_separation", Message: "degrees_of_separation must be between 0 and 3"}
	}
	if req.ScrapeIntervalMinutes <= 0 {
		return ValidationError{Field: "scrape_interval_minutes", Message: "scrape_interval_minutes must be positive"}
	}
	return nil
}
