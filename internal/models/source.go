package models

import (
	"time"
)

// SourceKind categorizes how a source's base URL is crawled.
type SourceKind string

const (
	SourceKindWebpage SourceKind = "webpage"
	SourceKindRSS     SourceKind = "rss"
)

// Source is a user-configured origin that is periodically crawled for a topic.
type Source struct {
	ID       string     `json:"id"`
	TopicID  string     `json:"topic_id"`
	Name     string     `json:"name"`
	BaseURL  string     `json:"base_url"`
	Kind     SourceKind `json:"kind"`
	Language string     `json:"language,omitempty"`
	Country  string     `json:"country,omitempty"`

	// DegreesOfSeparation is the maximum link-following depth from the base
	// URL. 0 means the base URL itself is the only content item.
	DegreesOfSeparation int `json:"degrees_of_separation"`

	// ScrapeIntervalMinutes is how often the source's scheduled run fires.
	ScrapeIntervalMinutes int  `json:"scrape_interval_minutes"`
	Active                bool `json:"active"`

	// LastScrapedAt is the watermark: content dated before it is ignored on
	// the next run.
	LastScrapedAt time.Time `json:"last_scraped_at"`

	// CurrentlyScraping is the single-flight flag. It is only ever flipped
	// via an atomic compare-and-set in the repository.
	CurrentlyScraping bool `json:"currently_scraping"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScrapeInterval returns the run cadence as a duration.
func (s *Source) ScrapeInterval() time.Duration {
	return time.Duration(s.ScrapeIntervalMinutes) * time.Minute
}

// Overdue reports whether the source has missed at least one scheduled run
// relative to its watermark.
func (s *Source) Overdue(now time.Time) bool {
	if !s.Active || s.ScrapeIntervalMinutes <= 0 {
		return false
	}
	return now.Sub(s.LastScrapedAt) > s.ScrapeInterval()
}

// WebSource records that a specific (url, published date) was processed for a
// topic. It is an insert-only dedup ledger; rows are never updated.
type WebSource struct {
	ID            string    `json:"id"`
	TopicID       string    `json:"topic_id"`
	SourceID      string    `json:"source_id"`
	URL           string    `json:"url"`
	PublishedDate time.Time `json:"published_date"`
	CreatedAt     time.Time `json:"created_at"`
}
