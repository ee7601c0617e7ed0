package consolidation

import (
	"strings"
	"time"

	"github.com/topicwatch/topicwatch/internal/models"
)

// resolveDate decides whether the event adopts the extraction's date.
// Midnight UTC on the stored date means "time of day unknown": a report for
// the same calendar day that carries a time fills it in without needing
// evidence.
func (c *Consolidator) resolveDate(ev *models.Event, ee *models.ExtractedEvent, evidence []models.ExtractedEvent, now time.Time) bool {
	if ev.Date.Equal(ee.Date) {
		return false
	}

	evDate := ev.Date.UTC()
	eeDate := ee.Date.UTC()
	sameDay := evDate.Year() == eeDate.Year() && evDate.YearDay() == eeDate.YearDay()
	h, m, s := evDate.Clock()
	if sameDay && h == 0 && m == 0 && s == 0 {
		ev.Date = ee.Date
		ev.DateFromID = ee.ID
		return true
	}

	oldDates, newDates := partitionDates(evidence, ev.Date, ee.Date)
	if c.adoptNewValue(oldDates, newDates, now) {
		ev.Date = ee.Date
		ev.DateFromID = ee.ID
		return true
	}
	return false
}

// resolveDuration: an absent stored duration is filled in directly; a
// conflicting one goes through evidence weighing.
func (c *Consolidator) resolveDuration(ev *models.Event, ee *models.ExtractedEvent, evidence []models.ExtractedEvent, now time.Time) bool {
	if ee.Duration == nil || durationsEqual(ev.Duration, ee.Duration) {
		return false
	}
	if ev.Duration == nil {
		ev.Duration = ee.Duration
		ev.DurationFromID = ee.ID
		return true
	}

	oldDates, newDates := partitionDurations(evidence, ev.Duration, ee.Duration)
	if c.adoptNewValue(oldDates, newDates, now) {
		ev.Duration = ee.Duration
		ev.DurationFromID = ee.ID
		return true
	}
	return false
}

// resolveLocation: an absent stored location is filled in directly, and so
// is a new location that merely extends the stored one as a substring.
func (c *Consolidator) resolveLocation(ev *models.Event, ee *models.ExtractedEvent, evidence []models.ExtractedEvent, now time.Time) bool {
	if ee.Location == "" || ev.Location == ee.Location {
		return false
	}
	if ev.Location == "" || contains(ee.Location, ev.Location) {
		ev.Location = ee.Location
		ev.LocationFromID = ee.ID
		return true
	}

	oldDates, newDates := partitionLocations(evidence, ev.Location, ee.Location)
	if c.adoptNewValue(oldDates, newDates, now) {
		ev.Location = ee.Location
		ev.LocationFromID = ee.ID
		return true
	}
	return false
}

// adoptNewValue applies the shared evidence rules: consensus first, then
// score comparison. A tie keeps the old value.
func (c *Consolidator) adoptNewValue(oldDates, newDates []time.Time, now time.Time) bool {
	if ConsensusReached(newDates, oldDates, c.cfg.ConsensusCount) {
		return true
	}
	oldScore := EvidenceScore(oldDates, now, c.cfg.HalfLifeDays)
	newScore := EvidenceScore(newDates, now, c.cfg.HalfLifeDays)
	return newScore > oldScore
}

func partitionDates(evidence []models.ExtractedEvent, oldValue, newValue time.Time) (oldDates, newDates []time.Time) {
	for _, report := range evidence {
		switch {
		case report.Date.Equal(oldValue):
			oldDates = append(oldDates, report.SourcePublishedDate)
		case report.Date.Equal(newValue):
			newDates = append(newDates, report.SourcePublishedDate)
		}
	}
	return oldDates, newDates
}

func partitionDurations(evidence []models.ExtractedEvent, oldValue, newValue *time.Duration) (oldDates, newDates []time.Time) {
	for _, report := range evidence {
		switch {
		case durationsEqual(report.Duration, oldValue):
			oldDates = append(oldDates, report.SourcePublishedDate)
		case durationsEqual(report.Duration, newValue):
			newDates = append(newDates, report.SourcePublishedDate)
		}
	}
	return oldDates, newDates
}

func partitionLocations(evidence []models.ExtractedEvent, oldValue, newValue string) (oldDates, newDates []time.Time) {
	for _, report := range evidence {
		switch report.Location {
		case oldValue:
			oldDates = append(oldDates, report.SourcePublishedDate)
		case newValue:
			newDates = append(newDates, report.SourcePublishedDate)
		}
	}
	return oldDates, newDates
}

func durationsEqual(a, b *time.Duration) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func contains(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}
