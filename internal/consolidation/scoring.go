package consolidation

import (
	"math"
	"time"
)

// EvidenceScore is the recency-weighted weight of a set of supporting
// reports. Each report contributes 0.5^(age_days/halfLifeDays), so a report
// loses half its weight every half-life.
func EvidenceScore(publishedDates []time.Time, now time.Time, halfLifeDays float64) float64 {
	score := 0.0
	for _, published := range publishedDates {
		ageDays := now.Sub(published).Seconds() / (24 * 3600)
		score += math.Pow(0.5, ageDays/halfLifeDays)
	}
	return score
}

// ConsensusReached reports whether the supporters of a new value override
// scoring outright: every new-value report must be strictly more recently
// published than every old-value report, and there must be at least
// consensusCount of them. With no old-value reports the recency condition
// holds trivially.
func ConsensusReached(newDates, oldDates []time.Time, consensusCount int) bool {
	recent := 0
	for _, newDate := range newDates {
		newerThanAll := true
		for _, oldDate := range oldDates {
			if !newDate.After(oldDate) {
				newerThanAll = false
				break
			}
		}
		if newerThanAll {
			recent++
		}
	}
	return recent >= consensusCount
}
