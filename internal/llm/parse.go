package llm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseEventDate parses the date strings the extraction prompt asks for.
// Day-only dates are normalized to midnight UTC, which downstream treats
// as the "time of day unknown" sentinel. The second return reports whether
// the input carried only a calendar date.
func parseEventDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty date")
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true, nil
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized date format %q", s)
}

// parseISODuration parses ISO 8601 durations of the form
// P[nW][nD]T[nH][nM][nS]. Year and month designators are rejected since
// they have no fixed length.
func parseISODuration(s string) (time.Duration, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	s = s[1:]
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}

	datePart := s
	timePart := ""
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
	}

	var total time.Duration

	consume := func(part string, units map[byte]time.Duration, order string) error {
		for part != "" {
			i := 0
			for i < len(part) && (part[i] >= '0' && part[i] <= '9' || part[i] == '.') {
				i++
			}
			if i == 0 || i == len(part) {
				return fmt.Errorf("invalid duration %q", orig)
			}
			unit, ok := units[part[i]]
			if !ok || !strings.ContainsRune(order, rune(part[i])) {
				return fmt.Errorf("invalid duration %q", orig)
			}
			n, err := strconv.ParseFloat(part[:i], 64)
			if err != nil {
				return fmt.Errorf("invalid duration %q", orig)
			}
			total += time.Duration(n * float64(unit))
			part = part[i+1:]
		}
		return nil
	}

	if err := consume(datePart, map[byte]time.Duration{
		'W': 7 * 24 * time.Hour,
		'D': 24 * time.Hour,
	}, "WD"); err != nil {
		return 0, err
	}
	if err := consume(timePart, map[byte]time.Duration{
		'H': time.Hour,
		'M': time.Minute,
		'S': time.Second,
	}, "HMS"); err != nil {
		return 0, err
	}

	return total, nil
}
