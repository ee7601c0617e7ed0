package llm

import (
	"strings"
	"testing"
	"time"
)

func TestParseEventDateDayOnly(t *testing.T) {
	got, dayOnly, err := parseEventDate("2026-07-29")
	if err != nil {
		t.Fatalf("parseEventDate: %v", err)
	}
	if !dayOnly {
		t.Error("expected day-only flag for bare date")
	}
	want := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want midnight UTC %v", got, want)
	}
}

func TestParseEventDateWithTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-07-29T14:30:00", time.Date(2026, 7, 29, 14, 30, 0, 0, time.UTC)},
		{"2026-07-29T14:30:00Z", time.Date(2026, 7, 29, 14, 30, 0, 0, time.UTC)},
		{"2026-07-29 14:30:00", time.Date(2026, 7, 29, 14, 30, 0, 0, time.UTC)},
		{"2026-07-29T14:30", time.Date(2026, 7, 29, 14, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, dayOnly, err := parseEventDate(tc.in)
		if err != nil {
			t.Errorf("parseEventDate(%q): %v", tc.in, err)
			continue
		}
		if dayOnly {
			t.Errorf("parseEventDate(%q): unexpected day-only flag", tc.in)
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseEventDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseEventDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "next Tuesday", "29/07/2026"} {
		if _, _, err := parseEventDate(in); err == nil {
			t.Errorf("parseEventDate(%q): expected error", in)
		}
	}
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT1H30M", 90 * time.Minute},
		{"PT30M", 30 * time.Minute},
		{"P1D", 24 * time.Hour},
		{"P1W", 7 * 24 * time.Hour},
		{"P3DT12H30M5S", 3*24*time.Hour + 12*time.Hour + 30*time.Minute + 5*time.Second},
		{"PT0.5H", 30 * time.Minute},
	}
	for _, tc := range cases {
		got, err := parseISODuration(tc.in)
		if err != nil {
			t.Errorf("parseISODuration(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseISODuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseISODurationRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "P", "1H", "P1Y", "P1M", "PTXH"} {
		if _, err := parseISODuration(in); err == nil {
			t.Errorf("parseISODuration(%q): expected error", in)
		}
	}
}

func TestStripJSONFences(t *testing.T) {
	fenced := "```json\n{\"events\": []}\n```"
	if got := stripJSONFences(fenced); got != `{"events": []}` {
		t.Errorf("stripJSONFences = %q", got)
	}
	plain := `{"events": []}`
	if got := stripJSONFences(plain); got != plain {
		t.Errorf("stripJSONFences altered plain JSON: %q", got)
	}
}

func TestEventExtractionPromptMentionsTopicAndDates(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	published := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	prompt := eventExtractionSystemPrompt(
		"Port expansion", "Expansion of the Hamburg port", "DE", "German",
		now, published)

	for _, want := range []string{
		"Port expansion",
		"Expansion of the Hamburg port",
		"German",
		"Tuesday, 10. of March 2026",
		"Sunday, 01. of March 2026",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestMergeUserPromptOrder(t *testing.T) {
	prompt := mergeUserPrompt("A", "descA", "B", "descB")
	first := strings.Index(prompt, "descA")
	second := strings.Index(prompt, "descB")
	if first < 0 || second < 0 || first > second {
		t.Errorf("merge prompt must present the first event before the second: %q", prompt)
	}
}
