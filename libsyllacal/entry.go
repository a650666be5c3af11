package libsyllacal

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Kind distinguishes timed events from date-only tasks.
type Kind string

const (
	// KindEvent is a calendar entry with a start and end instant.
	KindEvent Kind = "event"
	// KindTask is a date-only entry (a due date); always all-day.
	KindTask Kind = "task"
)

// DefaultDuration is applied to timed entries that carry no explicit end.
const DefaultDuration = time.Hour

// DefaultRecurrenceCount bounds a detected weekly pattern to one semester.
const DefaultRecurrenceCount = 16

// WeeklyRule is a single weekly recurrence: a day of week repeated Count times.
type WeeklyRule struct {
	Weekday time.Weekday `json:"weekday"`
	Count   int          `json:"count"`
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// RRule renders the rule as an RFC 5545 RRULE property for the calendar API.
func (r *WeeklyRule) RRule() (string, error) {
	count := r.Count
	if count <= 0 {
		count = DefaultRecurrenceCount
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[r.Weekday]},
		Count:     count,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build recurrence rule: %w", err)
	}

	return "RRULE:" + rule.String(), nil
}

// Entry is a validated, calendar-ready event or task.
type Entry struct {
	Title      string      `json:"title"`
	Kind       Kind        `json:"kind"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end,omitempty"`
	AllDay     bool        `json:"allDay"`
	Timezone   string      `json:"timezone"`
	Location   string      `json:"location,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	Recurrence *WeeklyRule `json:"recurrence,omitempty"`
}

// Validate checks the invariants every entry must satisfy before sync.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("entry title is required")
	}
	if e.Timezone == "" {
		return fmt.Errorf("entry %q has no timezone", e.Title)
	}
	if e.Start.IsZero() {
		return fmt.Errorf("entry %q has no start", e.Title)
	}
	if e.Kind == KindEvent && !e.AllDay {
		if e.End.IsZero() {
			return fmt.Errorf("entry %q has no end", e.Title)
		}
		if !e.End.After(e.Start) {
			return fmt.Errorf("entry %q ends at or before it starts", e.Title)
		}
	}
	return nil
}

// dedupeKey identifies an entry by normalized title and start minute.
func (e *Entry) dedupeKey() string {
	return strings.ToLower(strings.TrimSpace(e.Title)) + "|" + e.Start.Format("2006-01-02T15:04")
}

// Dedupe removes entries whose title and start minute match an earlier entry,
// preserving input order.
func Dedupe(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	result := make([]Entry, 0, len(entries))

	for _, e := range entries {
		key := e.dedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, e)
	}

	return result
}
