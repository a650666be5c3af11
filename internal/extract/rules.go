// Package extract turns raw syllabus text into canonical calendar entries.
//
// Two strategies are provided: an AI-backed extractor that delegates to an
// external structured-extraction capability, and a rule-based extractor that
// works entirely offline and serves as the always-available fallback.
package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/njt/syllacal/internal/dateparse"
	"github.com/njt/syllacal/libsyllacal"
)

const (
	monthPattern   = `(?:january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)`
	weekdayPattern = `(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)`
	timePattern    = `(?:\s+(?:at\s+)?\d{1,2}(?::\d{2})?\s*(?:am|pm))?`
)

// dateFragmentRe locates the date-bearing substring of a line. Bare weekday
// mentions only count when they carry a time of day, otherwise every
// "see you Monday" would become a candidate.
var dateFragmentRe = regexp.MustCompile(`(?i)` + strings.Join([]string{
	monthPattern + `\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?` + timePattern,
	`\d{1,2}/\d{1,2}(?:/\d{2,4})?` + timePattern,
	`\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}(?::\d{2})?)?`,
	`(?:next|this|coming)\s+` + weekdayPattern + timePattern,
	weekdayPattern + `\s+(?:at\s+)?\d{1,2}(?::\d{2})?\s*(?:am|pm)`,
	`(?:today|tomorrow)` + timePattern,
}, "|"))

// taskWords classify a line as a due-date task rather than a timed event.
var taskWords = []string{
	"due", "deadline", "submit", "submission", "assignment", "homework",
	"problem set", "turn in", "hand in", "deliverable",
}

var recurringRe = regexp.MustCompile(`(?i)\b(?:every|each)\s+(` + weekdayPattern + `)s?\b|\b(` + weekdayPattern + `)s\b|\bweekly\b`)

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
}

// RuleExtractor produces candidate entries from heuristic line scanning,
// without any network call. It never fails for availability reasons.
type RuleExtractor struct{}

// NewRuleExtractor creates the rule-based extraction strategy
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

// Extract scans the text line by line for date-bearing candidates. The
// second return value counts candidates dropped because their date fragment
// could not be normalized.
func (x *RuleExtractor) Extract(_ context.Context, text string, ref time.Time, loc *time.Location) ([]libsyllacal.Entry, int, error) {
	if loc == nil {
		loc = ref.Location()
	}

	var entries []libsyllacal.Entry
	var dropped int
	var lastHeading string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		match := dateFragmentRe.FindStringIndex(line)
		if match == nil {
			// A dateless line may be the heading for the dated lines below it.
			if heading := cleanTitle(line); len(heading) > 2 {
				lastHeading = heading
			}
			continue
		}

		fragment := line[match[0]:match[1]]
		parsed, err := dateparse.Parse(fragment, ref, loc)
		if err != nil {
			dropped++
			continue
		}

		title := cleanTitle(line[:match[0]] + " " + line[match[1]:])
		if title == "" {
			title = lastHeading
		}
		if title == "" {
			title = fragment
		}

		entries = append(entries, buildEntry(line, title, parsed, loc))
	}

	return entries, dropped, nil
}

// buildEntry classifies and assembles a candidate from a matched line.
func buildEntry(line, title string, parsed dateparse.Result, loc *time.Location) libsyllacal.Entry {
	entry := libsyllacal.Entry{
		Title:    title,
		Timezone: loc.String(),
		Notes:    line,
	}

	if isTask(line) {
		entry.Kind = libsyllacal.KindTask
		entry.AllDay = true
		entry.Start = dateparse.StartOfDay(parsed.Start)
		entry.End = entry.Start
	} else {
		entry.Kind = libsyllacal.KindEvent
		if parsed.AllDay {
			entry.AllDay = true
			entry.Start = dateparse.StartOfDay(parsed.Start)
			entry.End = entry.Start
		} else {
			entry.Start = parsed.Start
			entry.End = parsed.Start.Add(libsyllacal.DefaultDuration)
		}
	}

	if rule := detectWeekly(line, entry.Start); rule != nil {
		entry.Recurrence = rule
	}

	return entry
}

func isTask(line string) bool {
	lower := strings.ToLower(line)
	for _, word := range taskWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// detectWeekly returns a weekly rule when the line states a recurring
// pattern ("every Monday", "Tuesdays", "weekly").
func detectWeekly(line string, start time.Time) *libsyllacal.WeeklyRule {
	m := recurringRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	weekday := start.Weekday()
	for _, group := range m[1:] {
		if wd, ok := weekdayNames[strings.ToLower(group)]; ok {
			weekday = wd
			break
		}
	}

	return &libsyllacal.WeeklyRule{
		Weekday: weekday,
		Count:   libsyllacal.DefaultRecurrenceCount,
	}
}

var titleSpaceRe = regexp.MustCompile(`\s+`)

// Connector words left dangling once the date fragment is removed.
var danglingSuffixes = []string{" on", " at", " is", " by", " from", " the", " every", " each", " due"}

// cleanTitle strips list markers, punctuation and dangling connector words.
func cleanTitle(s string) string {
	s = titleSpaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, " \t-–—:;,.*•|>#")

	for {
		lower := strings.ToLower(s)
		trimmed := false
		for _, suffix := range danglingSuffixes {
			if strings.HasSuffix(lower, suffix) {
				s = strings.TrimSpace(s[:len(s)-len(suffix)])
				s = strings.TrimRight(s, ":;,-")
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}

	return strings.TrimSpace(s)
}
