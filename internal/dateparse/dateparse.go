// Package dateparse normalizes free-text date fragments into instants.
package dateparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// ErrUnparsable is returned when a fragment contains no resolvable date.
// Callers drop the candidate; this is never fatal.
var ErrUnparsable = errors.New("unparsable date")

// Confidence indicates how the fragment was resolved.
type Confidence int

const (
	// ConfidenceLow means the date came from permissive natural-language
	// matching and may need user review.
	ConfidenceLow Confidence = iota
	// ConfidenceHigh means the fragment matched an explicit date format.
	ConfidenceHigh
)

// Result is a normalized date/time value.
type Result struct {
	Start time.Time
	// AllDay is true when the fragment carried no time-of-day.
	AllDay     bool
	Confidence Confidence
}

// Layouts with an explicit time-of-day. Go matches month names
// case-insensitively but the 3:04PM token is exact, so normalize()
// uppercases am/pm before these are tried.
var timedLayouts = []string{
	"January 2, 2006 at 3:04PM",
	"January 2, 2006 at 3PM",
	"January 2, 2006 3:04PM",
	"January 2 2006 at 3:04PM",
	"January 2 2006 3:04PM",
	"1/2/2006 at 3:04PM",
	"1/2/2006 3:04PM",
	"1/2/2006 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// Timed layouts without a year; the year is inferred from the reference.
var timedNoYearLayouts = []string{
	"January 2 at 3:04PM",
	"January 2 at 3PM",
	"January 2 3:04PM",
	"January 2 3PM",
}

// Date-only layouts.
var dateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
}

var dateNoYearLayouts = []string{
	"January 2",
}

var (
	ordinalRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	monthRe   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\b`)
	ampmRe    = regexp.MustCompile(`(?i)\b(am|pm)\b`)
	spaceRe   = regexp.MustCompile(`\s+`)

	// explicitDateRe marks fragments that state a concrete calendar date.
	// If such a fragment survives to the natural-language fallback, the
	// layouts rejected it; guessing would produce a wrong instant.
	explicitDateRe = regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}\b|\b\d{1,2}/\d{1,2}\b|\b\d{4}-\d{2}-\d{2}\b`)

	// hasTimeRe detects an explicit time-of-day in the fragment.
	hasTimeRe = regexp.MustCompile(`(?i)\d{1,2}:\d{2}|\b\d{1,2}\s*(am|pm)\b|\bnoon\b|\bmidnight\b`)

	// dateCueRe guards the natural-language fallback: without at least one
	// date-bearing word or digit there is nothing to resolve.
	dateCueRe = regexp.MustCompile(`(?i)\d|\b(today|tomorrow|next|this|coming|monday|tuesday|wednesday|thursday|friday|saturday|sunday|january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec|week|month|noon|midnight)\b`)
)

// Parse normalizes a free-text fragment against a reference instant and a
// target timezone.
//
// Explicit date+time formats produce a timed instant; date-only formats an
// all-day value; relative references ("next Tuesday") are resolved against
// ref via natural-language parsing. Anything else fails with ErrUnparsable.
func Parse(s string, ref time.Time, loc *time.Location) (Result, error) {
	s = normalize(s)
	if s == "" {
		return Result{}, fmt.Errorf("empty fragment: %w", ErrUnparsable)
	}

	if loc == nil {
		loc = ref.Location()
	}
	ref = ref.In(loc)

	for _, layout := range timedLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Result{Start: t, Confidence: ConfidenceHigh}, nil
		}
	}

	for _, layout := range timedNoYearLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Result{Start: inferYear(t, ref, loc), Confidence: ConfidenceHigh}, nil
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Result{Start: t, AllDay: true, Confidence: ConfidenceHigh}, nil
		}
	}

	for _, layout := range dateNoYearLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Result{Start: inferYear(t, ref, loc), AllDay: true, Confidence: ConfidenceHigh}, nil
		}
	}

	if !dateCueRe.MatchString(s) {
		return Result{}, fmt.Errorf("no date in %q: %w", s, ErrUnparsable)
	}

	// A concrete month/day that no layout accepted is malformed. The
	// natural-language parser would still return something for it, with the
	// day silently wrong, so refuse rather than guess.
	if explicitDateRe.MatchString(s) {
		return Result{}, fmt.Errorf("unrecognized date format %q: %w", s, ErrUnparsable)
	}

	// Natural language ("next Tuesday at 3pm", "tomorrow"), future-preferring.
	t, err := naturaldate.Parse(strings.ToLower(s), ref, naturaldate.WithDirection(naturaldate.Future))
	if err != nil {
		return Result{}, fmt.Errorf("could not parse %q: %w", s, ErrUnparsable)
	}

	return Result{
		Start:      t,
		AllDay:     !hasTimeRe.MatchString(s),
		Confidence: ConfidenceLow,
	}, nil
}

var fullMonths = map[string]string{
	"jan": "January", "feb": "February", "mar": "March", "apr": "April",
	"jun": "June", "jul": "July", "aug": "August", "sep": "September",
	"sept": "September", "oct": "October", "nov": "November", "dec": "December",
}

// normalize collapses whitespace, strips ordinal day suffixes, expands month
// abbreviations and uppercases am/pm so the fixed layouts match
// ("Oct 1st 3pm" -> "October 1 3PM").
func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = monthRe.ReplaceAllStringFunc(s, func(m string) string {
		key := strings.ToLower(strings.TrimSuffix(m, "."))
		if full, ok := fullMonths[key]; ok {
			return full
		}
		return m
	})
	s = ampmRe.ReplaceAllStringFunc(s, strings.ToUpper)
	s = strings.TrimSuffix(s, ".")
	return s
}

// inferYear fills in the reference year for fragments like "October 15",
// rolling forward when the date already passed.
func inferYear(t, ref time.Time, loc *time.Location) time.Time {
	result := time.Date(ref.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if result.Before(StartOfDay(ref)) {
		result = result.AddDate(1, 0, 0)
	}
	return result
}

// StartOfDay returns midnight for the given time.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
