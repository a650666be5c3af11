package libsyllacal

import (
	"strings"
	"testing"
	"time"
)

func TestWriteICS(t *testing.T) {
	start := time.Date(2025, 10, 15, 15, 0, 0, 0, time.UTC)

	entries := []Entry{
		{
			Title:    "Midterm",
			Kind:     KindEvent,
			Start:    start,
			End:      start.Add(time.Hour),
			Timezone: "UTC",
			Location: "Room 101",
		},
		{
			Title:    "Essay due",
			Kind:     KindTask,
			Start:    time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			AllDay:   true,
			Timezone: "UTC",
			Notes:    "Submit via portal",
		},
		{
			Title:    "Lecture",
			Kind:     KindEvent,
			Start:    start,
			End:      start.Add(time.Hour),
			Timezone: "UTC",
			Recurrence: &WeeklyRule{
				Weekday: time.Wednesday,
				Count:   16,
			},
		},
	}

	var sb strings.Builder
	if err := WriteICS(&sb, entries); err != nil {
		t.Fatalf("WriteICS failed: %v", err)
	}
	got := sb.String()

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"END:VCALENDAR",
		"SUMMARY:Midterm",
		"SUMMARY:Essay due",
		"SUMMARY:Lecture",
		"LOCATION:Room 101",
		"DESCRIPTION:Submit via portal",
		"FREQ=WEEKLY",
		"METHOD:PUBLISH",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in ICS output", want)
		}
	}

	if count := strings.Count(got, "BEGIN:VEVENT"); count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}

	// All-day end dates are exclusive.
	if !strings.Contains(got, "20260101") {
		t.Error("expected exclusive all-day end date")
	}
}

func TestWriteICSEmpty(t *testing.T) {
	var sb strings.Builder
	if err := WriteICS(&sb, nil); err != nil {
		t.Fatalf("WriteICS failed: %v", err)
	}

	got := sb.String()
	if !strings.Contains(got, "BEGIN:VCALENDAR") {
		t.Error("expected calendar envelope")
	}
	if strings.Contains(got, "BEGIN:VEVENT") {
		t.Error("expected no events")
	}
}
