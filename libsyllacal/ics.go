package libsyllacal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// WriteICS renders entries as an iCalendar stream for import into calendar
// apps that are not synced through the API (e.g. Apple Calendar).
func WriteICS(w io.Writer, entries []Entry) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//syllacal//event export//EN")

	now := time.Now()
	for i, entry := range entries {
		uid := fmt.Sprintf("syllacal-%d-%s@syllacal", i, entry.Start.Format("20060102T1504"))
		event := cal.AddEvent(uid)
		event.SetDtStampTime(now)
		event.SetSummary(entry.Title)

		if entry.Notes != "" {
			event.SetDescription(entry.Notes)
		}
		if entry.Location != "" {
			event.SetLocation(entry.Location)
		}

		if entry.AllDay {
			end := entry.End
			if !end.After(entry.Start) {
				end = entry.Start
			}
			event.SetAllDayStartAt(entry.Start)
			event.SetAllDayEndAt(end.AddDate(0, 0, 1))
		} else {
			event.SetStartAt(entry.Start)
			event.SetEndAt(entry.End)
		}

		if entry.Recurrence != nil {
			rule, err := entry.Recurrence.RRule()
			if err != nil {
				return err
			}
			event.AddRrule(strings.TrimPrefix(rule, "RRULE:"))
		}
	}

	return cal.SerializeTo(w)
}

// ExportICS writes entries to an .ics file at the given path.
func ExportICS(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ics file: %w", err)
	}
	defer f.Close()

	if err := WriteICS(f, entries); err != nil {
		return fmt.Errorf("failed to write ics file: %w", err)
	}

	return nil
}
