package libsyllacal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// EventDateTime represents a start or end in the calendar API. Timed entries
// set DateTime and TimeZone; all-day entries set Date only.
type EventDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Event represents a calendar event in the Google Calendar API
type Event struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Start       *EventDateTime `json:"start,omitempty"`
	End         *EventDateTime `json:"end,omitempty"`
	Recurrence  []string       `json:"recurrence,omitempty"`
	Status      string         `json:"status,omitempty"`
	HTMLLink    string         `json:"htmlLink,omitempty"`
}

// Calendar represents a calendar in the Google Calendar API
type Calendar struct {
	ID          string `json:"id,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"
)

// MapEntry converts a canonical entry to its calendar API representation.
func MapEntry(e *Entry) (*Event, error) {
	event := &Event{
		Summary:     e.Title,
		Description: e.Notes,
		Location:    e.Location,
	}

	if e.AllDay {
		// The API treats the end date as exclusive.
		endDate := e.End
		if !endDate.After(e.Start) {
			endDate = e.Start
		}
		event.Start = &EventDateTime{Date: e.Start.Format(dateLayout)}
		event.End = &EventDateTime{Date: endDate.AddDate(0, 0, 1).Format(dateLayout)}
	} else {
		// Wall-clock time plus the IANA zone, so the provider pins the
		// instant to the user's timezone.
		event.Start = &EventDateTime{
			DateTime: e.Start.Format(dateTimeLayout),
			TimeZone: e.Timezone,
		}
		event.End = &EventDateTime{
			DateTime: e.End.Format(dateTimeLayout),
			TimeZone: e.Timezone,
		}
	}

	if e.Recurrence != nil {
		rule, err := e.Recurrence.RRule()
		if err != nil {
			return nil, err
		}
		event.Recurrence = []string{rule}
	}

	return event, nil
}

// InsertEvent creates an event in the given calendar
func (c *Client) InsertEvent(ctx context.Context, calendarID string, event *Event) (*Event, error) {
	if calendarID == "" {
		calendarID = "primary"
	}

	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))
	data, err := c.Post(ctx, path, event)
	if err != nil {
		return nil, err
	}

	var created Event
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &created, nil
}

// InsertCalendar creates a new calendar (e.g. a dedicated syllabus calendar)
func (c *Client) InsertCalendar(ctx context.Context, calendar *Calendar) (*Calendar, error) {
	data, err := c.Post(ctx, "/calendars", calendar)
	if err != nil {
		return nil, err
	}

	var created Calendar
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to unmarshal calendar: %w", err)
	}

	return &created, nil
}
