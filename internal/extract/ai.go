package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/njt/syllacal/internal/dateparse"
	"github.com/njt/syllacal/libsyllacal"
)

// ErrUnavailable means the extraction capability could not be used (timeout,
// quota, malformed response). Always recoverable by falling back to the
// rule-based extractor.
var ErrUnavailable = errors.New("extraction capability unavailable")

// AIConfig holds configuration for the AI extraction capability.
type AIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// AIExtractor delegates semantic extraction to a language-model capability
// with a fixed output schema. The capability is untrusted: every returned
// date field is re-validated locally through dateparse.
type AIExtractor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewAIExtractor creates the AI extraction strategy
func NewAIExtractor(cfg AIConfig) *AIExtractor {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &AIExtractor{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
	}
}

// candidate mirrors the fixed response schema. Every field is free text the
// model produced and is treated as untrusted.
type candidate struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	StartText string `json:"start_text"`
	EndText   string `json:"end_text"`
	Location  string `json:"location"`
	Notes     string `json:"notes"`
	Recurring bool   `json:"recurring"`
}

type candidateList struct {
	Entries []candidate `json:"entries"`
}

var candidateSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"entries": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"type":       {Type: jsonschema.String, Enum: []string{"event", "task"}},
					"title":      {Type: jsonschema.String},
					"start_text": {Type: jsonschema.String},
					"end_text":   {Type: jsonschema.String},
					"location":   {Type: jsonschema.String},
					"notes":      {Type: jsonschema.String},
					"recurring":  {Type: jsonschema.Boolean},
				},
				Required:             []string{"type", "title", "start_text", "end_text", "location", "notes", "recurring"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"entries"},
	AdditionalProperties: false,
}

const extractionSystemPrompt = `You are an expert at extracting events and deadlines from academic syllabi and similar documents.

Extract every exam, lecture, meeting, deadline, assignment and important date.

Classify each item:
- "event": has a specific start time (exams, lectures, meetings, office hours)
- "task": only has a due date (assignments, submissions, deadline-only items)

Rules:
1. title: short and descriptive, without the date or time
2. start_text: the date/time exactly as written in the text (do not reformat)
3. end_text: the end date/time as written, or "" when none is given
4. location: building, room, venue or "Online" when mentioned, else ""
5. notes: additional context (e.g. "Midterm", "Reading"), else ""
6. recurring: true only for clearly weekly items (e.g. "every Monday")`

// Extract sends the full text to the capability and normalizes the returned
// candidates. Any transport or schema failure maps to ErrUnavailable.
func (x *AIExtractor) Extract(ctx context.Context, text string, ref time.Time, loc *time.Location) ([]libsyllacal.Entry, int, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if loc == nil {
		loc = ref.Location()
	}

	req := openai.ChatCompletionRequest{
		Model:       x.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Current date: %s\n\nText to analyze:\n%s", ref.Format("Monday, January 2, 2006"), text),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "calendar_entries",
				Strict: true,
				Schema: &candidateSchema,
			},
		},
	}

	resp, err := x.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, 0, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	candidates, err := parseCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		// Malformed output is a full fallback trigger, not partial data.
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return normalizeCandidates(candidates, ref, loc)
}

var codeFenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseCandidates decodes the schema-checked response, tolerating markdown
// code fences some models still wrap JSON in.
func parseCandidates(content string) ([]candidate, error) {
	content = strings.TrimSpace(content)
	if m := codeFenceRe.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	var list candidateList
	if err := json.Unmarshal([]byte(content), &list); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}

	return list.Entries, nil
}

// normalizeCandidates re-derives every date locally; the capability's own
// date judgment is not trusted. Unusable candidates are dropped and counted.
func normalizeCandidates(candidates []candidate, ref time.Time, loc *time.Location) ([]libsyllacal.Entry, int, error) {
	entries := make([]libsyllacal.Entry, 0, len(candidates))
	var dropped int

	for _, c := range candidates {
		if strings.TrimSpace(c.Title) == "" {
			dropped++
			continue
		}

		parsed, err := dateparse.Parse(c.StartText, ref, loc)
		if err != nil {
			slog.Debug("dropping candidate with unparsable start", "title", c.Title, "start_text", c.StartText)
			dropped++
			continue
		}

		entry := libsyllacal.Entry{
			Title:    strings.TrimSpace(c.Title),
			Timezone: loc.String(),
			Location: strings.TrimSpace(c.Location),
			Notes:    strings.TrimSpace(c.Notes),
		}

		if c.Type == "task" {
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
				entry.End = resolveEnd(c.EndText, parsed.Start, loc)
			}
		}

		if c.Recurring {
			entry.Recurrence = &libsyllacal.WeeklyRule{
				Weekday: entry.Start.Weekday(),
				Count:   libsyllacal.DefaultRecurrenceCount,
			}
		}

		entries = append(entries, entry)
	}

	return entries, dropped, nil
}

// resolveEnd parses an explicit end when one was returned and is usable,
// else applies the default duration. The entry's own start is the reference
// so a bare "5pm" lands on the same day.
func resolveEnd(endText string, start time.Time, loc *time.Location) time.Time {
	endText = strings.TrimSpace(endText)
	if endText != "" {
		if parsed, err := dateparse.Parse(endText, start, loc); err == nil && !parsed.AllDay && parsed.Start.After(start) {
			return parsed.Start
		}
	}
	return start.Add(libsyllacal.DefaultDuration)
}
