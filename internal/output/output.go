// Package output provides formatting utilities for agent-friendly CLI output.
package output

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/njt/syllacal/libsyllacal"
)

// ParseResponse is the JSON shape of a parse run: the validated entries plus
// the counts the user needs to spot partial loss.
type ParseResponse struct {
	Entries      []libsyllacal.Entry `json:"entries"`
	Count        int                 `json:"count"`
	Dropped      int                 `json:"dropped"`
	UsedFallback bool                `json:"usedFallback"`
}

// SyncResponse is the JSON shape of a sync run: one result per input entry,
// in input order.
type SyncResponse struct {
	Results  []libsyllacal.SyncResult `json:"results"`
	Created  int                      `json:"created"`
	Failed   int                      `json:"failed"`
	Calendar string                   `json:"calendar,omitempty"`
}

// ActionResponse represents the response from an action command.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WriteJSON writes a value as JSON to the writer.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteJSONString returns a value as a JSON string.
func WriteJSONString(v any) (string, error) {
	var sb strings.Builder
	if err := WriteJSON(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FormatParseResponse creates a ParseResponse from an extraction result.
func FormatParseResponse(entries []libsyllacal.Entry, dropped int, usedFallback bool) *ParseResponse {
	return &ParseResponse{
		Entries:      entries,
		Count:        len(entries),
		Dropped:      dropped,
		UsedFallback: usedFallback,
	}
}

// FormatSyncResponse creates a SyncResponse from per-entry sync results.
func FormatSyncResponse(results []libsyllacal.SyncResult, calendar string) *SyncResponse {
	resp := &SyncResponse{
		Results:  results,
		Calendar: calendar,
	}
	for _, r := range results {
		if r.Err != nil {
			resp.Failed++
		} else {
			resp.Created++
		}
	}
	return resp
}

// FormatActionResponse creates an ActionResponse.
func FormatActionResponse(success bool, message string) *ActionResponse {
	return &ActionResponse{
		Success: success,
		Message: message,
	}
}
