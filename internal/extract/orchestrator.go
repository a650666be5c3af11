package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njt/syllacal/libsyllacal"
)

// Extractor is an extraction strategy.
type Extractor interface {
	// Extract returns candidate entries plus a count of candidates dropped
	// during normalization.
	Extract(ctx context.Context, text string, ref time.Time, loc *time.Location) ([]libsyllacal.Entry, int, error)
}

// Result is the outcome of an extraction run. Dropped counts candidates lost
// to normalization or validation; callers must surface it, never hide it.
type Result struct {
	Entries      []libsyllacal.Entry
	Dropped      int
	UsedFallback bool
}

// Orchestrator selects the AI strategy when one is configured and falls back
// to the rule-based strategy whenever the capability is unavailable.
type Orchestrator struct {
	ai    Extractor
	rules Extractor
}

// NewOrchestrator creates an orchestrator. ai may be nil when no capability
// key is configured; rules defaults to the rule-based extractor.
func NewOrchestrator(ai, rules Extractor) *Orchestrator {
	if rules == nil {
		rules = NewRuleExtractor()
	}
	return &Orchestrator{ai: ai, rules: rules}
}

// Extract runs the selected strategy, deduplicates and validates the result.
func (o *Orchestrator) Extract(ctx context.Context, text string, ref time.Time, loc *time.Location) (*Result, error) {
	result := &Result{}

	var entries []libsyllacal.Entry
	var dropped int
	var err error

	runRules := o.ai == nil
	if o.ai != nil {
		entries, dropped, err = o.ai.Extract(ctx, text, ref, loc)
		if err != nil {
			if !errors.Is(err, ErrUnavailable) {
				return nil, err
			}
			slog.Warn("AI extraction unavailable, falling back to rule-based extractor", "error", err)
			result.UsedFallback = true
			runRules = true
		}
	}

	if runRules {
		entries, dropped, err = o.rules.Extract(ctx, text, ref, loc)
		if err != nil {
			return nil, fmt.Errorf("rule-based extraction failed: %w", err)
		}
	}

	entries = libsyllacal.Dedupe(entries)

	valid := entries[:0]
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			slog.Debug("dropping invalid entry", "error", err)
			dropped++
			continue
		}
		valid = append(valid, entries[i])
	}

	result.Entries = valid
	result.Dropped = dropped
	return result, nil
}
