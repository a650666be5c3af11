package libsyllacal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RetryPolicy is a bounded retry with exponential backoff. Only retryable
// API failures (transient, rate-limited) are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches the provider's guidance for transient errors.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err

			var apiErr *APIError
			if !errors.As(err, &apiErr) || !apiErr.Retryable() {
				return err
			}

			if attempt < attempts-1 {
				wait := p.BaseDelay << attempt
				slog.Debug("calendar request failed, retrying",
					"attempt", attempt+1,
					"wait", wait,
					"error", err)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

// SyncResult is the per-entry outcome of a sync run.
type SyncResult struct {
	Title   string `json:"title"`
	EventID string `json:"eventId,omitempty"`
	Link    string `json:"link,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// SyncerOptions configures a Syncer. The zero value selects sane defaults.
type SyncerOptions struct {
	CalendarID string
	Retry      RetryPolicy
	// Concurrency bounds the number of in-flight creation calls.
	Concurrency int
	// RequestsPerSecond throttles calls to stay under the provider quota.
	RequestsPerSecond float64
}

// Syncer pushes canonical entries into a calendar, one creation call per
// entry, collecting per-entry outcomes.
type Syncer struct {
	client      *Client
	calendarID  string
	retry       RetryPolicy
	limiter     *rate.Limiter
	concurrency int
}

// NewSyncer creates a syncer over an authorized calendar client
func NewSyncer(client *Client, opts *SyncerOptions) *Syncer {
	if opts == nil {
		opts = &SyncerOptions{}
	}

	calendarID := opts.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Syncer{
		client:      client,
		calendarID:  calendarID,
		retry:       retry,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		concurrency: concurrency,
	}
}

// SyncAll attempts to create every entry independently. The returned slice
// has the same length and order as the input; one entry's failure never
// aborts the remaining entries.
func (s *Syncer) SyncAll(ctx context.Context, entries []Entry) []SyncResult {
	results := make([]SyncResult, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i := range entries {
		g.Go(func() error {
			results[i] = s.syncOne(ctx, &entries[i])
			return nil
		})
	}

	// Workers never return errors; failures land in their result slot.
	_ = g.Wait()

	for i := range results {
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
		}
	}

	return results
}

// syncOne maps and creates a single entry.
func (s *Syncer) syncOne(ctx context.Context, entry *Entry) SyncResult {
	result := SyncResult{Title: entry.Title}

	if err := entry.Validate(); err != nil {
		result.Err = err
		return result
	}

	event, err := MapEntry(entry)
	if err != nil {
		result.Err = err
		return result
	}

	err = s.retry.Do(ctx, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		created, err := s.client.InsertEvent(ctx, s.calendarID, event)
		if err != nil {
			return err
		}

		result.EventID = created.ID
		result.Link = created.HTMLLink
		return nil
	})
	if err != nil {
		result.Err = fmt.Errorf("failed to create %q: %w", entry.Title, err)
		slog.Warn("entry sync failed", "title", entry.Title, "error", err)
	}

	return result
}
