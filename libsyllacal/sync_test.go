package libsyllacal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testEntry(title string, start time.Time) Entry {
	return Entry{
		Title:    title,
		Kind:     KindEvent,
		Start:    start,
		End:      start.Add(time.Hour),
		Timezone: "UTC",
	}
}

func TestSyncAll(t *testing.T) {
	start := time.Date(2025, 10, 15, 15, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}

		// The second entry is rejected by the provider.
		if event.Summary == "Essay due" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"Invalid start time"}}`))
			return
		}

		event.ID = "id-" + event.Summary
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(event)
	}))
	defer server.Close()

	syncer := NewSyncer(newTestClient(server), &SyncerOptions{
		Retry:             RetryPolicy{MaxAttempts: 1},
		RequestsPerSecond: 1000,
	})

	entries := []Entry{
		testEntry("Midterm", start),
		testEntry("Essay due", start.AddDate(0, 0, 7)),
		testEntry("Final", start.AddDate(0, 0, 30)),
	}

	results := syncer.SyncAll(context.Background(), entries)

	// One result per entry, in input order, regardless of failures.
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].Title != "Midterm" || results[0].Err != nil {
		t.Errorf("expected Midterm to succeed, got %+v", results[0])
	}
	if results[0].EventID != "id-Midterm" {
		t.Errorf("expected event ID, got %q", results[0].EventID)
	}

	if results[1].Title != "Essay due" || results[1].Err == nil {
		t.Errorf("expected Essay due to fail, got %+v", results[1])
	}
	if !strings.Contains(results[1].Error, "Invalid start time") {
		t.Errorf("expected provider message in result, got %q", results[1].Error)
	}

	if results[2].Title != "Final" || results[2].Err != nil {
		t.Errorf("expected Final to succeed, got %+v", results[2])
	}
}

func TestSyncAllInvalidEntry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&Event{ID: "x"})
	}))
	defer server.Close()

	syncer := NewSyncer(newTestClient(server), &SyncerOptions{RequestsPerSecond: 1000})

	// Missing title fails validation before any API call.
	results := syncer.SyncAll(context.Background(), []Entry{{Timezone: "UTC"}})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Error("expected validation failure")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no API calls for invalid entry, got %d", calls.Load())
	}
}

func TestSyncAllRetriesTransient(t *testing.T) {
	start := time.Date(2025, 10, 15, 15, 0, 0, 0, time.UTC)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":503,"message":"Backend Error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&Event{ID: "event123"})
	}))
	defer server.Close()

	syncer := NewSyncer(newTestClient(server), &SyncerOptions{
		Retry:             RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		RequestsPerSecond: 1000,
	})

	results := syncer.SyncAll(context.Background(), []Entry{testEntry("Midterm", start)})

	if results[0].Err != nil {
		t.Fatalf("expected success after retries, got %v", results[0].Err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSyncAllNoRetryOnInvalidField(t *testing.T) {
	start := time.Date(2025, 10, 15, 15, 0, 0, 0, time.UTC)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Invalid start time"}}`))
	}))
	defer server.Close()

	syncer := NewSyncer(newTestClient(server), &SyncerOptions{
		Retry:             RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		RequestsPerSecond: 1000,
	})

	results := syncer.SyncAll(context.Background(), []Entry{testEntry("Midterm", start)})

	if results[0].Err == nil {
		t.Fatal("expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt for non-retryable error, got %d", calls.Load())
	}
}

func TestRetryPolicyDo(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		transient := &APIError{Status: 503, Reason: ReasonTransient, Message: "Backend Error"}
		err := policy.Do(context.Background(), func() error {
			calls++
			return transient
		})
		if !errors.Is(err, transient) {
			t.Errorf("expected last error returned, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func() error {
			calls++
			return fmt.Errorf("wrapped: %w", &APIError{Status: 400, Reason: ReasonInvalidField})
		})
		if err == nil {
			t.Error("expected error")
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := policy.Do(ctx, func() error {
			return &APIError{Status: 503, Reason: ReasonTransient}
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
