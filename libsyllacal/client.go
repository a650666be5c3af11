package libsyllacal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// CalendarAPIBaseURL is the base URL for the Google Calendar API
	CalendarAPIBaseURL = "https://www.googleapis.com/calendar/v3"

	// DefaultRequestTimeout bounds every calendar API call.
	DefaultRequestTimeout = 30 * time.Second
)

// ErrorReason classifies a calendar API failure.
type ErrorReason string

const (
	// ReasonInvalidField means the request was rejected as malformed.
	ReasonInvalidField ErrorReason = "invalid_field"
	// ReasonAuthExpired means the access token was not accepted.
	ReasonAuthExpired ErrorReason = "auth_expired"
	// ReasonRateLimited means the provider throttled the request.
	ReasonRateLimited ErrorReason = "rate_limited"
	// ReasonTransient means a server or transport failure worth retrying.
	ReasonTransient ErrorReason = "transient"
)

// APIError is a structured calendar API failure.
type APIError struct {
	Status  int
	Reason  ErrorReason
	Message string
	cause   error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("calendar API error (%s, status %d): %s", e.Reason, e.Status, e.Message)
	}
	return fmt.Sprintf("calendar API error (%s): %s", e.Reason, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Retryable reports whether retrying the same request may succeed.
func (e *APIError) Retryable() bool {
	return e.Reason == ReasonTransient || e.Reason == ReasonRateLimited
}

// googleErrorBody is the error envelope returned by Google APIs.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// newAPIError classifies an HTTP error response.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var envelope googleErrorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = string(body)
	}

	switch {
	case status == http.StatusUnauthorized:
		apiErr.Reason = ReasonAuthExpired
	case status == http.StatusTooManyRequests:
		apiErr.Reason = ReasonRateLimited
	case status == http.StatusForbidden && isRateLimitReason(&envelope):
		apiErr.Reason = ReasonRateLimited
	case status >= 500:
		apiErr.Reason = ReasonTransient
	default:
		apiErr.Reason = ReasonInvalidField
	}

	return apiErr
}

func isRateLimitReason(envelope *googleErrorBody) bool {
	for _, e := range envelope.Error.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}

// Client is a Google Calendar API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// NewClient creates a calendar client from an authorized HTTP client
// (obtained via Authenticator.AuthorizedClient).
func NewClient(httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    CalendarAPIBaseURL,
		timeout:    DefaultRequestTimeout,
	}
}

// Post performs a POST request against the calendar API
func (c *Client) Post(ctx context.Context, path string, data interface{}) ([]byte, error) {
	return c.doJSONRequest(ctx, "POST", path, data)
}

// Get performs a GET request against the calendar API
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.doJSONRequest(ctx, "GET", path, nil)
}

// doJSONRequest performs a JSON request
func (c *Client) doJSONRequest(ctx context.Context, method, path string, data interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + path

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures (DNS, timeout, reset) are retryable.
		return nil, &APIError{Reason: ReasonTransient, Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Reason: ReasonTransient, Message: err.Error(), cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}

	return respBody, nil
}
