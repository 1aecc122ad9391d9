// Package httpretry provides an HTTP client with automatic retry logic and
// exponential backoff for calls to the learning platform, CRM and Google APIs.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff.
// Delays are deterministic: baseDelay, doubling per attempt, capped at
// maxDelay. The whole run is single-threaded, so there is no jitter.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	// sleep is swappable so tests can record delays instead of waiting.
	sleep func(time.Duration)
}

// NewRetryClient creates a RetryClient around the given HTTPDoer.
// If client is nil, a default http.Client with a 30s timeout is used.
// maxRetries is the number of retries after the initial attempt (default 3).
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  1 * time.Second,
		maxDelay:   60 * time.Second,
		sleep:      time.Sleep,
	}
}

// SetSleep replaces the sleep function (useful for testing).
func (rc *RetryClient) SetSleep(sleep func(time.Duration)) {
	rc.sleep = sleep
}

// Do executes the HTTP request, retrying on transient failures only:
// network/timeout errors and HTTP 429, 500, 502, 503, 504. Any other
// status (including 4xx such as 409, which callers may treat as success)
// is returned immediately. On the final attempt the response is returned
// as-is so the caller can inspect status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	delay := rc.baseDelay

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			// Reset request body for the retry if applicable.
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			if delay > rc.maxDelay {
				delay = rc.maxDelay
			}
			log.Printf("[httpretry] retry %d/%d for %s %s%s (waiting %s)",
				attempt, rc.maxRetries, req.Method, req.URL.Host, req.URL.Path, delay)
			rc.sleep(delay)
			delay *= 2
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			// Connection/timeout error is transient.
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		if attempt == rc.maxRetries {
			return resp, nil
		}

		// Drain for connection reuse before retrying.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// isRetryableStatus reports whether the status code indicates a transient
// condition. Retries: 429, 500, 502, 503, 504. Everything else, 409
// included, goes back to the caller untouched.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
