package github

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry-go"
)

const (
	// retryAttempts is the maximum number of retry attempts.
	retryAttempts = 10
	// retryDelay is the initial retry delay.
	retryDelay = 1 * time.Second
	// retryMaxDelay is the maximum retry delay.
	retryMaxDelay = 2 * time.Minute
	// retryMaxJitter adds randomness to prevent thundering herd.
	retryMaxJitter = 1 * time.Second
	// maxRequestSize limits request body size to prevent memory issues.
	maxRequestSize = 1 * 1024 * 1024 // 1MB
)

// errRetryable signals that the request should be retried.
var errRetryable = errors.New("retryable HTTP status")

// RetryTransport wraps an http.RoundTripper with retry logic using
// exponential backoff with jitter. Retries on 429, 5xx, and GitHub's
// rate-limited 403 responses.
type RetryTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface with retry logic.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Base == nil {
		t.Base = http.DefaultTransport
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(io.LimitReader(req.Body, maxRequestSize))
		if err != nil {
			return nil, err
		}
		if closeErr := req.Body.Close(); closeErr != nil {
			slog.DebugContext(req.Context(), "failed to close request body", "error", closeErr, "url", req.URL.String())
		}
	}

	var resp *http.Response

	err := retry.Do(
		func() error { //nolint:contextcheck // Context is accessed via closure from req.Context()
			// Reset the body for each retry attempt.
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}

			var err error
			start := time.Now()
			resp, err = t.Base.RoundTrip(req) //nolint:bodyclose // Response body is handled by caller in successful cases
			elapsed := time.Since(start)
			if err != nil {
				slog.ErrorContext(req.Context(), "HTTP request failed",
					"url", req.URL.String(),
					"error", err,
					"elapsed", elapsed)
				return err
			}

			shouldRetry := resp.StatusCode == http.StatusTooManyRequests ||
				(resp.StatusCode >= 500 && resp.StatusCode < 600)

			// GitHub returns 403 for rate limit errors - check headers to confirm.
			if resp.StatusCode == http.StatusForbidden &&
				resp.Header.Get("X-Ratelimit-Remaining") == "0" {
				shouldRetry = true
			}

			if shouldRetry {
				// Keep the body readable in case this was the final attempt.
				respBytes, readErr := io.ReadAll(resp.Body)
				if readErr != nil {
					respBytes = nil
				}
				if closeErr := resp.Body.Close(); closeErr != nil {
					slog.DebugContext(req.Context(), "failed to close response body for retry", "error", closeErr)
				}
				resp.Body = io.NopCloser(bytes.NewReader(respBytes))
				slog.InfoContext(req.Context(), "HTTP request will be retried",
					"status", resp.StatusCode,
					"url", req.URL.String())
				return errRetryable
			}

			return nil
		},
		retry.Context(req.Context()),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.MaxJitter(retryMaxJitter),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errRetryable)
		}),
	)
	if err != nil {
		if errors.Is(err, errRetryable) {
			// Out of attempts; hand the final error response to the caller.
			return resp, nil
		}
		return nil, err
	}

	return resp, nil
}
