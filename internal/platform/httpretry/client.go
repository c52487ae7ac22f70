// Package httpretry provides an HTTP client that retries transient failures
// with exponential backoff and jitter.
package httpretry

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPDoer is satisfied by *http.Client and *RetryClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer and retries 429/5xx responses and transport errors.
// Client errors (4xx other than 429) and context cancellation are never retried.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option customizes a RetryClient.
type Option func(*RetryClient)

// WithBackOff replaces the default exponential policy, mostly for tests.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(rc *RetryClient) { rc.newBackOff = factory }
}

// NewRetryClient creates a RetryClient. A nil client means an http.Client with a 30s timeout.
// maxRetries counts retries after the first attempt.
func NewRetryClient(client HTTPDoer, maxRetries int, logger *slog.Logger, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		newBackOff: defaultBackOff,
		logger:     logger.With("component", "httpretry"),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Do executes req, retrying as described on RetryClient. On the last attempt
// a retryable response is returned as-is so the caller can read its body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	policy := rc.newBackOff()
	policy.Reset()

	var lastErr error
	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := policy.NextBackOff()
			if delay == backoff.Stop {
				break
			}
			rc.logger.DebugContext(ctx, "Retrying request",
				"attempt", attempt, "max_retries", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, ctx.Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

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
