package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kjstillabower/local-briefing/internal/circuitbreaker"
	"github.com/kjstillabower/local-briefing/internal/observability"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// Options configures an upstream client. Zero values mean: 10s timeout, one attempt.
type Options struct {
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
}

// RetryPolicy configures retry with exponential backoff and jitter.
// Attempts counts the initial call; Attempts <= 1 disables retry.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// upstream is the GET-and-decode plumbing shared by the geolocation, weather and news clients.
type upstream struct {
	source  string
	client  *http.Client
	timeout time.Duration
	retry   RetryPolicy
	breaker *circuitbreaker.CircuitBreaker
}

func newUpstream(source string, opts Options) *upstream {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = 1
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = 100 * time.Millisecond
	}
	if opts.Retry.MaxDelay <= 0 {
		opts.Retry.MaxDelay = 2 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &upstream{
		source:  source,
		client:  httpClient,
		timeout: opts.Timeout,
		retry:   opts.Retry,
	}
}

// getJSON fetches rawURL and decodes a 200 body into v. Failures are recorded in metrics.
func (u *upstream) getJSON(ctx context.Context, rawURL string, v any) error {
	body, err := u.fetch(ctx, rawURL)
	if err != nil {
		return u.fail(err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return u.fail(fmt.Errorf("%w: decode %s response: %w", ErrParse, u.source, err))
	}
	return nil
}

// fail records err against the source and returns it unchanged.
func (u *upstream) fail(err error) error {
	observability.UpstreamErrorsTotal.WithLabelValues(u.source, string(CategorizeError(err))).Inc()
	return err
}

func (u *upstream) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < u.retry.Attempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(u.source).Inc()
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
			case <-time.After(u.calculateBackoff(attempt)):
			}
		}

		body, err := u.callWithBreaker(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(ctx, err) {
			return nil, err
		}
	}
	if u.retry.Attempts > 1 {
		return nil, fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return nil, lastErr
}

func (u *upstream) callWithBreaker(ctx context.Context, rawURL string) ([]byte, error) {
	if u.breaker == nil {
		return u.callAPI(ctx, rawURL)
	}
	var (
		body    []byte
		callErr error
	)
	err := u.breaker.Call(ctx, func() error {
		body, callErr = u.callAPI(ctx, rawURL)
		if isRejectedRequest(callErr) {
			// The upstream answered; a rejected request still proves it healthy.
			return nil
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return body, callErr
}

func (u *upstream) callAPI(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		u.observe("error", start)
		return nil, fmt.Errorf("%w: %s request failed: %w", ErrTransport, u.source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	u.observe(statusLabel(resp.StatusCode), start)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response body: %w", ErrTransport, u.source, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func (u *upstream) observe(status string, start time.Time) {
	observability.UpstreamCallsTotal.WithLabelValues(u.source, status).Inc()
	observability.UpstreamDuration.WithLabelValues(u.source, status).Observe(time.Since(start).Seconds())
}

// isRetryable is false once the caller's context is done: a canceled race loser must not retry.
func isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return errors.Is(err, ErrTransport)
}

func (u *upstream) calculateBackoff(attempt int) time.Duration {
	delay := float64(u.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(u.retry.MaxDelay) {
		delay = float64(u.retry.MaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
