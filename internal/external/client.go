// Package external provides the anti-corruption layer between PawKeeper
// domain logic and the billing provider API. All outbound HTTP calls are
// routed through the BaseClient, which enforces circuit breaking, trace
// propagation, and transport error normalization.
//
// The BaseClient deliberately performs no retries of its own: read retries
// are owned by the entitlement refresher's backoff policy, and user-initiated
// mutations must never be retried blindly. Layering a second retry loop here
// would multiply attempt counts unpredictably.
package external

import (
	"errors"
	"fmt"
	"net/http"

	"pawkeeper/internal/types"

	"github.com/sony/gobreaker/v2"
)

// BaseClient wraps an *http.Client and a circuit breaker to enforce
// consistent resilience behavior on all outbound billing calls.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// NewBaseClient creates a BaseClient with the given http client, circuit
// breaker name, and user agent string.
func NewBaseClient(httpClient *http.Client, breakerName string, userAgent string) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BaseClient{
		client:    httpClient,
		breaker:   cb,
		userAgent: userAgent,
	}
}

// NewBaseClientWithBreaker creates a BaseClient with a caller-provided
// circuit breaker. Useful for testing or sharing a breaker across clients.
func NewBaseClientWithBreaker(httpClient *http.Client, breaker *gobreaker.CircuitBreaker[*http.Response], userAgent string) *BaseClient {
	return &BaseClient{
		client:    httpClient,
		breaker:   breaker,
		userAgent: userAgent,
	}
}

// Do executes a single HTTP attempt with:
//  1. Trace ID injection (X-Request-Id from context)
//  2. User-Agent header injection
//  3. Circuit breaker wrapping (429/5xx count as failures)
//
// The response is returned even when its status counted against the breaker,
// so callers can decode the provider's error body. The caller is responsible
// for closing the response body. A nil response with a non-nil error means
// the request never produced a usable response (network failure, breaker
// open); such errors are left unwrapped in kind so the classifier can
// recognize timeouts and connection failures.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-Request-Id", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		// Treat 5xx and 429 as failures for the circuit breaker.
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; billing provider unavailable",
			err,
		)
	}

	// A failing status still yields the response; the provider client decodes
	// the error body from it.
	if resp != nil {
		return resp, nil
	}

	return nil, err
}
