package entitlement

import (
	"context"
	"log/slog"
	"math"
	"time"

	"pawkeeper/internal/external"
	"pawkeeper/internal/types"

	"golang.org/x/sync/singleflight"
)

// BackoffPolicy drives the retry loop for entitlement fetches. Delays grow as
// Base * Factor^attempt, capped at Max. MaxAttempts counts retries after the
// initial attempt, so MaxAttempts=3 yields at most 4 provider calls.
type BackoffPolicy struct {
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoffPolicy returns the standard refresh policy.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:        1 * time.Second,
		Factor:      2,
		Max:         30 * time.Second,
		MaxAttempts: 3,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(attempt)))
	if d > p.Max || d < 0 {
		return p.Max
	}
	return d
}

// Refresher fetches entitlement state from the billing provider with bounded
// retries and keeps the StatusCache current.
//
// Concurrency semantics:
//   - At most one fetch is in flight per customer; concurrent Refresh calls
//     join the in-flight result instead of issuing duplicate provider calls.
//   - A refresh failure never clears a previously good cache entry. A
//     stale-but-correct entitlement is safer than treating a paying user as
//     free during a transient outage.
//   - Completions are ordered by the cache's fetch sequence; a slow fetch
//     cannot overwrite a later-issued one, and nothing lands after Invalidate.
type Refresher struct {
	provider   external.BillingProvider
	cache      *StatusCache
	customerID string
	policy     BackoffPolicy
	group      singleflight.Group
	sleep      types.SleepFunc
	logger     *slog.Logger
}

// NewRefresher creates a Refresher for one customer's cache. A nil sleep
// defaults to time.Sleep; tests inject their own to avoid real delays.
func NewRefresher(provider external.BillingProvider, cache *StatusCache, customerID string, policy BackoffPolicy, sleep types.SleepFunc, logger *slog.Logger) *Refresher {
	if sleep == nil {
		sleep = time.Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		provider:   provider,
		cache:      cache,
		customerID: customerID,
		policy:     policy,
		sleep:      sleep,
		logger:     logger,
	}
}

// Refresh fetches the current entitlement state, retrying retryable failures
// per the backoff policy. Callers arriving while a fetch is in flight share
// its result.
func (r *Refresher) Refresh(ctx context.Context) (*types.SubscriptionStatus, error) {
	v, err, _ := r.group.Do(r.customerID, func() (any, error) {
		return r.refreshCycle(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.SubscriptionStatus), nil
}

// RefreshManual is a user-triggered refresh. It resets the retry counter
// before the first attempt, distinguishing fresh user intent from automatic
// background retries.
func (r *Refresher) RefreshManual(ctx context.Context) (*types.SubscriptionStatus, error) {
	r.cache.ResetRetries()
	return r.Refresh(ctx)
}

// refreshCycle runs one full refresh state machine:
// Idle -> Fetching -> {Success, RetryableFailure -> Backoff -> Fetching,
// TerminalFailure}.
func (r *Refresher) refreshCycle(ctx context.Context) (*types.SubscriptionStatus, error) {
	seq, generation := r.cache.Begin()

	// No billing identity means the user was never a customer: free tier,
	// no provider round trip.
	if r.customerID == "" {
		status := types.FreeStatus(FeaturesForTier(types.TierFree))
		r.cache.Commit(status, seq, generation)
		return &status, nil
	}

	var lastErr *types.PaymentError
	for attempt := 0; ; attempt++ {
		status, err := r.provider.GetSubscriptionStatus(ctx, r.customerID)
		if err == nil {
			if !r.cache.Commit(*status, seq, generation) {
				// A later-issued fetch or an invalidation superseded this
				// completion. Prefer the cache's current truth when it has one.
				if entry := r.cache.Get(); entry.Known {
					s := entry.Status
					return &s, nil
				}
			}
			return status, nil
		}

		lastErr = Classify(err)

		if !lastErr.Retryable || attempt >= r.policy.MaxAttempts {
			// Terminal: surface the error and leave the cache at its
			// last-known value.
			r.logger.WarnContext(ctx, "entitlement refresh failed",
				"customer_id", r.customerID,
				"attempts", attempt+1,
				"kind", lastErr.Kind,
				"code", lastErr.Code,
			)
			return nil, lastErr
		}

		r.cache.NoteRetry()
		r.sleep(r.policy.Delay(attempt))

		// Teardown during backoff ends the cycle without touching the cache.
		if ctx.Err() != nil {
			return nil, Classify(ctx.Err())
		}
	}
}
