package entitlement

import (
	"context"
	"log/slog"
	"time"

	"pawkeeper/internal/external"
	"pawkeeper/internal/types"
)

// Policy bundles the tunable knobs of the entitlement engine.
type Policy struct {
	CacheMaxAge time.Duration
	Backoff     BackoffPolicy
}

// DefaultPolicy returns the standard engine policy.
func DefaultPolicy() Policy {
	return Policy{
		CacheMaxAge: 5 * time.Minute,
		Backoff:     DefaultBackoffPolicy(),
	}
}

// Engine composes the cache, refresher, and validator for one customer's
// session. It is constructed explicitly and torn down on logout; there are
// no process-wide singletons. The cache is the only mutable shared state,
// and all of the engine's operations are safe for concurrent use.
type Engine struct {
	customerID string
	cache      *StatusCache
	refresher  *Refresher
	validator  *AccessValidator
}

// NewEngine builds an entitlement engine for one customer.
func NewEngine(provider external.BillingProvider, limits LimitRegistry, customerID string, policy Policy, clock types.Clock, sleep types.SleepFunc, logger *slog.Logger) *Engine {
	cache := NewStatusCache(clock)
	refresher := NewRefresher(provider, cache, customerID, policy.Backoff, sleep, logger)
	validator := NewAccessValidator(cache, refresher, limits, policy.CacheMaxAge)
	return &Engine{
		customerID: customerID,
		cache:      cache,
		refresher:  refresher,
		validator:  validator,
	}
}

// GetEntitlement returns the current entitlement snapshot, fetching from the
// provider when the cache is unknown or stale.
func (e *Engine) GetEntitlement(ctx context.Context) (*types.SubscriptionStatus, error) {
	entry := e.cache.Get()
	if entry.Known && !e.cache.IsStale(e.validator.maxAge) {
		s := entry.Status
		return &s, nil
	}
	return e.refresher.Refresh(ctx)
}

// RefreshEntitlement forces a fetch from the provider. It carries manual
// refresh semantics: the retry counter resets before the first attempt.
func (e *Engine) RefreshEntitlement(ctx context.Context) (*types.SubscriptionStatus, error) {
	return e.refresher.RefreshManual(ctx)
}

// CanAccessFeature reports whether the current entitlement grants the feature.
func (e *Engine) CanAccessFeature(ctx context.Context, id types.FeatureID) bool {
	return e.validator.CanAccessFeature(ctx, id)
}

// CheckResourceAccess evaluates whether an action on a bounded resource is
// permitted at the current usage count.
func (e *Engine) CheckResourceAccess(ctx context.Context, kind types.ResourceKind, currentCount int) types.AccessDecision {
	return e.validator.CheckAccess(ctx, kind, currentCount)
}

// Invalidate resets the cache to the unknown state. The next read refetches.
func (e *Engine) Invalidate() {
	e.cache.Invalidate()
}

// Teardown ends the session. The cache is invalidated so any fetch still in
// flight can never write a prior session's entitlements.
func (e *Engine) Teardown() {
	e.cache.Invalidate()
}
