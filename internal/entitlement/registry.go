package entitlement

import (
	"log/slog"
	"sync"

	"pawkeeper/internal/external"
	"pawkeeper/internal/types"
)

// Registry hands out per-user Engine instances, constructing them lazily and
// evicting them on logout. It is the composition seam between the HTTP layer
// (which knows users) and the engine (which knows one customer's billing
// identity). A secondary index by provider customer ID serves webhook-driven
// invalidation.
type Registry struct {
	mu         sync.Mutex
	engines    map[string]*Engine
	byCustomer map[string]string // customerID -> userID

	provider external.BillingProvider
	limits   LimitRegistry
	policy   Policy
	clock    types.Clock
	sleep    types.SleepFunc
	logger   *slog.Logger
}

// NewRegistry creates an engine registry with shared collaborators.
func NewRegistry(provider external.BillingProvider, limits LimitRegistry, policy Policy, clock types.Clock, sleep types.SleepFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		engines:    make(map[string]*Engine),
		byCustomer: make(map[string]string),
		provider:   provider,
		limits:     limits,
		policy:     policy,
		clock:      clock,
		sleep:      sleep,
		logger:     logger,
	}
}

// For returns the engine for the given user, creating it on first use.
// An empty customerID means the user has no billing identity; the engine
// resolves such users to the free tier without provider calls.
func (r *Registry) For(userID, customerID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eng, ok := r.engines[userID]; ok {
		return eng
	}
	eng := NewEngine(r.provider, r.limits, customerID, r.policy, r.clock, r.sleep, r.logger)
	r.engines[userID] = eng
	if customerID != "" {
		r.byCustomer[customerID] = userID
	}
	return eng
}

// Evict tears down and removes the user's engine (logout). It returns the
// evicted engine's billing identity ("" when none existed) so callers can
// clear adjacent per-customer state.
func (r *Registry) Evict(userID string) string {
	r.mu.Lock()
	eng, ok := r.engines[userID]
	var customerID string
	if ok {
		customerID = eng.customerID
		delete(r.engines, userID)
		if customerID != "" {
			delete(r.byCustomer, customerID)
		}
	}
	r.mu.Unlock()
	if ok {
		eng.Teardown()
	}
	return customerID
}

// InvalidateCustomer resets the cached entitlement for the user owning the
// given billing identity, if a session exists. Used when a webhook reports a
// subscription change.
func (r *Registry) InvalidateCustomer(customerID string) {
	r.mu.Lock()
	var eng *Engine
	if userID, ok := r.byCustomer[customerID]; ok {
		eng = r.engines[userID]
	}
	r.mu.Unlock()
	if eng != nil {
		eng.Invalidate()
	}
}
