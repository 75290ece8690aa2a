package entitlement

import (
	"sync"
	"time"

	"pawkeeper/internal/types"
)

// StatusCache holds the last known entitlement snapshot for one customer.
//
// Writes are atomic and wholesale: readers never see a partially updated
// status. Every fetch draws a monotonic sequence number before it starts;
// a completion whose sequence is not newer than the cached one is discarded,
// so a slow fetch can never overwrite the result of a later-issued one.
// Invalidate bumps a generation counter, which additionally discards any
// completion issued before the invalidation — after logout, a prior
// session's fetch can never land.
type StatusCache struct {
	mu         sync.Mutex
	entry      types.CacheEntry
	nextSeq    uint64
	appliedSeq uint64
	generation uint64
	clock      types.Clock
}

// NewStatusCache creates an empty cache in the unknown/loading state.
func NewStatusCache(clock types.Clock) *StatusCache {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &StatusCache{clock: clock}
}

// Get returns the current cache entry. Entry.Known is false until the first
// successful fetch and again after Invalidate.
func (c *StatusCache) Get() types.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

// Begin issues a fetch ticket: the sequence number for ordering and the
// generation the fetch belongs to. Call it before starting a provider fetch.
func (c *StatusCache) Begin() (seq uint64, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	return c.nextSeq, c.generation
}

// Commit installs a fetched status if it is still relevant: the generation
// must match (no intervening Invalidate) and the sequence must be newer than
// the one already applied. Returns whether the status was installed.
// A successful commit resets the retry counter.
func (c *StatusCache) Commit(status types.SubscriptionStatus, seq uint64, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation || seq <= c.appliedSeq {
		return false
	}

	c.appliedSeq = seq
	c.entry = types.CacheEntry{
		Status:    status,
		Known:     true,
		FetchedAt: c.clock.Now(),
	}
	return true
}

// Set replaces the cached status unconditionally ordered after all fetches
// begun so far. Intended for direct writes outside a fetch cycle.
func (c *StatusCache) Set(status types.SubscriptionStatus) {
	seq, generation := c.Begin()
	c.Commit(status, seq, generation)
}

// Invalidate resets the cache to the unknown/loading state. It never falls
// back to the previous value: after logout the prior user's entitlements
// must not leak into a new session.
func (c *StatusCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.appliedSeq = 0
	c.entry = types.CacheEntry{}
}

// IsStale reports whether the cached value is older than maxAge. An unknown
// entry is always stale.
func (c *StatusCache) IsStale(maxAge time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.entry.Known {
		return true
	}
	return c.clock.Now().Sub(c.entry.FetchedAt) > maxAge
}

// NoteRetry increments the retry counter on the current entry. The counter
// survives failed cycles so callers can observe sustained failure.
func (c *StatusCache) NoteRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry.RetryCount++
}

// ResetRetries zeroes the retry counter, distinguishing fresh user intent
// from automatic background retries.
func (c *StatusCache) ResetRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry.RetryCount = 0
}
