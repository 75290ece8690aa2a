package entitlement

import (
	"context"
	"fmt"
	"time"

	"pawkeeper/internal/types"
)

// resourceNouns names each resource kind in user-facing messages.
var resourceNouns = map[types.ResourceKind]string{
	types.ResourcePets:      "pets",
	types.ResourcePhotos:    "photos",
	types.ResourceReminders: "reminders",
}

// AccessValidator decides whether an action on a bounded resource is
// permitted under the current entitlement. It reads entitlement truth through
// the cache (refreshing when stale) rather than trusting caller-supplied
// flags, and is safe to call on every user action attempt: its only side
// effect is a possible cache refresh.
type AccessValidator struct {
	cache     *StatusCache
	refresher *Refresher
	limits    LimitRegistry
	maxAge    time.Duration
}

// NewAccessValidator creates a validator over the given cache and refresher.
func NewAccessValidator(cache *StatusCache, refresher *Refresher, limits LimitRegistry, maxAge time.Duration) *AccessValidator {
	return &AccessValidator{
		cache:     cache,
		refresher: refresher,
		limits:    limits,
		maxAge:    maxAge,
	}
}

// CheckAccess evaluates whether adding one more of the given resource kind is
// allowed at the current usage count.
//
// When entitlement state cannot be determined at all, access is denied
// (fail closed) with a retryable message and no upgrade prompt — the user
// isn't over a limit, the system just can't prove they're under one. A known
// but stale snapshot is still used if the refresh fails: degrading to
// slightly old truth beats locking out a paying user.
func (v *AccessValidator) CheckAccess(ctx context.Context, kind types.ResourceKind, currentCount int) types.AccessDecision {
	status, ok := v.currentStatus(ctx)
	if !ok {
		return types.AccessDecision{
			Allowed:         false,
			RequiresUpgrade: false,
			Message:         "We couldn't verify your subscription right now. Please try again in a moment.",
		}
	}

	noun := resourceNouns[kind]
	if noun == "" {
		noun = string(kind)
	}

	limits := v.limits.GetLimits(status.Tier)
	limit, known := limits.ForKind(kind)
	if !known || limit == 0 {
		return types.AccessDecision{
			Allowed: true,
			Message: fmt.Sprintf("Your plan includes unlimited %s.", noun),
		}
	}

	if currentCount < limit {
		remaining := limit - currentCount
		return types.AccessDecision{
			Allowed: true,
			Limit:   &limit,
			Message: fmt.Sprintf("You can add %d more %s on your current plan.", remaining, noun),
		}
	}

	return types.AccessDecision{
		Allowed:         false,
		Limit:           &limit,
		RequiresUpgrade: true,
		Message:         fmt.Sprintf("You've reached the limit of %d %s on the %s plan. Upgrade to add more.", limit, noun, planName(status.Tier)),
	}
}

// CanAccessFeature reports whether the current entitlement grants the given
// feature. Unknown entitlement denies (fail closed).
func (v *AccessValidator) CanAccessFeature(ctx context.Context, id types.FeatureID) bool {
	status, ok := v.currentStatus(ctx)
	if !ok {
		return false
	}
	return status.Features.Has(id)
}

// currentStatus returns the entitlement snapshot to decide against,
// refreshing through the cache when stale or unknown.
func (v *AccessValidator) currentStatus(ctx context.Context) (types.SubscriptionStatus, bool) {
	entry := v.cache.Get()
	if entry.Known && !v.cache.IsStale(v.maxAge) {
		return entry.Status, true
	}

	status, err := v.refresher.Refresh(ctx)
	if err == nil {
		return *status, true
	}

	// Refresh failed: fall back to the stale-but-known snapshot if one exists.
	if entry.Known {
		return entry.Status, true
	}
	return types.SubscriptionStatus{}, false
}

// planName renders a tier for user-facing messages.
func planName(tier types.PlanTier) string {
	switch tier {
	case types.TierFree:
		return "Free"
	case types.TierPremium:
		return "Premium"
	case types.TierPro:
		return "Pro"
	default:
		return string(tier)
	}
}
