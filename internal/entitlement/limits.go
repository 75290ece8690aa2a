package entitlement

import "pawkeeper/internal/types"

// LimitRegistry defines the authoritative resource limits for each tier.
// This is the single source of truth for what each plan allows.
type LimitRegistry interface {
	// GetLimits returns the resource limits for the given plan tier.
	// Unknown tiers return the most restrictive (Free) limits to fail safely.
	GetLimits(tier types.PlanTier) types.ResourceLimits
}

// staticLimitRegistry is a compile-time limit registry backed by an in-memory
// map. It is the standard implementation for production use.
type staticLimitRegistry struct {
	limits map[types.PlanTier]types.ResourceLimits
}

// tierDefaults defines the hardcoded per-tier limits.
// A value of 0 means unlimited; enforcement code must treat 0 as no limit.
var tierDefaults = map[types.PlanTier]types.ResourceLimits{
	types.TierFree: {
		MaxPets:      1,
		MaxPhotos:    10,
		MaxReminders: 3,
	},
	types.TierPremium: {
		MaxPets:      5,
		MaxPhotos:    500,
		MaxReminders: 50,
	},
	types.TierPro: {
		MaxPets:      0, // unlimited
		MaxPhotos:    0, // unlimited
		MaxReminders: 0, // unlimited
	},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = tierDefaults[types.TierFree]

// tierFeatures defines which features each tier grants.
var tierFeatures = map[types.PlanTier][]types.FeatureID{
	types.TierFree: {
		types.FeatureBasicTracking,
	},
	types.TierPremium: {
		types.FeatureBasicTracking,
		types.FeatureHealthRecords,
		types.FeaturePhotoGallery,
	},
	types.TierPro: {
		types.FeatureBasicTracking,
		types.FeatureHealthRecords,
		types.FeaturePhotoGallery,
		types.FeatureVetExport,
		types.FeatureMultiCaretaker,
	},
}

// NewStaticLimitRegistry returns a LimitRegistry backed by the hardcoded
// tier limits. No database or external service is required.
func NewStaticLimitRegistry() LimitRegistry {
	// Copy the defaults so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]types.ResourceLimits, len(tierDefaults))
	for k, v := range tierDefaults {
		m[k] = v
	}
	return &staticLimitRegistry{limits: m}
}

// GetLimits returns the resource limits for the given plan tier.
// If the tier is unknown, it returns the Free tier limits as a safe default.
func (r *staticLimitRegistry) GetLimits(tier types.PlanTier) types.ResourceLimits {
	if limits, ok := r.limits[tier]; ok {
		return limits
	}
	return freeLimits
}

// FeaturesForTier returns the feature set the given tier grants. Unknown
// tiers get the Free feature set.
func FeaturesForTier(tier types.PlanTier) types.FeatureSet {
	ids, ok := tierFeatures[tier]
	if !ok {
		ids = tierFeatures[types.TierFree]
	}
	return types.NewFeatureSet(ids...)
}

// BaseFeatures is the feature set every user has regardless of subscription.
func BaseFeatures() types.FeatureSet {
	return FeaturesForTier(types.TierFree)
}
