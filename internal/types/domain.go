package types

import "time"

// SubscriptionStatus is an immutable snapshot of a user's entitlement state.
// It is replaced wholesale on every successful refresh and is never persisted
// past the process lifetime; the provider remains the source of truth.
type SubscriptionStatus struct {
	IsActive    bool              `json:"is_active"`
	IsPremium   bool              `json:"is_premium"`
	Tier        PlanTier          `json:"tier"`
	State       SubscriptionState `json:"state"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	TrialEndsAt *time.Time        `json:"trial_ends_at,omitempty"`
	WillRenew   bool              `json:"will_renew"`
	Features    FeatureSet        `json:"features"`
}

// FeatureSet is the set of features the current tier grants.
type FeatureSet map[FeatureID]struct{}

// Has reports whether the set contains the given feature.
func (s FeatureSet) Has(id FeatureID) bool {
	_, ok := s[id]
	return ok
}

// NewFeatureSet builds a FeatureSet from the given IDs.
func NewFeatureSet(ids ...FeatureID) FeatureSet {
	s := make(FeatureSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// FreeStatus returns the synthesized entitlement snapshot for a user with no
// subscription, granting the base feature set.
func FreeStatus(baseFeatures FeatureSet) SubscriptionStatus {
	return SubscriptionStatus{
		IsActive: true,
		Tier:     TierFree,
		State:    StateFree,
		Features: baseFeatures,
	}
}

// CacheEntry wraps the last known SubscriptionStatus with freshness metadata.
// Known is false until the first successful fetch and again after Invalidate;
// callers must treat an unknown entry as "loading", never as free tier.
type CacheEntry struct {
	Status     SubscriptionStatus
	Known      bool
	FetchedAt  time.Time
	RetryCount uint
}

// ResourceLimits maps each bounded resource kind to its maximum count for a
// tier. A zero value means unlimited; enforcement code must honor that.
type ResourceLimits struct {
	MaxPets      int `json:"max_pets"`
	MaxPhotos    int `json:"max_photos"`
	MaxReminders int `json:"max_reminders"`
}

// ForKind returns the limit for the given resource kind and whether the kind
// is known. Unknown kinds report ok=false and must be treated as unlimited.
func (l ResourceLimits) ForKind(kind ResourceKind) (limit int, ok bool) {
	switch kind {
	case ResourcePets:
		return l.MaxPets, true
	case ResourcePhotos:
		return l.MaxPhotos, true
	case ResourceReminders:
		return l.MaxReminders, true
	default:
		return 0, false
	}
}

// AccessDecision is the result of a resource access check.
type AccessDecision struct {
	Allowed         bool   `json:"allowed"`
	Limit           *int   `json:"limit,omitempty"`
	RequiresUpgrade bool   `json:"requires_upgrade"`
	Message         string `json:"message"`
}

// PaymentMethodInfo describes a stored payment instrument.
// At most one method in a user's set has IsDefault set.
type PaymentMethodInfo struct {
	ID        string            `json:"id"`
	Type      PaymentMethodType `json:"type"`
	Brand     string            `json:"brand,omitempty"`
	Last4     string            `json:"last4,omitempty"`
	ExpMonth  int               `json:"exp_month,omitempty"`
	ExpYear   int               `json:"exp_year,omitempty"`
	IsDefault bool              `json:"is_default"`
}

// SubscriptionCreation is the provider's response to a create-subscription
// request. RequiresAction signals a 3-D Secure step-up; ClientSecret is then
// handed to the client SDK to complete it.
type SubscriptionCreation struct {
	SubscriptionID string `json:"subscription_id"`
	ClientSecret   string `json:"client_secret,omitempty"`
	RequiresAction bool   `json:"requires_action"`
}

// Pet is a tracked animal owned by a user. Pets are the primary bounded
// resource in the free tier.
type Pet struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	Name      string     `json:"name" db:"name"`
	Species   string     `json:"species" db:"species"`
	Breed     string     `json:"breed,omitempty" db:"breed"`
	BirthDate *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
