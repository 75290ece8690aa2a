package types

// PlanTier identifies the subscription level for a user.
type PlanTier string

const (
	TierFree    PlanTier = "free"
	TierPremium PlanTier = "premium"
	TierPro     PlanTier = "pro"
)

// SubscriptionState mirrors the provider-side subscription lifecycle state.
// StateFree is synthesized locally for users with no subscription at all.
type SubscriptionState string

const (
	StateActive   SubscriptionState = "active"
	StateTrialing SubscriptionState = "trialing"
	StatePastDue  SubscriptionState = "past_due"
	StateCanceled SubscriptionState = "canceled"
	StateUnpaid   SubscriptionState = "unpaid"
	StateFree     SubscriptionState = "free"
)

// PaymentMethodType identifies the kind of stored payment instrument.
type PaymentMethodType string

const (
	MethodCard      PaymentMethodType = "card"
	MethodApplePay  PaymentMethodType = "apple_pay"
	MethodGooglePay PaymentMethodType = "google_pay"
)

// ResourceKind names a bounded resource whose usage is limited per tier.
type ResourceKind string

const (
	ResourcePets      ResourceKind = "pets"
	ResourcePhotos    ResourceKind = "photos"
	ResourceReminders ResourceKind = "reminders"
)

// FeatureID names a gated product feature.
type FeatureID string

const (
	FeatureBasicTracking  FeatureID = "basic_tracking"
	FeatureHealthRecords  FeatureID = "health_records"
	FeaturePhotoGallery   FeatureID = "photo_gallery"
	FeatureVetExport      FeatureID = "vet_export"
	FeatureMultiCaretaker FeatureID = "multi_caretaker"
)

// PaymentErrorKind is the closed taxonomy every provider failure maps into.
type PaymentErrorKind string

const (
	KindCardError           PaymentErrorKind = "card_error"
	KindValidationError     PaymentErrorKind = "validation_error"
	KindAuthenticationError PaymentErrorKind = "authentication_error"
	KindAPIError            PaymentErrorKind = "api_error"
)

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)
