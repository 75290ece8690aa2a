package billing

import (
	"context"
	"log/slog"

	"pawkeeper/internal/entitlement"
	"pawkeeper/internal/external"
	"pawkeeper/internal/types"
)

// EntitlementInvalidator resets a customer's cached entitlement so the next
// read refetches. Implemented by the entitlement registry.
type EntitlementInvalidator interface {
	InvalidateCustomer(customerID string)
}

// SubscriptionService exposes the subscription lifecycle operations. Each
// successful mutation invalidates the customer's entitlement cache: the
// provider is the source of truth and the local snapshot is now behind it.
// Mutations are not auto-retried here; the refresh path owns retry policy
// for reads, and blind mutation retries are riskier than stale reads.
type SubscriptionService struct {
	provider    external.BillingProvider
	invalidator EntitlementInvalidator
	logger      *slog.Logger
}

// NewSubscriptionService creates a subscription lifecycle service.
func NewSubscriptionService(provider external.BillingProvider, invalidator EntitlementInvalidator, logger *slog.Logger) *SubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		provider:    provider,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Create starts a subscription on the given plan with the given payment
// method. A RequiresAction result means the caller must run the provider's
// step-up flow with the returned client secret before the subscription is
// live.
func (s *SubscriptionService) Create(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error) {
	creation, err := s.provider.CreateSubscription(ctx, customerID, planID, paymentMethodID)
	if err != nil {
		return nil, entitlement.Classify(err)
	}
	s.invalidator.InvalidateCustomer(customerID)
	return creation, nil
}

// Cancel cancels the customer's subscription, immediately or at period end.
func (s *SubscriptionService) Cancel(ctx context.Context, customerID string, immediately bool) error {
	if err := s.provider.CancelSubscription(ctx, customerID, immediately); err != nil {
		return entitlement.Classify(err)
	}
	s.invalidator.InvalidateCustomer(customerID)
	return nil
}

// Reactivate undoes a pending at-period-end cancellation.
func (s *SubscriptionService) Reactivate(ctx context.Context, customerID string) error {
	if err := s.provider.ReactivateSubscription(ctx, customerID); err != nil {
		return entitlement.Classify(err)
	}
	s.invalidator.InvalidateCustomer(customerID)
	return nil
}
