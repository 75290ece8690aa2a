package external

import (
	"context"

	"pawkeeper/internal/types"
)

// BillingProvider abstracts the payment provider collaborator. The concrete
// wire protocol is an implementation detail of this package; everything above
// it sees only domain types and raw provider errors awaiting classification.
type BillingProvider interface {
	// GetSubscriptionStatus fetches the current entitlement truth for the
	// customer. Customers with no subscription resolve to the free tier.
	GetSubscriptionStatus(ctx context.Context, customerID string) (*types.SubscriptionStatus, error)

	// CreateSubscription starts a subscription on the given plan, paying with
	// the given payment method.
	CreateSubscription(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error)

	// CancelSubscription cancels the customer's subscription, either at period
	// end or immediately.
	CancelSubscription(ctx context.Context, customerID string, immediately bool) error

	// ReactivateSubscription undoes a pending at-period-end cancellation.
	ReactivateSubscription(ctx context.Context, customerID string) error

	// ListPaymentMethods returns the customer's stored payment instruments.
	ListPaymentMethods(ctx context.Context, customerID string) ([]types.PaymentMethodInfo, error)

	// AttachPaymentMethod attaches a tokenized payment method to the customer.
	AttachPaymentMethod(ctx context.Context, customerID, token string) (*types.PaymentMethodInfo, error)

	// DetachPaymentMethod removes a stored payment method.
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error

	// SetDefaultPaymentMethod marks the given method as the customer's
	// default for invoices.
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
}
