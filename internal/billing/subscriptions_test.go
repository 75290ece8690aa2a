package billing

import (
	"context"
	"sync"
	"testing"

	"pawkeeper/internal/types"
)

type invalidatorSpy struct {
	mu        sync.Mutex
	customers []string
}

func (s *invalidatorSpy) InvalidateCustomer(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = append(s.customers, customerID)
}

func (s *invalidatorSpy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers)
}

func TestSubscriptionCreate_InvalidatesEntitlement(t *testing.T) {
	provider := &billingMock{
		CreateSubscriptionFunc: func(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error) {
			return &types.SubscriptionCreation{SubscriptionID: "sub_1"}, nil
		},
	}
	spy := &invalidatorSpy{}
	svc := NewSubscriptionService(provider, spy, nil)

	creation, err := svc.Create(context.Background(), testCustomer, "price_premium", "pm_1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if creation.SubscriptionID != "sub_1" {
		t.Errorf("SubscriptionID = %s", creation.SubscriptionID)
	}
	if spy.count() != 1 {
		t.Error("a successful create must invalidate the cached entitlement")
	}
}

func TestSubscriptionCreate_RequiresAction(t *testing.T) {
	provider := &billingMock{
		CreateSubscriptionFunc: func(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error) {
			return &types.SubscriptionCreation{
				SubscriptionID: "sub_1",
				ClientSecret:   "pi_secret",
				RequiresAction: true,
			}, nil
		},
	}
	svc := NewSubscriptionService(provider, &invalidatorSpy{}, nil)

	creation, err := svc.Create(context.Background(), testCustomer, "price_premium", "pm_1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !creation.RequiresAction || creation.ClientSecret == "" {
		t.Errorf("creation = %+v, want step-up with client secret", creation)
	}
}

func TestSubscriptionCreate_DeclineClassifiedNoInvalidate(t *testing.T) {
	provider := &billingMock{
		CreateSubscriptionFunc: func(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error) {
			return nil, &types.ProviderError{Code: "card_declined", DeclineCode: "insufficient_funds", HTTPStatus: 402}
		},
	}
	spy := &invalidatorSpy{}
	svc := NewSubscriptionService(provider, spy, nil)

	_, err := svc.Create(context.Background(), testCustomer, "price_premium", "pm_1")
	pe, ok := types.AsPaymentError(err)
	if !ok {
		t.Fatalf("error = %T, want *types.PaymentError", err)
	}
	if pe.Kind != types.KindCardError || pe.DeclineCode != "insufficient_funds" {
		t.Errorf("classified error = %+v", pe)
	}
	if spy.count() != 0 {
		t.Error("a failed create must not invalidate the entitlement")
	}
}

func TestSubscriptionCancelAndReactivate(t *testing.T) {
	var canceledImmediately *bool
	provider := &billingMock{
		CancelSubscriptionFunc: func(ctx context.Context, customerID string, immediately bool) error {
			canceledImmediately = &immediately
			return nil
		},
		ReactivateSubscriptionFunc: func(ctx context.Context, customerID string) error {
			return nil
		},
	}
	spy := &invalidatorSpy{}
	svc := NewSubscriptionService(provider, spy, nil)
	ctx := context.Background()

	if err := svc.Cancel(ctx, testCustomer, false); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if canceledImmediately == nil || *canceledImmediately {
		t.Error("Cancel(false) must cancel at period end")
	}

	if err := svc.Reactivate(ctx, testCustomer); err != nil {
		t.Fatalf("Reactivate() error = %v", err)
	}
	if spy.count() != 2 {
		t.Errorf("invalidations = %d, want 2", spy.count())
	}
}
