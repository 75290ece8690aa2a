package entitlement

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pawkeeper/internal/types"
)

// mockProvider implements external.BillingProvider with overridable function
// fields and call counters.
type mockProvider struct {
	statusCalls atomic.Int64

	GetSubscriptionStatusFunc   func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error)
	CreateSubscriptionFunc      func(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error)
	CancelSubscriptionFunc      func(ctx context.Context, customerID string, immediately bool) error
	ReactivateSubscriptionFunc  func(ctx context.Context, customerID string) error
	ListPaymentMethodsFunc      func(ctx context.Context, customerID string) ([]types.PaymentMethodInfo, error)
	AttachPaymentMethodFunc     func(ctx context.Context, customerID, token string) (*types.PaymentMethodInfo, error)
	DetachPaymentMethodFunc     func(ctx context.Context, paymentMethodID string) error
	SetDefaultPaymentMethodFunc func(ctx context.Context, customerID, paymentMethodID string) error
}

func (m *mockProvider) GetSubscriptionStatus(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
	m.statusCalls.Add(1)
	return m.GetSubscriptionStatusFunc(ctx, customerID)
}

func (m *mockProvider) CreateSubscription(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error) {
	return m.CreateSubscriptionFunc(ctx, customerID, planID, paymentMethodID)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, customerID string, immediately bool) error {
	return m.CancelSubscriptionFunc(ctx, customerID, immediately)
}

func (m *mockProvider) ReactivateSubscription(ctx context.Context, customerID string) error {
	return m.ReactivateSubscriptionFunc(ctx, customerID)
}

func (m *mockProvider) ListPaymentMethods(ctx context.Context, customerID string) ([]types.PaymentMethodInfo, error) {
	return m.ListPaymentMethodsFunc(ctx, customerID)
}

func (m *mockProvider) AttachPaymentMethod(ctx context.Context, customerID, token string) (*types.PaymentMethodInfo, error) {
	return m.AttachPaymentMethodFunc(ctx, customerID, token)
}

func (m *mockProvider) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return m.DetachPaymentMethodFunc(ctx, paymentMethodID)
}

func (m *mockProvider) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return m.SetDefaultPaymentMethodFunc(ctx, customerID, paymentMethodID)
}

// fakeClock is a manually advanced types.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sleepRecorder captures backoff delays without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func premiumStatus() *types.SubscriptionStatus {
	return &types.SubscriptionStatus{
		IsActive:  true,
		IsPremium: true,
		Tier:      types.TierPremium,
		State:     types.StateActive,
		WillRenew: true,
		Features:  FeaturesForTier(types.TierPremium),
	}
}
