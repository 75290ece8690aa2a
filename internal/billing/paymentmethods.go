// Package billing provides the payment method manager and subscription
// lifecycle operations over the billing provider. All provider failures
// leave this package classified; raw provider errors never escape it.
package billing

import (
	"context"
	"log/slog"
	"sync"

	"pawkeeper/internal/entitlement"
	"pawkeeper/internal/external"
	"pawkeeper/internal/types"
)

// RemoveResult reports the outcome of removing a payment method.
// RemovedDefault is set when the removed method was the default and other
// methods remain: the manager never silently picks a new default, the caller
// must prompt the user to choose one.
type RemoveResult struct {
	RemovedDefault bool `json:"removed_default"`
	Remaining      int  `json:"remaining"`
}

// PaymentMethodManager maintains an optimistic local view of each customer's
// stored payment instruments, reconciled against the provider on first read.
// Mutations call the provider first and apply locally only on confirmation.
// None of the mutations are auto-retried: retrying a remove after an
// ambiguous timeout could double-apply, so retry policy belongs to the caller.
type PaymentMethodManager struct {
	provider external.BillingProvider
	logger   *slog.Logger

	mu      sync.Mutex
	methods map[string][]types.PaymentMethodInfo
	loaded  map[string]bool
}

// NewPaymentMethodManager creates a manager over the given provider.
func NewPaymentMethodManager(provider external.BillingProvider, logger *slog.Logger) *PaymentMethodManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentMethodManager{
		provider: provider,
		logger:   logger,
		methods:  make(map[string][]types.PaymentMethodInfo),
		loaded:   make(map[string]bool),
	}
}

// List returns the customer's payment methods, fetching from the provider on
// first use and serving the local view afterwards.
func (m *PaymentMethodManager) List(ctx context.Context, customerID string) ([]types.PaymentMethodInfo, error) {
	m.mu.Lock()
	if m.loaded[customerID] {
		out := copyMethods(m.methods[customerID])
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()

	fetched, err := m.provider.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, entitlement.Classify(err)
	}

	m.mu.Lock()
	m.methods[customerID] = fetched
	m.loaded[customerID] = true
	out := copyMethods(fetched)
	m.mu.Unlock()
	return out, nil
}

// Add attaches a tokenized payment method. The first method a customer ever
// adds becomes the default; later additions do not change the default.
func (m *PaymentMethodManager) Add(ctx context.Context, customerID, token string) (*types.PaymentMethodInfo, error) {
	// Make sure the local view exists before deciding "first method ever".
	if _, err := m.List(ctx, customerID); err != nil {
		return nil, err
	}

	info, err := m.provider.AttachPaymentMethod(ctx, customerID, token)
	if err != nil {
		return nil, entitlement.Classify(err)
	}

	m.mu.Lock()
	first := len(m.methods[customerID]) == 0
	m.mu.Unlock()

	if first {
		if err := m.provider.SetDefaultPaymentMethod(ctx, customerID, info.ID); err != nil {
			// The method is attached; only the default flag failed. Surface
			// the method without the flag rather than failing the add.
			m.logger.WarnContext(ctx, "failed to set first payment method as default",
				"customer_id", customerID,
				"payment_method_id", info.ID,
				"error", err,
			)
		} else {
			info.IsDefault = true
		}
	}

	m.mu.Lock()
	m.methods[customerID] = append(m.methods[customerID], *info)
	m.mu.Unlock()
	return info, nil
}

// Remove detaches a payment method. When the removed method was the default
// and others remain, RemovedDefault is set so the caller can prompt the user
// for a new default.
func (m *PaymentMethodManager) Remove(ctx context.Context, customerID, paymentMethodID string) (RemoveResult, error) {
	if _, err := m.List(ctx, customerID); err != nil {
		return RemoveResult{}, err
	}

	m.mu.Lock()
	idx := -1
	for i, pm := range m.methods[customerID] {
		if pm.ID == paymentMethodID {
			idx = i
			break
		}
	}
	m.mu.Unlock()
	if idx < 0 {
		return RemoveResult{}, types.NewAppError(
			types.ErrCodeNotFoundPaymentMethod,
			"payment method not found",
			nil,
		)
	}

	if err := m.provider.DetachPaymentMethod(ctx, paymentMethodID); err != nil {
		return RemoveResult{}, entitlement.Classify(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.methods[customerID]
	var wasDefault bool
	kept := list[:0]
	for _, pm := range list {
		if pm.ID == paymentMethodID {
			wasDefault = pm.IsDefault
			continue
		}
		kept = append(kept, pm)
	}
	m.methods[customerID] = kept

	return RemoveResult{
		RemovedDefault: wasDefault && len(kept) > 0,
		Remaining:      len(kept),
	}, nil
}

// SetDefault marks the given method as the customer's default. On provider
// confirmation the local list flips atomically: exactly one method ends up
// with IsDefault set.
func (m *PaymentMethodManager) SetDefault(ctx context.Context, customerID, paymentMethodID string) error {
	if _, err := m.List(ctx, customerID); err != nil {
		return err
	}

	m.mu.Lock()
	found := false
	for _, pm := range m.methods[customerID] {
		if pm.ID == paymentMethodID {
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return types.NewAppError(
			types.ErrCodeNotFoundPaymentMethod,
			"payment method not found",
			nil,
		)
	}

	if err := m.provider.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		return entitlement.Classify(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.methods[customerID]
	for i := range list {
		list[i].IsDefault = list[i].ID == paymentMethodID
	}
	return nil
}

// Invalidate drops the customer's local state (logout). The next List
// reconciles against the provider.
func (m *PaymentMethodManager) Invalidate(customerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.methods, customerID)
	delete(m.loaded, customerID)
}

func copyMethods(in []types.PaymentMethodInfo) []types.PaymentMethodInfo {
	out := make([]types.PaymentMethodInfo, len(in))
	copy(out, in)
	return out
}
