package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pawkeeper/internal/billing"
	"pawkeeper/internal/core"
	"pawkeeper/internal/types"
)

// PaymentMethods abstracts the payment method manager.
type PaymentMethods interface {
	List(ctx context.Context, customerID string) ([]types.PaymentMethodInfo, error)
	Add(ctx context.Context, customerID, token string) (*types.PaymentMethodInfo, error)
	Remove(ctx context.Context, customerID, paymentMethodID string) (billing.RemoveResult, error)
	SetDefault(ctx context.Context, customerID, paymentMethodID string) error
}

// Subscriptions abstracts the subscription lifecycle service.
type Subscriptions interface {
	Create(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error)
	Cancel(ctx context.Context, customerID string, immediately bool) error
	Reactivate(ctx context.Context, customerID string) error
}

// BillingHandler serves payment method CRUD and subscription lifecycle
// operations. None of these mutations are retried server-side; a failed
// mutation surfaces its classified error and the client decides.
type BillingHandler struct {
	methods   PaymentMethods
	subs      Subscriptions
	validator *core.Validator
}

// NewBillingHandler creates the handler.
func NewBillingHandler(methods PaymentMethods, subs Subscriptions, validator *core.Validator) *BillingHandler {
	return &BillingHandler{methods: methods, subs: subs, validator: validator}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/billing/payment-methods", h.ListPaymentMethods)
	r.Post("/v1/billing/payment-methods", h.AddPaymentMethod)
	r.Delete("/v1/billing/payment-methods/{methodID}", h.RemovePaymentMethod)
	r.Post("/v1/billing/payment-methods/{methodID}/default", h.SetDefaultPaymentMethod)
	r.Post("/v1/billing/subscription", h.CreateSubscription)
	r.Post("/v1/billing/subscription/cancel", h.CancelSubscription)
	r.Post("/v1/billing/subscription/reactivate", h.ReactivateSubscription)
}

type addPaymentMethodRequest struct {
	Token string `json:"token" validate:"required"`
}

type createSubscriptionRequest struct {
	PlanID          string `json:"plan_id" validate:"required"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

type cancelSubscriptionRequest struct {
	Immediately bool `json:"immediately"`
}

// ListPaymentMethods returns the customer's stored payment instruments.
func (h *BillingHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	methods, err := h.methods.List(r.Context(), customerID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, methods)
}

// AddPaymentMethod attaches a tokenized payment method.
func (h *BillingHandler) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}

	var req addPaymentMethodRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	info, err := h.methods.Add(r.Context(), customerID, req.Token)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, info)
}

// RemovePaymentMethod detaches a payment method. The response carries
// removed_default so the client can prompt for a new default when needed.
func (h *BillingHandler) RemovePaymentMethod(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	result, err := h.methods.Remove(r.Context(), customerID, chi.URLParam(r, "methodID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, result)
}

// SetDefaultPaymentMethod marks a payment method as the customer's default.
func (h *BillingHandler) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	if err := h.methods.SetDefault(r.Context(), customerID, chi.URLParam(r, "methodID")); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// CreateSubscription starts a subscription. A requires_action response means
// the client must complete the provider's step-up flow.
func (h *BillingHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	creation, err := h.subs.Create(r.Context(), customerID, req.PlanID, req.PaymentMethodID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, creation)
}

// CancelSubscription cancels at period end unless immediately is set.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}

	var req cancelSubscriptionRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.subs.Cancel(r.Context(), customerID, req.Immediately); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// ReactivateSubscription undoes a pending at-period-end cancellation.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	if err := h.subs.Reactivate(r.Context(), customerID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// customer resolves the actor's billing identity. Billing operations require
// one; entitlement reads do not (free users have no customer record).
func (h *BillingHandler) customer(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "request has no authenticated identity", nil))
		return "", false
	}
	if actor.CustomerID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictSubscriptionState,
			"user has no billing profile",
			nil,
		))
		return "", false
	}
	return actor.CustomerID, true
}
