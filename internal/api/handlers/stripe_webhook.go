package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pawkeeper/internal/core"
	"pawkeeper/internal/types"
)

// maxWebhookBodySize bounds webhook payloads (256 KB).
const maxWebhookBodySize = 256 << 10

// WebhookVerifier validates a provider webhook payload signature.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// EntitlementInvalidator resets a customer's cached entitlement.
type EntitlementInvalidator interface {
	InvalidateCustomer(customerID string)
}

// WebhookHandler receives billing provider webhooks. The provider does not
// proactively push plan changes into the engine; instead, subscription and
// payment events invalidate the affected customer's cache so the next read
// refetches the truth.
type WebhookHandler struct {
	verifier    WebhookVerifier
	secret      string
	invalidator EntitlementInvalidator
	logger      *slog.Logger
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(verifier WebhookVerifier, secret string, invalidator EntitlementInvalidator, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		verifier:    verifier,
		secret:      secret,
		invalidator: invalidator,
		logger:      logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. It sits outside the
// authenticated group: the signature is the authentication.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/webhooks/stripe", h.Receive)
}

// stripeEvent is the subset of the webhook payload this handler reads.
type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			Customer string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// Receive verifies and processes one webhook delivery. Unknown event types
// are acknowledged without action so the provider does not redeliver them.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload, "failed to read webhook body", err))
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"), h.secret); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "webhook signature verification failed", err))
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload, "webhook payload is not valid JSON", err))
		return
	}

	if h.affectsEntitlement(event.Type) && event.Data.Object.Customer != "" {
		h.invalidator.InvalidateCustomer(event.Data.Object.Customer)
		h.logger.InfoContext(r.Context(), "entitlement cache invalidated by webhook",
			"event_type", event.Type,
			"customer_id", event.Data.Object.Customer,
		)
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

// affectsEntitlement reports whether an event type can change what the
// customer is entitled to.
func (h *WebhookHandler) affectsEntitlement(eventType string) bool {
	switch {
	case strings.HasPrefix(eventType, "customer.subscription."):
		return true
	case eventType == "invoice.payment_failed", eventType == "invoice.paid":
		return true
	default:
		return false
	}
}
