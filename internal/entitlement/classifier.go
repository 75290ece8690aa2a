// Package entitlement implements the subscription access control engine:
// error classification, the entitlement status cache, the retrying refresher,
// and resource access validation. It is the single source of truth for "may
// this user do this" decisions; callers never interpret provider errors or
// tier limits themselves.
package entitlement

import (
	"context"
	"errors"
	"net"

	"pawkeeper/internal/types"
)

// kindByCode maps provider error codes into the closed error taxonomy.
// Unknown codes default to KindAPIError.
var kindByCode = map[string]types.PaymentErrorKind{
	// Card problems: the user must change payment instrument.
	"card_declined":        types.KindCardError,
	"expired_card":         types.KindCardError,
	"incorrect_cvc":        types.KindCardError,
	"incorrect_number":     types.KindCardError,
	"invalid_cvc":          types.KindCardError,
	"invalid_number":       types.KindCardError,
	"invalid_expiry_month": types.KindCardError,
	"invalid_expiry_year":  types.KindCardError,
	"insufficient_funds":   types.KindCardError,
	"processing_error":     types.KindCardError,

	// Malformed input caught by the provider.
	"parameter_missing":       types.KindValidationError,
	"parameter_invalid_empty": types.KindValidationError,
	"parameter_unknown":       types.KindValidationError,
	"email_invalid":           types.KindValidationError,
	"invalid_request_error":   types.KindValidationError,

	// Step-up (3-D Secure) required.
	"authentication_required":               types.KindAuthenticationError,
	"setup_intent_authentication_failure":   types.KindAuthenticationError,
	"payment_intent_authentication_failure": types.KindAuthenticationError,
}

// retryableCodes is the fixed allow-list of provider codes worth retrying.
// Card declines and bad card data are deliberately absent: retrying them
// wastes a user-facing attempt and risks provider-side fraud flags.
var retryableCodes = map[string]bool{
	"rate_limit":              true,
	"lock_timeout":            true,
	"processing_error":        true,
	"authentication_required": true,
	"api_connection_error":    true,
	"api_error":               true,
}

// userMessageByKind carries the human-readable fallback per kind. The raw
// provider code is never shown to an end user.
var userMessageByKind = map[types.PaymentErrorKind]string{
	types.KindCardError:           "Your payment method was declined. Try a different payment method.",
	types.KindValidationError:     "Some payment details look invalid. Check them and try again.",
	types.KindAuthenticationError: "Your bank needs to verify this payment before it can go through.",
	types.KindAPIError:            "We couldn't reach the billing service. Please try again in a moment.",
}

// Classify maps any raw provider or transport failure into a PaymentError.
// It is a pure function: the same input always yields the same output, and
// already-classified errors pass through unchanged.
func Classify(err error) *types.PaymentError {
	if pe, ok := types.AsPaymentError(err); ok {
		return pe
	}

	var provErr *types.ProviderError
	if errors.As(err, &provErr) {
		kind, known := kindByCode[provErr.Code]
		if !known {
			kind = types.KindAPIError
		}
		return &types.PaymentError{
			Code:        provErr.Code,
			Message:     userMessageByKind[kind],
			Kind:        kind,
			DeclineCode: provErr.DeclineCode,
			Retryable:   retryableProvider(provErr),
		}
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		// Infrastructure errors (circuit breaker open, missing subscription)
		// are API-kind; only upstream availability problems are retryable.
		return &types.PaymentError{
			Code:      string(appErr.Code),
			Message:   userMessageByKind[types.KindAPIError],
			Kind:      types.KindAPIError,
			Retryable: appErr.Code == types.ErrCodeUpstreamRateLimited || appErr.Code == types.ErrCodeUpstreamTimeout,
		}
	}

	// Transport-level failures: timeouts and connection errors are retryable
	// network conditions, including a provider call hitting its deadline.
	if isNetworkError(err) {
		return &types.PaymentError{
			Code:      "network_error",
			Message:   userMessageByKind[types.KindAPIError],
			Kind:      types.KindAPIError,
			Retryable: true,
		}
	}

	// Everything else (decode failures, unexpected states).
	return &types.PaymentError{
		Code:      "unknown_error",
		Message:   userMessageByKind[types.KindAPIError],
		Kind:      types.KindAPIError,
		Retryable: false,
	}
}

// IsRetryable reports whether retrying the failed operation could succeed
// without external changes.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

// retryableProvider applies the allow-list plus HTTP-level signals.
func retryableProvider(provErr *types.ProviderError) bool {
	if retryableCodes[provErr.Code] {
		return true
	}
	return provErr.HTTPStatus == 429 || provErr.HTTPStatus >= 500
}

// isNetworkError recognizes transport failures: context deadlines, net
// timeouts, and connection-level errors.
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
