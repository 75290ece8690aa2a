package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"pawkeeper/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a request body (1 MB).
const maxRequestBodySize = 1 << 20

// APIResponse is the standard envelope for all successful API responses.
type APIResponse struct {
	Data any `json:"data,omitempty"`
}

// APIErrorResponse is the standard envelope for all error API responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned to clients.
type ErrorDetail struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	DeclineCode string         `json:"decline_code,omitempty"`
	StepUp      bool           `json:"requires_authentication,omitempty"`
	RequestID   string         `json:"request_id"`
}

// JSON writes a JSON response with the given status code and data wrapped in
// the standard envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Data: data})
}

// Error writes a standardized error response. PaymentErrors keep their
// decline code and step-up flag so clients can branch without parsing
// messages; AppErrors map through their HTTP status; anything else becomes
// an opaque 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	if pe, ok := types.AsPaymentError(err); ok {
		status := http.StatusPaymentRequired
		if pe.Kind == types.KindValidationError {
			status = http.StatusBadRequest
		}
		if pe.Kind == types.KindAPIError {
			status = http.StatusBadGateway
		}
		writeError(w, status, ErrorDetail{
			Code:        string(pe.Kind),
			Message:     pe.Message,
			DeclineCode: pe.DeclineCode,
			StepUp:      pe.Kind == types.KindAuthenticationError,
			RequestID:   requestID,
		})
		return
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		writeError(w, appErr.HTTPStatus(), ErrorDetail{
			Code:      string(appErr.Code),
			Message:   appErr.Message,
			Details:   appErr.Details,
			RequestID: requestID,
		})
		return
	}

	writeError(w, http.StatusInternalServerError, ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: requestID,
	})
}

func writeError(w http.ResponseWriter, status int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIErrorResponse{Error: detail})
}

// DecodeJSON reads and decodes a JSON request body into dst, enforcing the
// body size limit and rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return types.NewAppError(types.ErrCodeValidationBadPayload, "request body is empty", nil)
		}
		if strings.Contains(err.Error(), "unknown field") {
			return types.NewAppError(types.ErrCodeValidationBadPayload, "request body contains unknown fields", err)
		}
		return types.NewAppError(types.ErrCodeValidationBadPayload, "request body is not valid JSON", err)
	}
	return nil
}
