package types

import "fmt"

// ProviderError carries a raw billing provider failure exactly as received,
// before classification. Only the classifier may interpret it; no other
// component branches on provider codes.
type ProviderError struct {
	Code        string
	Message     string
	DeclineCode string
	HTTPStatus  int
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("provider error %s (decline: %s, http %d): %s", e.Code, e.DeclineCode, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("provider error %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}
