package core

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"pawkeeper/internal/types"
)

// Validator wraps go-playground/validator and translates its failures into
// the standard AppError shape so handlers never leak library error text.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with the standard tag set.
func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates the given struct and returns a field-detailed AppError on
// failure.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidField,
			"request validation failed",
			err,
			details,
		)
	}
	return types.NewAppError(types.ErrCodeValidationBadPayload, "request could not be validated", err)
}
