package schema

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/ficha/internal/validation"
)

// ErrInvalidSchema indicates a schema violates one or more structural invariants.
var ErrInvalidSchema = errors.New("invalid schema")

// ValidationErrors collects every invariant violation found in a schema.
type ValidationErrors struct {
	Errors []validation.ValidationError `json:"errors"`
}

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return ErrInvalidSchema.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrInvalidSchema, e.Errors[0].Error())
	default:
		return fmt.Sprintf("%s: %s (and %d more)", ErrInvalidSchema, e.Errors[0].Error(), len(e.Errors)-1)
	}
}

// Unwrap returns ErrInvalidSchema for errors.Is() compatibility.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidSchema
}
