package builder

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/ficha/internal/validation"
)

var (
	// ErrInvalidFieldPatch indicates a field update would violate a field invariant.
	ErrInvalidFieldPatch = errors.New("invalid field patch")

	// ErrSelfReferentialRule indicates a rule whose source is its own target.
	ErrSelfReferentialRule = errors.New("self-referential rule")

	// ErrInvalidRule indicates a rule with an unknown operator or action, or a
	// source field that does not exist.
	ErrInvalidRule = errors.New("invalid logic rule")

	// ErrRuleNotFound indicates a rule index outside the field's logic list.
	ErrRuleNotFound = errors.New("logic rule not found")

	// ErrPageNotFound indicates the page id does not exist in the schema.
	ErrPageNotFound = errors.New("page not found")

	// ErrSectionNotFound indicates the section id does not exist on the page.
	ErrSectionNotFound = errors.New("section not found")

	// ErrFieldNotFound indicates the field id does not exist in the schema.
	ErrFieldNotFound = errors.New("field not found")

	// ErrLastPage indicates an attempt to remove the only page of a schema.
	ErrLastPage = errors.New("cannot remove the last page")

	// ErrLastSection indicates an attempt to remove the only section of a page.
	ErrLastSection = errors.New("cannot remove the last section of a page")

	// ErrInvalidOrder indicates a reorder that is not a permutation of the
	// current ids, or a move to an out-of-range position.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrUnknownOperation indicates an operation envelope with an unknown op.
	ErrUnknownOperation = errors.New("unknown operation")
)

// PatchError lists the field invariants a rejected UpdateField would violate.
type PatchError struct {
	FieldID string                       `json:"fieldId"`
	Errors  []validation.ValidationError `json:"errors"`
}

// Error implements the error interface.
func (e *PatchError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s for %q", ErrInvalidFieldPatch, e.FieldID)
	}
	return fmt.Sprintf("%s for %q: %s", ErrInvalidFieldPatch, e.FieldID, e.Errors[0].Error())
}

// Unwrap returns ErrInvalidFieldPatch for errors.Is() compatibility.
func (e *PatchError) Unwrap() error {
	return ErrInvalidFieldPatch
}

func notFound(sentinel error, id string) error {
	return fmt.Errorf("%w: %q", sentinel, id)
}
