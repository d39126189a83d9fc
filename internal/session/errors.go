package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/ficha/internal/catalog"
)

var (
	// ErrTypeMismatch indicates a value was rejected for its field's type,
	// options or bounds. The session stays Ready.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrIncompleteForm indicates submit found visible required fields without a value.
	ErrIncompleteForm = errors.New("incomplete form")

	// ErrSessionClosed indicates a call into a session that has reached Done.
	ErrSessionClosed = errors.New("session closed")

	// ErrSubmitInProgress rejects a submit while another is outstanding.
	ErrSubmitInProgress = fmt.Errorf("%w: submit in progress", ErrSessionClosed)

	// ErrNotReady indicates the session is loading or failed and holds no form.
	ErrNotReady = errors.New("session not ready")

	// ErrNothingToRetry indicates Retry was called outside the Error state.
	ErrNothingToRetry = errors.New("nothing to retry")

	// ErrSchemaMismatch indicates an edit-mode response belongs to another schema.
	ErrSchemaMismatch = errors.New("response belongs to a different schema")

	// ErrFieldNotFound indicates SetValue named a field the schema does not have.
	ErrFieldNotFound = errors.New("field not found")

	// ErrSessionNotFound indicates the Manager holds no live session with the id.
	ErrSessionNotFound = errors.New("session not found")
)

// TypeMismatchError describes a rejected value.
type TypeMismatchError struct {
	FieldID string
	Type    catalog.FieldType
	Err     error
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %q (%s): %v", e.FieldID, e.Type, e.Err)
}

// Unwrap returns ErrTypeMismatch and the underlying cause.
func (e *TypeMismatchError) Unwrap() []error {
	return []error{ErrTypeMismatch, e.Err}
}

// IncompleteFormError lists the visible required fields left empty, in schema order.
type IncompleteFormError struct {
	FieldIDs []string
}

// Error implements the error interface.
func (e *IncompleteFormError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrIncompleteForm, strings.Join(e.FieldIDs, ", "))
}

// Unwrap returns ErrIncompleteForm for errors.Is() compatibility.
func (e *IncompleteFormError) Unwrap() error {
	return ErrIncompleteForm
}
