package catalog

import "errors"

var (
	// ErrUnknownFieldType indicates a field type tag that is not registered.
	// Callers treat it as schema corruption, not as user error.
	ErrUnknownFieldType = errors.New("unknown field type")

	// ErrShapeMismatch indicates a value does not match the shape of its field type.
	ErrShapeMismatch = errors.New("value does not match field type")
)
