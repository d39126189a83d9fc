package store

import "errors"

var (
	// ErrNotFound indicates the requested schema, schema version or response does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a write that contradicts stored data, such as
	// moving an existing response to a different schema.
	ErrConflict = errors.New("conflict")

	// ErrInvalidRecord indicates a record missing its identifying attributes.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrSnapshotUnavailable indicates snapshots are not supported or none exists yet.
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
)
