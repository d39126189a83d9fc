// Package store persists form schemas and the responses entered against them.
package store

import (
	"context"
	"time"

	"github.com/hyperengineering/ficha/internal/schema"
)

// Response is one respondent's values for one schema version. Responses are
// keyed independently of their schema so many responses can share one.
type Response struct {
	ID            string        `json:"id"`
	SchemaID      string        `json:"schemaId"`
	SchemaVersion int           `json:"schemaVersion"`
	Values        schema.Values `json:"values"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// SchemaSummary describes the latest version of a stored schema.
type SchemaSummary struct {
	ID             string    `json:"id"`
	OwnerProjectID string    `json:"ownerProjectId,omitempty"`
	Title          string    `json:"title"`
	Version        int       `json:"version"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Stats holds aggregate store counts.
type Stats struct {
	Schemas        int64 `json:"schemas"`
	SchemaVersions int64 `json:"schemaVersions"`
	Responses      int64 `json:"responses"`
	// MigrationVersion is the applied database migration, zero for stores
	// without a database.
	MigrationVersion int64      `json:"migrationVersion,omitempty"`
	LastSnapshot     *time.Time `json:"lastSnapshot,omitempty"`
}

// SchemaStore reads and writes versioned form schemas.
type SchemaStore interface {
	// GetSchema returns the latest version of a schema.
	GetSchema(ctx context.Context, id string) (schema.FormSchema, error)
	// GetSchemaVersion returns one historic version of a schema.
	GetSchemaVersion(ctx context.Context, id string, version int) (schema.FormSchema, error)
	// PutSchema stores s as the next version of its id and returns it with
	// Version assigned. Earlier versions are never modified.
	PutSchema(ctx context.Context, s schema.FormSchema) (schema.FormSchema, error)
	// ListSchemas returns the latest version of every schema owned by a
	// project, or of every schema when ownerProjectID is empty.
	ListSchemas(ctx context.Context, ownerProjectID string) ([]SchemaSummary, error)
}

// ResponseStore reads and writes form responses.
type ResponseStore interface {
	GetResponse(ctx context.Context, id string) (Response, error)
	// PutResponse creates or replaces a response and returns it with
	// timestamps set. The pinned schema version must exist.
	PutResponse(ctx context.Context, r Response) (Response, error)
	// ListResponses returns every response entered against a schema, oldest first.
	ListResponses(ctx context.Context, schemaID string) ([]Response, error)
}

// Store is the full persistence contract served by the SQLite and memory stores.
type Store interface {
	SchemaStore
	ResponseStore
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
