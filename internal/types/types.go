// Package types holds the request and response bodies of the HTTP API.
package types

import (
	"encoding/json"
	"time"

	"github.com/hyperengineering/ficha/internal/builder"
	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/logic"
	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/session"
	"github.com/hyperengineering/ficha/internal/store"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string     `json:"status"`
	Version          string     `json:"version"`
	Schemas          int64      `json:"schemas"`
	Responses        int64      `json:"responses"`
	Sessions         int        `json:"sessions"`
	MigrationVersion int64      `json:"migrationVersion,omitempty"`
	LastSnapshot     *time.Time `json:"lastSnapshot,omitempty"`
}

// FieldTypesResponse lists the field catalog in palette order.
type FieldTypesResponse struct {
	Types []catalog.Descriptor `json:"types"`
}

// CreateSchemaRequest creates a schema. Without Schema the server builds a
// starter schema with one page and one empty section.
type CreateSchemaRequest struct {
	OwnerProjectID string             `json:"ownerProjectId,omitempty"`
	Title          string             `json:"title"`
	Schema         *schema.FormSchema `json:"schema,omitempty"`
}

// SchemaListResponse lists the latest version of each schema.
type SchemaListResponse struct {
	Schemas []store.SchemaSummary `json:"schemas"`
}

// OperationsRequest applies builder operations to the latest schema version.
// A non-zero BaseVersion must match the latest version.
type OperationsRequest struct {
	BaseVersion int                 `json:"baseVersion,omitempty"`
	Operations  []builder.Operation `json:"operations"`
}

// OperationsResponse is the stored schema after all operations applied.
// CreatedIDs holds, per operation, the id it created or an empty string.
type OperationsResponse struct {
	Schema     schema.FormSchema `json:"schema"`
	CreatedIDs []string          `json:"createdIds"`
}

// EvaluateRequest evaluates a schema against values without a session.
// A zero Version evaluates the latest version.
type EvaluateRequest struct {
	Version int           `json:"version,omitempty"`
	Values  schema.Values `json:"values"`
}

// EvaluateResponse is the evaluator output for one schema version.
type EvaluateResponse struct {
	SchemaID string `json:"schemaId"`
	Version  int    `json:"version"`
	logic.Result
}

// ResponseListResponse lists the responses entered against a schema.
type ResponseListResponse struct {
	Responses []store.Response `json:"responses"`
}

// OpenSessionRequest opens a form session. With ResponseID the session edits
// that response; otherwise it starts a new one.
type OpenSessionRequest struct {
	SchemaID   string `json:"schemaId"`
	ResponseID string `json:"responseId,omitempty"`
}

// SessionResponse describes a session and, when it holds a form, its view.
type SessionResponse struct {
	SessionID  string        `json:"sessionId"`
	State      session.State `json:"state"`
	ResponseID string        `json:"responseId,omitempty"`
	Error      string        `json:"error,omitempty"`
	View       *session.View `json:"view,omitempty"`
}

// SetValueRequest sets one field value. A null value clears the field.
type SetValueRequest struct {
	Value any `json:"value"`
}

// ValidateResponse reports the visible required fields still missing a value.
type ValidateResponse struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`
}

// MarshalJSON ensures nil slices in FieldTypesResponse marshal as [] not null.
func (r FieldTypesResponse) MarshalJSON() ([]byte, error) {
	if r.Types == nil {
		r.Types = []catalog.Descriptor{}
	}
	type Alias FieldTypesResponse
	return json.Marshal(Alias(r))
}

// MarshalJSON ensures nil slices in SchemaListResponse marshal as [] not null.
func (r SchemaListResponse) MarshalJSON() ([]byte, error) {
	if r.Schemas == nil {
		r.Schemas = []store.SchemaSummary{}
	}
	type Alias SchemaListResponse
	return json.Marshal(Alias(r))
}

// MarshalJSON ensures nil slices in OperationsResponse marshal as [] not null.
func (r OperationsResponse) MarshalJSON() ([]byte, error) {
	if r.CreatedIDs == nil {
		r.CreatedIDs = []string{}
	}
	type Alias OperationsResponse
	return json.Marshal(Alias(r))
}

// MarshalJSON ensures nil slices in ResponseListResponse marshal as [] not null.
func (r ResponseListResponse) MarshalJSON() ([]byte, error) {
	if r.Responses == nil {
		r.Responses = []store.Response{}
	}
	type Alias ResponseListResponse
	return json.Marshal(Alias(r))
}

// MarshalJSON ensures nil slices in ValidateResponse marshal as [] not null.
func (r ValidateResponse) MarshalJSON() ([]byte, error) {
	if r.Missing == nil {
		r.Missing = []string{}
	}
	type Alias ValidateResponse
	return json.Marshal(Alias(r))
}
