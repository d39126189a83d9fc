package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hyperengineering/ficha/internal/schema"
)

// MemoryStore keeps schemas and responses in process memory. It backs dev
// mode and tests; everything is lost on exit.
type MemoryStore struct {
	mu        sync.RWMutex
	schemas   map[string][]schema.FormSchema // versions in order; index = version-1
	updated   map[string]time.Time
	responses map[string]Response
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schemas:   make(map[string][]schema.FormSchema),
		updated:   make(map[string]time.Time),
		responses: make(map[string]Response),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetSchema returns the latest version of a schema.
func (m *MemoryStore) GetSchema(ctx context.Context, id string) (schema.FormSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.schemas[id]
	if len(versions) == 0 {
		return schema.FormSchema{}, fmt.Errorf("schema %q: %w", id, ErrNotFound)
	}
	return schema.Clone(versions[len(versions)-1]), nil
}

// GetSchemaVersion returns one version of a schema.
func (m *MemoryStore) GetSchemaVersion(ctx context.Context, id string, version int) (schema.FormSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.schemas[id]
	if version < 1 || version > len(versions) {
		return schema.FormSchema{}, fmt.Errorf("schema %q version %d: %w", id, version, ErrNotFound)
	}
	return schema.Clone(versions[version-1]), nil
}

// PutSchema stores s as the next version of its id.
func (m *MemoryStore) PutSchema(ctx context.Context, s schema.FormSchema) (schema.FormSchema, error) {
	if s.ID == "" {
		return schema.FormSchema{}, fmt.Errorf("%w: schema id is required", ErrInvalidRecord)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := schema.Clone(s)
	stored.Version = len(m.schemas[s.ID]) + 1
	m.schemas[s.ID] = append(m.schemas[s.ID], stored)
	m.updated[s.ID] = m.now()
	return schema.Clone(stored), nil
}

// ListSchemas returns the latest version of each schema, ordered by id.
func (m *MemoryStore) ListSchemas(ctx context.Context, ownerProjectID string) ([]SchemaSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []SchemaSummary{}
	for id, versions := range m.schemas {
		latest := versions[len(versions)-1]
		if ownerProjectID != "" && latest.OwnerProjectID != ownerProjectID {
			continue
		}
		out = append(out, SchemaSummary{
			ID:             id,
			OwnerProjectID: latest.OwnerProjectID,
			Title:          latest.Title,
			Version:        latest.Version,
			UpdatedAt:      m.updated[id],
		})
	}
	slices.SortFunc(out, func(a, b SchemaSummary) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetResponse returns a response by id.
func (m *MemoryStore) GetResponse(ctx context.Context, id string) (Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.responses[id]
	if !ok {
		return Response{}, fmt.Errorf("response %q: %w", id, ErrNotFound)
	}
	return copyResponse(r), nil
}

// PutResponse creates or replaces a response.
func (m *MemoryStore) PutResponse(ctx context.Context, r Response) (Response, error) {
	if r.ID == "" || r.SchemaID == "" {
		return Response{}, fmt.Errorf("%w: response id and schema id are required", ErrInvalidRecord)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r.SchemaVersion < 1 || r.SchemaVersion > len(m.schemas[r.SchemaID]) {
		return Response{}, fmt.Errorf("schema %q version %d: %w", r.SchemaID, r.SchemaVersion, ErrNotFound)
	}

	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if existing, ok := m.responses[r.ID]; ok {
		if existing.SchemaID != r.SchemaID {
			return Response{}, fmt.Errorf("%w: response %q belongs to schema %q", ErrConflict, r.ID, existing.SchemaID)
		}
		r.CreatedAt = existing.CreatedAt
	}
	m.responses[r.ID] = copyResponse(r)
	return copyResponse(r), nil
}

// ListResponses returns a schema's responses, oldest first.
func (m *MemoryStore) ListResponses(ctx context.Context, schemaID string) ([]Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Response{}
	for _, r := range m.responses {
		if r.SchemaID == schemaID {
			out = append(out, copyResponse(r))
		}
	}
	slices.SortFunc(out, func(a, b Response) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Stats returns schema and response counts.
func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &Stats{Schemas: int64(len(m.schemas)), Responses: int64(len(m.responses))}
	for _, versions := range m.schemas {
		st.SchemaVersions += int64(len(versions))
	}
	return st, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func copyResponse(r Response) Response {
	r.Values = maps.Clone(r.Values)
	return r
}
