package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/store"
)

// Manager keeps the live sessions of a server, keyed by random session ids.
// Sessions untouched for longer than the idle timeout, or older than the
// maximum age, are dropped by Reap and are no longer returned by Get.
type Manager struct {
	schemas   SchemaSource
	responses ResponseStore

	idleTimeout time.Duration
	maxAge      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session  *Session
	created  time.Time
	lastUsed time.Time
}

// NewManager creates a manager. A zero idleTimeout or maxAge disables that limit.
func NewManager(schemas SchemaSource, responses ResponseStore, idleTimeout, maxAge time.Duration) *Manager {
	return &Manager{
		schemas:     schemas,
		responses:   responses,
		idleTimeout: idleTimeout,
		maxAge:      maxAge,
		now:         time.Now,
		sessions:    make(map[string]*entry),
	}
}

// Open creates and loads a session. A load that fails because the schema or
// response is missing, invalid or mismatched returns the error and registers
// nothing. Any other load failure registers the session in the Error state so
// that Retry can re-attempt the load.
func (m *Manager) Open(ctx context.Context, schemaID, responseID string) (string, *Session, error) {
	s := New(m.schemas, m.responses)
	if err := s.Load(ctx, schemaID, responseID); err != nil && !retryableLoad(err) {
		return "", nil, err
	}

	id := uuid.NewString()
	now := m.now()

	m.mu.Lock()
	m.sessions[id] = &entry{session: s, created: now, lastUsed: now}
	m.mu.Unlock()

	slog.Debug("session opened",
		"component", "session",
		"action", "open",
		"session_id", id,
		"schema_id", s.SchemaID(),
		"state", s.State(),
	)
	return id, s, nil
}

func retryableLoad(err error) bool {
	return !errors.Is(err, store.ErrNotFound) &&
		!errors.Is(err, ErrSchemaMismatch) &&
		!errors.Is(err, schema.ErrInvalidSchema)
}

// Get returns a live session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	now := m.now()
	if m.expired(e, now) {
		delete(m.sessions, id)
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	e.lastUsed = now
	return e.session, nil
}

// Close discards a session. Store calls already in flight are left to finish.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// Reap removes expired sessions and returns how many were removed.
func (m *Manager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.sessions {
		if m.expired(e, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of registered sessions, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expired(e *entry, now time.Time) bool {
	if m.idleTimeout > 0 && now.Sub(e.lastUsed) > m.idleTimeout {
		return true
	}
	return m.maxAge > 0 && now.Sub(e.created) > m.maxAge
}
