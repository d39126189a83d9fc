package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/ficha/internal/session"
)

// sessionContextKey is the context key for the resolved form session.
type sessionContextKey struct{}

// sessionIDContextKey is the context key for the session ID (for logging).
type sessionIDContextKey struct{}

// ErrNoSessionInContext indicates no session was found in the context.
var ErrNoSessionInContext = errors.New("no session in context")

// WithSession returns a new context with the session attached.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext extracts the session from the context.
// Returns ErrNoSessionInContext if not present or nil.
func SessionFromContext(ctx context.Context) (*session.Session, error) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	if !ok || s == nil {
		return nil, ErrNoSessionInContext
	}
	return s, nil
}

// MustSessionFromContext extracts the session or panics.
// Use only behind SessionMiddleware.
func MustSessionFromContext(ctx context.Context) *session.Session {
	s, err := SessionFromContext(ctx)
	if err != nil {
		panic("session not in context: middleware misconfiguration")
	}
	return s
}

// WithSessionID returns a new context with the session ID attached.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, id)
}

// SessionIDFromContext extracts the session ID from the context, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey{}).(string)
	return id
}

// SessionMiddleware resolves the {sessionID} URL parameter through the
// manager. Unknown or expired sessions get a 404 problem response.
func SessionMiddleware(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "sessionID")
			s, err := sessions.Get(id)
			if err != nil {
				slog.Debug("session lookup failed",
					"component", "api",
					"session_id", id,
					"error", err,
				)
				MapError(w, r, err)
				return
			}

			ctx := WithSessionID(WithSession(r.Context(), s), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
