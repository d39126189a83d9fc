package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/ficha/internal/session"
	"github.com/hyperengineering/ficha/internal/types"
)

// OpenSession handles POST /api/v1/sessions
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req types.OpenSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SchemaID == "" && req.ResponseID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "schemaId or responseId is required")
		return
	}

	id, s, err := h.sessions.Open(r.Context(), req.SchemaID, req.ResponseID)
	if err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("session opened",
		"component", "api",
		"action", "session_open",
		"session_id", id,
		"schema_id", s.SchemaID(),
		"response_id", s.ResponseID(),
	)
	writeJSON(w, http.StatusCreated, sessionResponse(id, s))
}

// GetSession handles GET /api/v1/sessions/{sessionID}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, sessionResponse(SessionIDFromContext(ctx), MustSessionFromContext(ctx)))
}

// SetValue handles PUT /api/v1/sessions/{sessionID}/values/{fieldID}. The
// response carries the re-evaluated view.
func (h *Handler) SetValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := MustSessionFromContext(ctx)

	var req types.SetValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.SetValue(chi.URLParam(r, "fieldID"), req.Value); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(SessionIDFromContext(ctx), s))
}

// ValidateSession handles POST /api/v1/sessions/{sessionID}/validate
func (h *Handler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	s := MustSessionFromContext(r.Context())
	if _, err := s.CurrentView(); err != nil {
		MapError(w, r, err)
		return
	}

	missing := s.Validate()
	writeJSON(w, http.StatusOK, types.ValidateResponse{Valid: len(missing) == 0, Missing: missing})
}

// SubmitSession handles POST /api/v1/sessions/{sessionID}/submit
func (h *Handler) SubmitSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := MustSessionFromContext(ctx)

	if err := s.Submit(ctx); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(SessionIDFromContext(ctx), s))
}

// RetrySession handles POST /api/v1/sessions/{sessionID}/retry
func (h *Handler) RetrySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := MustSessionFromContext(ctx)

	if err := s.Retry(ctx); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(SessionIDFromContext(ctx), s))
}

// CloseSession handles DELETE /api/v1/sessions/{sessionID}
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFromContext(r.Context())
	if err := h.sessions.Close(id); err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("session closed",
		"component", "api",
		"action", "session_close",
		"session_id", id,
	)
	w.WriteHeader(http.StatusNoContent)
}

// sessionResponse describes s. Store errors behind the Error state are not
// exposed; clients only learn that a retry is possible.
func sessionResponse(id string, s *session.Session) types.SessionResponse {
	resp := types.SessionResponse{
		SessionID:  id,
		State:      s.State(),
		ResponseID: s.ResponseID(),
	}
	if resp.State == session.StateError {
		resp.Error = "last operation failed; retry to continue"
	}
	if v, err := s.CurrentView(); err == nil {
		resp.View = &v
	}
	return resp
}
