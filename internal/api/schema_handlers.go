package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/ficha/internal/logic"
	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/store"
	"github.com/hyperengineering/ficha/internal/types"
	"github.com/hyperengineering/ficha/internal/validation"
)

// CreateSchema handles POST /api/v1/schemas
func (h *Handler) CreateSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.CreateSchemaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateMaxLength("title", req.Title, schema.MaxTextLength))
	if req.OwnerProjectID != "" {
		c.Add(validation.ValidateID("ownerProjectId", req.OwnerProjectID))
	}
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	var s schema.FormSchema
	if req.Schema != nil {
		s = *req.Schema
		if s.ID == "" {
			s.ID = h.builder.NewID()
		}
		if req.OwnerProjectID != "" {
			s.OwnerProjectID = req.OwnerProjectID
		}
		if req.Title != "" {
			s.Title = req.Title
		}
	} else {
		s = h.builder.NewSchema(req.OwnerProjectID, req.Title)
	}

	if err := schema.Validate(s); err != nil {
		MapError(w, r, err)
		return
	}
	h.editMu.Lock()
	defer h.editMu.Unlock()

	if _, err := h.store.GetSchema(ctx, s.ID); err == nil {
		WriteProblemConflict(w, r, fmt.Sprintf("Schema %q already exists", s.ID))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		MapError(w, r, err)
		return
	}

	stored, err := h.store.PutSchema(ctx, s)
	if err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("schema created",
		"component", "api",
		"action", "schema_create",
		"schema_id", stored.ID,
		"owner_project_id", stored.OwnerProjectID,
	)
	w.Header().Set("Location", "/api/v1/schemas/"+stored.ID)
	writeJSON(w, http.StatusCreated, stored)
}

// ListSchemas handles GET /api/v1/schemas?project=
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListSchemas(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SchemaListResponse{Schemas: summaries})
}

// GetSchema handles GET /api/v1/schemas/{schemaID}?version=
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	version, ok := parseVersion(w, r, r.URL.Query().Get("version"))
	if !ok {
		return
	}
	s, err := h.loadSchema(r, chi.URLParam(r, "schemaID"), version)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// PutSchema handles PUT /api/v1/schemas/{schemaID}. The body is stored as
// the next version of the schema.
func (h *Handler) PutSchema(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "schemaID")

	var s schema.FormSchema
	if !decodeJSON(w, r, &s) {
		return
	}
	if s.ID != "" && s.ID != id {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Body id %q does not match path id %q", s.ID, id))
		return
	}
	s.ID = id

	if err := schema.Validate(s); err != nil {
		MapError(w, r, err)
		return
	}

	h.editMu.Lock()
	stored, err := h.store.PutSchema(r.Context(), s)
	h.editMu.Unlock()
	if err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("schema stored",
		"component", "api",
		"action", "schema_put",
		"schema_id", stored.ID,
		"version", stored.Version,
	)
	writeJSON(w, http.StatusOK, stored)
}

// ApplyOperations handles POST /api/v1/schemas/{schemaID}/operations.
// Operations apply in order to the latest version; the result is validated
// and stored as one new version, or nothing is stored.
func (h *Handler) ApplyOperations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	id := chi.URLParam(r, "schemaID")

	var req types.OperationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Operations) == 0 {
		WriteProblem(w, r, http.StatusBadRequest, "At least one operation is required")
		return
	}

	h.editMu.Lock()
	defer h.editMu.Unlock()

	current, err := h.store.GetSchema(ctx, id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if req.BaseVersion != 0 && req.BaseVersion != current.Version {
		writeVersionConflict(w, r, req.BaseVersion, current.Version)
		return
	}

	next := current
	created := make([]string, len(req.Operations))
	for i, op := range req.Operations {
		next, created[i], err = h.builder.Apply(next, op)
		if err != nil {
			MapError(w, r, fmt.Errorf("operation %d (%s): %w", i, op.Op, err))
			return
		}
	}

	if err := schema.Validate(next); err != nil {
		MapError(w, r, err)
		return
	}
	stored, err := h.store.PutSchema(ctx, next)
	if err != nil {
		MapError(w, r, err)
		return
	}

	slog.Info("schema operations applied",
		"component", "api",
		"action", "schema_operations",
		"schema_id", stored.ID,
		"version", stored.Version,
		"operations", len(req.Operations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, types.OperationsResponse{Schema: stored, CreatedIDs: created})
}

// EvaluateSchema handles POST /api/v1/schemas/{schemaID}/evaluate. Values for
// fields the schema does not have are ignored.
func (h *Handler) EvaluateSchema(w http.ResponseWriter, r *http.Request) {
	var req types.EvaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.loadSchema(r, chi.URLParam(r, "schemaID"), req.Version)
	if err != nil {
		MapError(w, r, err)
		return
	}

	values, errs := schema.CheckValues(s, req.Values)
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Values rejected for field type", errs)
		return
	}

	writeJSON(w, http.StatusOK, types.EvaluateResponse{
		SchemaID: s.ID,
		Version:  s.Version,
		Result:   logic.Evaluate(s, values),
	})
}

// ListResponses handles GET /api/v1/schemas/{schemaID}/responses
func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "schemaID")

	if _, err := h.store.GetSchema(ctx, id); err != nil {
		MapError(w, r, err)
		return
	}
	responses, err := h.store.ListResponses(ctx, id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ResponseListResponse{Responses: responses})
}

// GetResponse handles GET /api/v1/responses/{responseID}
func (h *Handler) GetResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := h.store.GetResponse(r.Context(), chi.URLParam(r, "responseID"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadSchema returns one version of a schema, or the latest for version 0.
func (h *Handler) loadSchema(r *http.Request, id string, version int) (schema.FormSchema, error) {
	if version == 0 {
		return h.store.GetSchema(r.Context(), id)
	}
	return h.store.GetSchemaVersion(r.Context(), id, version)
}

// parseVersion parses an optional positive version query value.
func parseVersion(w http.ResponseWriter, r *http.Request, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid version %q: must be a positive integer", raw))
		return 0, false
	}
	return v, true
}
