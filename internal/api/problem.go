package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/ficha/internal/builder"
	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/session"
	"github.com/hyperengineering/ficha/internal/store"
	"github.com/hyperengineering/ficha/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusUnauthorized: {
		typeURI: "https://ficha.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://ficha.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://ficha.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://ficha.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://ficha.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://ficha.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusConflict: {
		typeURI: "https://ficha.dev/errors/conflict",
		title:   "Conflict",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = problemType{
			typeURI: "https://ficha.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblemConflict writes a 409 Conflict problem response.
func WriteProblemConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusConflict, detail)
}

// writeVersionConflict writes a 409 response for an edit against a stale
// schema version.
func writeVersionConflict(w http.ResponseWriter, r *http.Request, baseVersion, currentVersion int) {
	resp := struct {
		Problem
		BaseVersion    int `json:"baseVersion"`
		CurrentVersion int `json:"currentVersion"`
	}{
		Problem: Problem{
			Type:     "https://ficha.dev/errors/version-mismatch",
			Title:    "Schema Version Mismatch",
			Status:   http.StatusConflict,
			Detail:   "Schema was modified since the base version was read",
			Instance: r.URL.Path,
		},
		BaseVersion:    baseVersion,
		CurrentVersion: currentVersion,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusConflict)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid    schema.ValidationErrors
		patch      *builder.PatchError
		mismatch   *session.TypeMismatchError
		incomplete *session.IncompleteFormError
	)

	switch {
	case errors.As(err, &invalid):
		WriteProblemWithErrors(w, r, "Schema violates one or more invariants", invalid.Errors)
	case errors.As(err, &patch):
		WriteProblemWithErrors(w, r, "Field update rejected", patch.Errors)
	case errors.As(err, &mismatch):
		WriteProblemWithErrors(w, r, "Value rejected for field type", []validation.ValidationError{
			{Field: mismatch.FieldID, Message: mismatch.Err.Error()},
		})
	case errors.As(err, &incomplete):
		errs := make([]validation.ValidationError, len(incomplete.FieldIDs))
		for i, id := range incomplete.FieldIDs {
			errs[i] = validation.ValidationError{Field: id, Message: "is required"}
		}
		WriteProblemWithErrors(w, r, "Form has required fields without a value", errs)

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrFieldNotFound):
		WriteProblem(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, catalog.ErrUnknownFieldType),
		errors.Is(err, catalog.ErrShapeMismatch),
		errors.Is(err, schema.ErrValueNotAllowed),
		errors.Is(err, builder.ErrSelfReferentialRule),
		errors.Is(err, builder.ErrInvalidRule),
		errors.Is(err, builder.ErrRuleNotFound),
		errors.Is(err, builder.ErrPageNotFound),
		errors.Is(err, builder.ErrSectionNotFound),
		errors.Is(err, builder.ErrFieldNotFound),
		errors.Is(err, builder.ErrLastPage),
		errors.Is(err, builder.ErrLastSection),
		errors.Is(err, builder.ErrInvalidOrder),
		errors.Is(err, builder.ErrUnknownOperation),
		errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, session.ErrSchemaMismatch):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrNothingToRetry),
		errors.Is(err, store.ErrConflict):
		WriteProblemConflict(w, r, err.Error())

	case errors.Is(err, store.ErrSnapshotUnavailable):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshot not available")

	default:
		slog.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"error", err,
		)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
