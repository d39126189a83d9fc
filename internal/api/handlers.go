package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/hyperengineering/ficha/internal/builder"
	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/session"
	"github.com/hyperengineering/ficha/internal/snapshot"
	"github.com/hyperengineering/ficha/internal/store"
	"github.com/hyperengineering/ficha/internal/types"
)

// maxBodyBytes bounds request bodies. Schemas are the largest payloads.
const maxBodyBytes = 4 << 20

// snapshotName is the object name snapshots are served and uploaded under.
const snapshotName = "current.db"

// Handler implements the API handlers
type Handler struct {
	store    store.Store
	sessions *session.Manager
	builder  *builder.Builder
	uploader snapshot.Uploader
	apiKey   string
	version  string

	// editMu serializes read-apply-write cycles of builder operations so a
	// base version check is not raced by another edit.
	editMu sync.Mutex
}

// NewHandler creates a new Handler. A nil uploader serves snapshots from
// local disk only.
func NewHandler(s store.Store, sessions *session.Manager, uploader snapshot.Uploader, apiKey, version string) *Handler {
	if uploader == nil {
		uploader = &snapshot.NoopUploader{}
	}
	return &Handler{
		store:    s,
		sessions: sessions,
		builder:  builder.New(),
		uploader: uploader,
		apiKey:   apiKey,
		version:  version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:           "healthy",
		Version:          h.version,
		Schemas:          stats.Schemas,
		Responses:        stats.Responses,
		Sessions:         h.sessions.Len(),
		MigrationVersion: stats.MigrationVersion,
		LastSnapshot:     stats.LastSnapshot,
	})
}

// FieldTypes handles GET /api/v1/field-types
func (h *Handler) FieldTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.FieldTypesResponse{Types: catalog.All()})
}

// snapshotSource is implemented by stores that write database snapshots.
// Used via type assertion to keep snapshots out of the Store interface.
type snapshotSource interface {
	GetSnapshotPath(ctx context.Context) (string, error)
}

// Snapshot handles GET /api/v1/snapshot. With object storage configured the
// client is redirected to a presigned download URL; otherwise the latest
// local snapshot is streamed.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	url, expiry, err := h.uploader.PresignedURL(ctx, snapshotName)
	switch {
	case err == nil:
		slog.Info("snapshot download redirected",
			"component", "api",
			"action", "snapshot_redirect",
			"expires_at", expiry,
		)
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	case !errors.Is(err, snapshot.ErrNotConfigured):
		slog.Warn("presigned snapshot url failed, serving local copy",
			"component", "api",
			"action", "snapshot_presign_failed",
			"error", err,
		)
	}

	src, ok := h.store.(snapshotSource)
	if !ok {
		MapError(w, r, store.ErrSnapshotUnavailable)
		return
	}
	path, err := src.GetSnapshotPath(ctx)
	if err != nil {
		MapError(w, r, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			MapError(w, r, store.ErrSnapshotUnavailable)
			return
		}
		MapError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		MapError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snapshotName))
	http.ServeContent(w, r, snapshotName, info.ModTime(), f)
}

// decodeJSON reads a bounded JSON body into v, writing a 400 problem on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}
