package worker

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hyperengineering/ficha/internal/snapshot"
)

// SnapshotStore defines the store operations needed by the snapshot worker.
type SnapshotStore interface {
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
}

// SnapshotWorker periodically writes a database snapshot and uploads it.
type SnapshotWorker struct {
	store    SnapshotStore
	uploader snapshot.Uploader
	interval time.Duration
}

// NewSnapshotWorker creates a worker with the given store and interval.
// A nil uploader keeps snapshots local.
func NewSnapshotWorker(store SnapshotStore, uploader snapshot.Uploader, interval time.Duration) *SnapshotWorker {
	return &SnapshotWorker{
		store:    store,
		uploader: uploader,
		interval: interval,
	}
}

// Run starts the worker loop. Generates a snapshot immediately on start,
// then on each interval. An in-progress snapshot runs to completion on
// cancellation.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce generates one snapshot and uploads it. Returns true on success.
func (w *SnapshotWorker) runOnce(ctx context.Context) bool {
	slog.Info("snapshot generation started",
		"component", "worker",
		"action", "snapshot_start",
	)

	if err := w.store.GenerateSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"action", "snapshot_failed",
			"error", err,
		)
		return false
	}

	if w.uploader != nil {
		w.upload(ctx)
	}
	return true
}

// upload sends the latest snapshot to object storage. Failures are logged;
// the local snapshot stays valid.
func (w *SnapshotWorker) upload(ctx context.Context) {
	path, err := w.store.GetSnapshotPath(ctx)
	if err != nil {
		slog.Warn("failed to get snapshot path for upload",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"error", err,
		)
		return
	}

	name := filepath.Base(path)
	if err := w.uploader.Upload(ctx, name, path); err != nil {
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"object", name,
			"error", err,
		)
		return
	}

	slog.Info("snapshot uploaded",
		"component", "worker",
		"action", "snapshot_uploaded",
		"object", name,
	)
}
