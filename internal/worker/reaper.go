package worker

import (
	"context"
	"log/slog"
	"time"
)

// SessionReaper is the session manager operation needed by the reaper.
type SessionReaper interface {
	Reap() int
}

// ReaperWorker periodically drops idle and expired form sessions.
type ReaperWorker struct {
	sessions SessionReaper
	interval time.Duration
}

// NewReaperWorker creates a worker that reaps sessions every interval.
func NewReaperWorker(sessions SessionReaper, interval time.Duration) *ReaperWorker {
	return &ReaperWorker{
		sessions: sessions,
		interval: interval,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does not run immediately on start; nothing can have expired yet.
func (w *ReaperWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "session-reaper",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "session-reaper",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.reap()
		}
	}
}

func (w *ReaperWorker) reap() {
	start := time.Now()
	removed := w.sessions.Reap()
	if removed == 0 {
		return
	}
	slog.Info("sessions reaped",
		"component", "worker",
		"action", "reap_complete",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
