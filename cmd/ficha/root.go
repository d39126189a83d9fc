package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/ficha/internal/api"
	"github.com/hyperengineering/ficha/internal/config"
	"github.com/hyperengineering/ficha/internal/session"
	"github.com/hyperengineering/ficha/internal/snapshot"
	"github.com/hyperengineering/ficha/internal/store"
	"github.com/hyperengineering/ficha/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "ficha",
	Short:        "Ficha - heritage survey form service",
	RunE:         run,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default command)",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(schemaCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(newLogHandler(os.Stdout, cfg.Log)))
	slog.Info("configuration loaded", "driver", cfg.Database.Driver, "dev_mode", cfg.DevMode)
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	db, sqlite, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "driver", cfg.Database.Driver, "path", cfg.Database.Path)

	uploader, err := snapshot.NewUploader(cfg.SnapshotStorage)
	if err != nil {
		db.Close()
		return fmt.Errorf("snapshot storage: %w", err)
	}

	sessions := session.NewManager(db, db,
		time.Duration(cfg.Worker.SessionIdleTimeout),
		time.Duration(cfg.Worker.SessionMaxAge))

	handler := api.NewHandler(db, sessions, uploader, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "session-reaper",
		worker.NewReaperWorker(sessions, time.Duration(cfg.Worker.SessionReapInterval)).Run)
	if sqlite != nil {
		startWorker(ctx, &wg, "snapshot",
			worker.NewSnapshotWorker(sqlite, uploader, time.Duration(cfg.Worker.SnapshotInterval)).Run)
	}

	go func() {
		slog.Info("server starting", "address", addr, "version", Version)
		// ErrServerClosed is expected after Shutdown; anything else stops the process.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// openStore opens the configured store. The SQLite store is also returned on
// its own so the snapshot worker can use it; it is nil for the memory driver.
func openStore(cfg config.DatabaseConfig) (store.Store, *store.SQLiteStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil, nil
	default:
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

func newLogHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
