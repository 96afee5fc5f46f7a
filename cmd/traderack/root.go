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

	"github.com/hyperengineering/traderack/internal/api"
	"github.com/hyperengineering/traderack/internal/backup"
	"github.com/hyperengineering/traderack/internal/config"
	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/worker"
	"github.com/hyperengineering/traderack/internal/workspace"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "traderack",
	Short:        "Trade rack MEP configurator",
	Long:         "Serves the trade rack configurator API. Subcommands work on the project database offline.",
	SilenceUsage: true,
	RunE:         run,
}

// dbPathOverride replaces database.path for every command when set.
var dbPathOverride string

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and TRADERACK_DB_PATH)")

	rootCmd.AddCommand(rackCmd)
	rootCmd.AddCommand(configsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(infoCmd)
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPathOverride != "" {
		cfg.Database.Path = dbPathOverride
	}
	return cfg, nil
}

// workspaceConfig maps the rack section onto workspace settings.
func workspaceConfig(cfg *config.Config, bus events.Publisher) workspace.Config {
	return workspace.Config{
		Policy:         rack.PositionPolicy(cfg.Rack.PositionPolicy),
		SnapTolerance:  cfg.Rack.SnapTolerance,
		HistoryLimit:   cfg.Rack.HistoryLimit,
		CameraDebounce: time.Duration(cfg.Rack.CameraDebounce),
		Events:         bus,
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	bus := events.NewBus()
	ws := workspace.Open(ctx, db, workspaceConfig(cfg, bus))

	uploader, err := backup.NewUploader(cfg.Backup)
	if err != nil {
		return fmt.Errorf("backup uploader: %w", err)
	}

	handler := api.NewHandler(ws, db, bus, cfg.Auth.APIKey, Version)
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
	if d := time.Duration(cfg.Worker.CompactionInterval); d > 0 {
		compactor := worker.NewCompactionCoordinator(db, d, cfg.Rack.HistoryLimit)
		startWorker(ctx, &wg, "compaction", compactor.Run)
	}
	if d := time.Duration(cfg.Worker.BackupInterval); d > 0 {
		backups := worker.NewBackupCoordinator(ws.Manifest(), db, uploader, cfg.Backup.Dir, d)
		startWorker(ctx, &wg, "backup", backups.Run)
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
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
	bus.Close()

	wg.Wait()

	if err := ws.Close(shutdownCtx); err != nil {
		slog.Error("workspace close error", "error", err)
	}
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
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

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(lc.Level)}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
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
