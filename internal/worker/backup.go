package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/traderack/internal/backup"
	"github.com/hyperengineering/traderack/internal/store"
)

// DefaultBackupKeep is the number of local backups of each kind retained.
const DefaultBackupKeep = 10

const backupTimeFormat = "20060102T150405Z"

// ManifestSource encodes the current project manifest.
// Implemented by manifest.Store.
type ManifestSource interface {
	Export() ([]byte, error)
}

// SnapshotStore copies the database and records backup metadata.
// Implemented by store.SQLiteStore.
type SnapshotStore interface {
	Snapshot(ctx context.Context, path string) error
	SetMeta(ctx context.Context, key, value string) error
}

// BackupResult describes one backup run.
type BackupResult struct {
	At    time.Time `json:"at"`
	Files []string  `json:"files"`
	// Keys are the remote object keys, empty when uploads are disabled.
	Keys []string `json:"keys,omitempty"`
}

// BackupCoordinator writes the manifest JSON and a database snapshot to
// the backup directory and uploads both.
type BackupCoordinator struct {
	manifest ManifestSource
	db       SnapshotStore
	uploader backup.Uploader
	dir      string
	interval time.Duration
	keep     int
	now      func() time.Time
}

// NewBackupCoordinator creates a backup coordinator. A nil uploader keeps
// backups local.
func NewBackupCoordinator(
	manifest ManifestSource,
	db SnapshotStore,
	uploader backup.Uploader,
	dir string,
	interval time.Duration,
) *BackupCoordinator {
	if uploader == nil {
		uploader = backup.NoopUploader{}
	}
	return &BackupCoordinator{
		manifest: manifest,
		db:       db,
		uploader: uploader,
		dir:      dir,
		interval: interval,
		keep:     DefaultBackupKeep,
		now:      time.Now,
	}
}

// Run starts the coordinator loop. A backup is taken immediately, then on
// each tick.
func (c *BackupCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
		"dir", c.dir,
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "backup-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runLogged(ctx)
		}
	}
}

func (c *BackupCoordinator) runLogged(ctx context.Context) {
	if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("backup failed",
			"component", "worker",
			"worker", "backup-coordinator",
			"action", "backup_failed",
			"error", err,
		)
	}
}

// RunOnce takes one backup. The local files are the backup; upload failures
// are logged and do not fail the run.
func (c *BackupCoordinator) RunOnce(ctx context.Context) (*BackupResult, error) {
	at := c.now().UTC()
	stamp := at.Format(backupTimeFormat)
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	body, err := c.manifest.Export()
	if err != nil {
		return nil, fmt.Errorf("export manifest: %w", err)
	}
	manifestPath := filepath.Join(c.dir, "manifest-"+stamp+".json")
	if err := os.WriteFile(manifestPath, body, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest backup: %w", err)
	}

	dbPath := filepath.Join(c.dir, "traderack-"+stamp+".db")
	if err := c.db.Snapshot(ctx, dbPath); err != nil {
		if !errors.Is(err, store.ErrSnapshotPath) {
			return nil, fmt.Errorf("snapshot database: %w", err)
		}
		// Same second as the previous run; its snapshot stands.
	}

	res := &BackupResult{At: at, Files: []string{manifestPath, dbPath}}
	for _, f := range res.Files {
		key, err := c.uploader.Upload(ctx, f)
		if err != nil {
			slog.Warn("backup upload failed",
				"component", "worker",
				"worker", "backup-coordinator",
				"action", "backup_upload_failed",
				"file", f,
				"error", err,
			)
			continue
		}
		if key != "" {
			res.Keys = append(res.Keys, key)
		}
	}

	if err := c.db.SetMeta(ctx, store.MetaLastBackupAt, at.Format(time.RFC3339Nano)); err != nil {
		slog.Warn("backup time not recorded", "component", "worker", "worker", "backup-coordinator", "error", err)
	}

	removed := c.prune("manifest-", ".json") + c.prune("traderack-", ".db")
	slog.Info("backup completed",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "backup_complete",
		"files", len(res.Files),
		"uploaded", len(res.Keys),
		"pruned", removed,
	)
	return res, nil
}

// prune deletes all but the newest keep local backups named prefix*suffix.
// Timestamped names sort chronologically.
func (c *BackupCoordinator) prune(prefix, suffix string) int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, prefix) && strings.HasSuffix(n, suffix) {
			names = append(names, n)
		}
	}
	if len(names) <= c.keep {
		return 0
	}
	sort.Strings(names)
	removed := 0
	for _, n := range names[:len(names)-c.keep] {
		if err := os.Remove(filepath.Join(c.dir, n)); err == nil {
			removed++
		}
	}
	return removed
}
