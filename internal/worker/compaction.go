// Package worker runs the periodic maintenance jobs: change history
// compaction and project backups.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// HistoryTrimmer removes old change history rows.
// Implemented by store.SQLiteStore.
type HistoryTrimmer interface {
	// TrimHistory keeps the newest keep entries and returns how many were deleted.
	TrimHistory(ctx context.Context, keep int) (int64, error)
}

// CompactionCoordinator trims the change history table to a fixed size.
type CompactionCoordinator struct {
	store    HistoryTrimmer
	interval time.Duration
	keep     int
}

// NewCompactionCoordinator creates a coordinator that keeps the newest keep
// history entries.
func NewCompactionCoordinator(store HistoryTrimmer, interval time.Duration, keep int) *CompactionCoordinator {
	return &CompactionCoordinator{
		store:    store,
		interval: interval,
		keep:     keep,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
//
// The first trim happens after one interval so startup stays quiet.
func (c *CompactionCoordinator) Run(ctx context.Context) {
	slog.Info("compaction coordinator started",
		"component", "worker",
		"worker", "compaction-coordinator",
		"interval", c.interval.String(),
		"keep", c.keep,
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("compaction coordinator stopped",
				"component", "worker",
				"worker", "compaction-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.compact(ctx)
		}
	}
}

// compact runs one trim. Returns the number of deleted entries and whether
// the trim succeeded.
func (c *CompactionCoordinator) compact(ctx context.Context) (int64, bool) {
	start := time.Now()
	deleted, err := c.store.TrimHistory(ctx, c.keep)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false // Graceful shutdown
		}
		slog.Error("history compaction failed",
			"component", "worker",
			"worker", "compaction-coordinator",
			"error", err,
		)
		return 0, false
	}

	if deleted == 0 {
		slog.Debug("no history entries to compact",
			"component", "worker",
			"worker", "compaction-coordinator",
		)
		return 0, true
	}

	slog.Info("history compaction completed",
		"component", "worker",
		"worker", "compaction-coordinator",
		"entries_deleted", deleted,
		"keep", c.keep,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return deleted, true
}
