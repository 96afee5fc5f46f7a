package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var infoJSONOutput bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show project database information",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSONOutput, "json", false, "Output in JSON format")
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := openProject(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	stats, err := p.db.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	var sizeBytes int64
	if fi, statErr := os.Stat(cfg.Database.Path); statErr == nil {
		sizeBytes = fi.Size()
	}
	cfgs := p.manifest.Configurations()

	out := cmd.OutOrStdout()
	if infoJSONOutput {
		return printJSON(out, map[string]any{
			"path":               cfg.Database.Path,
			"size_bytes":         sizeBytes,
			"configurations":     len(cfgs),
			"active":             p.manifest.ActiveConfigurationID(),
			"mep_items":          len(p.manifest.MEPItems()),
			"history_entries":    stats.HistoryEntries,
			"last_compaction_at": stats.LastCompactionAt,
			"last_backup_at":     stats.LastBackupAt,
		})
	}

	fmt.Fprintf(out, "Database:       %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "Size:           %s\n", humanize.Bytes(uint64(sizeBytes)))
	fmt.Fprintf(out, "Configurations: %d\n", len(cfgs))
	if id := p.manifest.ActiveConfigurationID(); id != "" {
		fmt.Fprintf(out, "Active:         %s\n", id)
	}
	fmt.Fprintf(out, "MEP items:      %d\n", len(p.manifest.MEPItems()))
	fmt.Fprintf(out, "History:        %s entries\n", humanize.Comma(stats.HistoryEntries))
	fmt.Fprintf(out, "Last compacted: %s\n", whenOrNever(stats.LastCompactionAt))
	fmt.Fprintf(out, "Last backup:    %s\n", whenOrNever(stats.LastBackupAt))
	return nil
}

func whenOrNever(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}
