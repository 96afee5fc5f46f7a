package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/traderack/internal/backup"
	"github.com/hyperengineering/traderack/internal/worker"
)

var backupPresign bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a backup of the project now",
	Long:  "Writes the manifest and a database snapshot to the backup directory and uploads them when a bucket is configured.",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&backupPresign, "url", false,
		"Print a presigned download URL for each uploaded file")
}

func runBackup(cmd *cobra.Command, args []string) error {
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

	uploader, err := backup.NewUploader(cfg.Backup)
	if err != nil {
		return fmt.Errorf("backup uploader: %w", err)
	}
	coord := worker.NewBackupCoordinator(p.manifest, p.db, uploader, cfg.Backup.Dir, 0)
	res, err := coord.RunOnce(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range res.Files {
		size := "?"
		if info, statErr := os.Stat(f); statErr == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(out, "Wrote %s (%s)\n", f, size)
	}
	for _, k := range res.Keys {
		fmt.Fprintf(out, "Uploaded %s\n", k)
		if !backupPresign {
			continue
		}
		u, expires, err := uploader.PresignedURL(ctx, k)
		if err != nil {
			return fmt.Errorf("presign %s: %w", k, err)
		}
		fmt.Fprintf(out, "  %s (expires %s)\n", u, humanize.Time(expires))
	}
	return nil
}
