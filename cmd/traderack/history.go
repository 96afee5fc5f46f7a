package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyLimit      int
	historyJSONOutput bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent project changes, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries")
	historyCmd.Flags().BoolVar(&historyJSONOutput, "json", false, "Output in JSON format")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", historyLimit)
	}
	ctx := context.Background()
	p, err := loadProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	entries, err := p.db.RecentHistory(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	out := cmd.OutOrStdout()
	if historyJSONOutput {
		return printJSON(out, map[string]any{"entries": entries, "total": len(entries)})
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "SEQ\tWHEN\tCOMPONENT\tACTION\tTITLE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.Sequence, humanize.Time(e.Timestamp), e.Component, e.Action, e.Title)
	}
	return w.Flush()
}
