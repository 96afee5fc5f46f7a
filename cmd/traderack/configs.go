package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/traderack/internal/configio"
)

var (
	configsJSONOutput bool
	exportOutFile     string
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Manage saved rack configurations",
	Long:  "List, export and import saved configurations in the project database without running the server.",
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved configurations",
	Args:  cobra.NoArgs,
	RunE:  runConfigsList,
}

var configsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every saved configuration as an export file",
	Args:  cobra.NoArgs,
	RunE:  runConfigsExport,
}

var configsImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Import configurations from an export file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigsImport,
}

func init() {
	configsCmd.PersistentFlags().BoolVar(&configsJSONOutput, "json", false,
		"Output in JSON format")
	configsExportCmd.Flags().StringVarP(&exportOutFile, "out", "o", "",
		"Output file (default stdout)")

	configsCmd.AddCommand(configsListCmd)
	configsCmd.AddCommand(configsExportCmd)
	configsCmd.AddCommand(configsImportCmd)
}

func runConfigsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := loadProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	cfgs := p.manifest.Configurations()
	active := p.manifest.ActiveConfigurationID()
	out := cmd.OutOrStdout()

	if configsJSONOutput {
		items := make([]map[string]any, len(cfgs))
		for i, c := range cfgs {
			items[i] = map[string]any{
				"id":        c.ID,
				"name":      c.Name,
				"saved_at":  c.SavedAt,
				"version":   c.Version,
				"mep_items": len(c.MEPItems),
				"active":    c.ID == active,
			}
		}
		return printJSON(out, map[string]any{
			"configurations": items,
			"total":          len(items),
		})
	}

	if len(cfgs) == 0 {
		fmt.Fprintln(out, "No configurations found.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tNAME\tLENGTH\tTIERS\tITEMS\tSAVED")
	for _, c := range cfgs {
		id := c.ID
		if id == active {
			id += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			id,
			c.Name,
			c.RackLength,
			c.TierCount,
			len(c.MEPItems),
			humanize.Time(c.SavedAt),
		)
	}
	return w.Flush()
}

func runConfigsExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := loadProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	cfgs := p.manifest.Configurations()
	data, err := configio.Export(cfgs, time.Now())
	if err != nil {
		return err
	}
	if exportOutFile == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOutFile, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d configurations (%s) to %s\n",
		len(cfgs), humanize.Bytes(uint64(len(data))), exportOutFile)
	return nil
}

func runConfigsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var src io.Reader
	if args[0] == "-" {
		src = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	p, err := loadProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	added, err := configio.Import(ctx, p.manifest, src)
	if err != nil {
		if invalid, ok := err.(*configio.InvalidError); ok {
			for _, e := range invalid.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e.Error())
			}
		}
		return err
	}

	out := cmd.OutOrStdout()
	if configsJSONOutput {
		return printJSON(out, map[string]any{
			"imported":       len(added),
			"configurations": added,
		})
	}
	for _, c := range added {
		fmt.Fprintf(out, "Imported %s (%s)\n", c.Name, c.ID)
	}
	return nil
}
