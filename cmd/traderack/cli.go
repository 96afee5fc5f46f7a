package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hyperengineering/traderack/internal/config"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/store"
)

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// readJSONFile decodes the JSON file at path into v.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// project is the project database opened for an offline command.
type project struct {
	db       *store.SQLiteStore
	manifest *manifest.Store
}

// openProject opens the configured database and loads the project manifest.
func openProject(ctx context.Context, cfg *config.Config) (*project, error) {
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	ms := manifest.Open(ctx, db, manifest.WithHistoryLimit(cfg.Rack.HistoryLimit))
	return &project{db: db, manifest: ms}, nil
}

func (p *project) Close() error {
	return p.db.Close()
}

// loadProject loads configuration and opens the project it names.
func loadProject(ctx context.Context) (*project, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openProject(ctx, cfg)
}
