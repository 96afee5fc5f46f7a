package workspace

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hyperengineering/traderack/internal/configio"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/validation"
)

// SaveConfiguration stores the current rack, at its current position, and
// the scene's MEP items as a saved configuration. An empty id creates a new
// configuration. The save is permanent, so the session's temporary rack
// position is cleared.
func (w *Workspace) SaveConfiguration(ctx context.Context, id, name string) (manifest.SavedConfiguration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := invalid(validation.ValidateName("name", name)); err != nil {
		return manifest.SavedConfiguration{}, err
	}
	params := w.params.Clone()
	if r := w.rc.Rack(); r != nil {
		pos := r.Position
		params.Position = &pos
	}
	saved := w.manifest.SaveConfiguration(ctx, manifest.SaveRequest{
		ID:         id,
		Name:       name,
		Parameters: params,
		MEPItems:   w.items(),
	})
	w.params = saved.Parameters.Clone()
	if err := w.temp.ClearRackPosition(ctx); err != nil {
		slog.Warn("temporary rack position not cleared", "component", "workspace", "error", err)
	}
	slog.Info("configuration saved", "component", "workspace", "action", "save", "config_id", saved.ID, "name", saved.Name)
	return saved, nil
}

// ApplyConfiguration loads configuration id: its parameters rebuild the
// rack and its MEP items replace the scene's.
func (w *Workspace) ApplyConfiguration(ctx context.Context, id string) (manifest.SavedConfiguration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg, err := w.manifest.ApplyConfiguration(ctx, id)
	if err != nil {
		return manifest.SavedConfiguration{}, err
	}
	w.params = cfg.Parameters.Normalize()
	w.rebuild(ctx)
	w.temp.SetActiveItems(ctx, cfg.MEPItems)
	w.loadItems(cfg.MEPItems)
	w.retier(ctx)
	w.publishRackUpdated()
	slog.Info("configuration applied", "component", "workspace", "action", "apply", "config_id", id, "mep_items", len(cfg.MEPItems))
	return cfg, nil
}

// ActivateConfiguration marks id active without loading it.
func (w *Workspace) ActivateConfiguration(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.manifest.ActivateConfiguration(ctx, id)
}

// DeleteConfiguration removes configuration id.
func (w *Workspace) DeleteConfiguration(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.manifest.DeleteConfiguration(ctx, id)
}

// ExportConfigurations encodes the saved configurations as an export file.
func (w *Workspace) ExportConfigurations(now time.Time) ([]byte, error) {
	return configio.Export(w.manifest.Configurations(), now)
}

// ImportConfigurations appends the configurations of an export file.
func (w *Workspace) ImportConfigurations(ctx context.Context, r io.Reader) ([]manifest.SavedConfiguration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return configio.Import(ctx, w.manifest, r)
}
