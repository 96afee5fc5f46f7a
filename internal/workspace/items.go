package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/validation"
	"github.com/oklog/ulid/v2"
)

// Items returns the scene's MEP items with their current positions.
func (w *Workspace) Items() []mep.Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.items()
}

// Item returns one MEP item.
func (w *Workspace) Item(id string) (mep.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, _, ok := w.find(id)
	if !ok {
		return mep.Item{}, fmt.Errorf("item %q: %w", id, ErrItemNotFound)
	}
	item, _ := g.Data.(mep.Item)
	item = item.Clone()
	pos := g.Position
	item.Position = &pos
	return item, nil
}

// defaultPosition rests item on the lowest beam at the rack center.
func (w *Workspace) defaultPosition(item mep.Item) geom.Vec3 {
	c := w.lines.RackCenter()
	halfY, _ := item.HalfExtents()
	if spaces := w.lines.TierSpaces(); len(spaces) > 0 {
		c.Y = spaces[len(spaces)-1].Bottom + halfY
	}
	return c
}

// AddMEPItem validates item, places it in the scene and records it in the
// session and the project. An empty id gets a generated one; a missing
// position rests the item on the lowest beam.
func (w *Workspace) AddMEPItem(ctx context.Context, item mep.Item) (mep.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := invalid(validation.ValidateMEPItem(0, item)); err != nil {
		return mep.Item{}, err
	}
	if item.ID == "" {
		item.ID = newItemID(item.Type)
	}
	if _, _, exists := w.find(item.ID); exists {
		return mep.Item{}, invalid([]validation.ValidationError{{Field: "id", Message: "already exists"}})
	}
	if item.Position == nil || !item.Position.IsFinite() {
		p := w.defaultPosition(item)
		item.Position = &p
	}
	tier := w.ctrls[item.Type].CalculateTier(item.Position.Y)
	item.Tier, item.TierName = tier.Tier, tier.TierName

	g := w.addGroup(item)
	item, _ = g.Data.(mep.Item)
	if _, err := w.manifest.AddMEPItem(ctx, item); err != nil {
		slog.Warn("mep item not recorded in project", "component", "workspace", "item_id", item.ID, "error", err)
	}
	w.persistItem(ctx, item)
	slog.Info("mep item added", "component", "workspace", "action", "add", "item_id", item.ID, "kind", string(item.Type))
	return item.Clone(), nil
}

// UpdateDimensions applies a dimension edit to item id in place.
func (w *Workspace) UpdateDimensions(ctx context.Context, id string, dims mep.Dimensions) (mep.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, k, ok := w.find(id)
	if !ok {
		return mep.Item{}, fmt.Errorf("item %q: %w", id, ErrItemNotFound)
	}
	cur, _ := g.Data.(mep.Item)
	if err := invalid(validation.ValidateMEPItem(0, dims.Apply(cur))); err != nil {
		return mep.Item{}, err
	}
	if err := w.ctrls[k].UpdateDimensions(ctx, g, dims); err != nil {
		return mep.Item{}, err
	}
	item, _ := g.Data.(mep.Item)
	return item.Clone(), nil
}

// DeleteMEPItem removes item id from the scene, the session and the
// project.
func (w *Workspace) DeleteMEPItem(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, k, ok := w.find(id)
	if !ok {
		return fmt.Errorf("item %q: %w", id, ErrItemNotFound)
	}
	c := w.ctrls[k]
	if c.Selected() == g {
		c.Deselect()
	}
	if c.Hovered() == g {
		c.ClearHover()
	}
	w.layers[k].Remove(g)
	w.factory.Dispose(g)
	w.snaps.RemoveOwner(id)
	c.Reconcile()

	w.temp.RemoveMEPItem(ctx, id)
	if err := w.manifest.RemoveMEPItem(ctx, id); err != nil && !errors.Is(err, manifest.ErrItemNotFound) {
		slog.Warn("mep item not removed from project", "component", "workspace", "item_id", id, "error", err)
	}
	w.bus.Publish(events.MEPItemsUpdated, events.NewMEPItemsUpdated(w.temp.ActiveItems(), k, id))
	slog.Info("mep item deleted", "component", "workspace", "action", "delete", "item_id", id)
	return nil
}

// CloneMEPItem copies item id beside the original under a fresh id and
// selects the copy.
func (w *Workspace) CloneMEPItem(ctx context.Context, id string) (mep.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, k, ok := w.find(id)
	if !ok {
		return mep.Item{}, fmt.Errorf("item %q: %w", id, ErrItemNotFound)
	}
	src, _ := g.Data.(mep.Item)
	cp := src.Clone()
	cp.ID = newItemID(src.Type)
	if cp.Name != "" {
		cp.Name += " (copy)"
	}
	_, halfZ := src.HalfExtents()
	pos := g.Position
	pos.Z += 2 * halfZ
	cp.Position = &pos

	cg := w.addGroup(cp)
	cp, _ = cg.Data.(mep.Item)
	if _, err := w.manifest.AddMEPItem(ctx, cp); err != nil {
		slog.Warn("mep copy not recorded in project", "component", "workspace", "item_id", cp.ID, "error", err)
	}
	w.persistItem(ctx, cp)

	w.rc.Deselect()
	for _, other := range mep.Kinds {
		if other != k {
			w.ctrls[other].Deselect()
		}
	}
	w.ctrls[k].Select(cg)
	w.recordSelection(ctx)
	return cp.Clone(), nil
}

func newItemID(k mep.Kind) string {
	return string(k) + "-" + ulid.Make().String()
}

// copyID returns the first free "<base>_kN" id. Session state matches
// items by base id, so a "_k" group persists onto the item it repeats.
func (w *Workspace) copyID(id string) string {
	base := mep.BaseID(id)
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s_k%d", base, n)
		if _, _, taken := w.find(cand); !taken {
			return cand
		}
	}
}

// persistItem writes item into the session and announces the new list.
func (w *Workspace) persistItem(ctx context.Context, item mep.Item) {
	items, err := w.temp.UpsertMEPItem(ctx, item)
	if err != nil {
		slog.Error("persist mep item failed", "component", "workspace", "action", "persist", "item_id", item.ID, "error", err)
		return
	}
	w.bus.Publish(events.MEPItemsUpdated, events.NewMEPItemsUpdated(items, item.Type, item.ID))
}
