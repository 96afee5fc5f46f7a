// Package workspace ties the rack builder, snap lines, MEP factory,
// interaction controllers and both state stores into one scene. Every
// public method runs under a single lock, so callers see the serialized
// behavior of an event loop.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/interaction"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/snap"
	"github.com/hyperengineering/traderack/internal/snapline"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/tempstate"
	"github.com/hyperengineering/traderack/internal/validation"
)

// RackID is the id of the scene's rack. It is stable across rebuilds.
const RackID = "trade-rack"

var (
	ErrItemNotFound    = errors.New("mep item not found")
	ErrNothingSelected = errors.New("nothing selected")
)

// InvalidError carries field-level validation failures of a request.
type InvalidError struct {
	Errors []validation.ValidationError
}

func (e *InvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

func invalid(errs []validation.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &InvalidError{Errors: errs}
}

// Config tunes a Workspace.
type Config struct {
	Policy         rack.PositionPolicy
	SnapTolerance  float64
	HistoryLimit   int
	CameraDebounce time.Duration
	// Events receives change notifications. A new bus is created when nil.
	Events events.Publisher
}

// Workspace is the scene orchestrator.
type Workspace struct {
	mu sync.Mutex

	scene    *scene.Scene
	camera   *scene.Camera
	controls scene.Controls
	view     ViewMode
	saved3D  *savedView

	snaps   *snap.Index
	factory *mep.Factory
	lines   *snapline.Manager
	env     *interaction.Env
	arbiter *interaction.Arbiter
	ctrls   map[mep.Kind]*interaction.Controller
	rc      *interaction.RackController
	layers  map[mep.Kind]*scene.Object

	manifest *manifest.Store
	temp     *tempstate.Store
	bus      events.Publisher
	policy   rack.PositionPolicy

	params  rack.Parameters
	hovered string
}

// Open loads project and session state from db (nil keeps everything in
// memory), builds the rack and restores the session's MEP items.
func Open(ctx context.Context, db store.Store, cfg Config) *Workspace {
	var mopts []manifest.Option
	if cfg.HistoryLimit > 0 {
		mopts = append(mopts, manifest.WithHistoryLimit(cfg.HistoryLimit))
	}
	var topts []tempstate.Option
	if cfg.CameraDebounce > 0 {
		topts = append(topts, tempstate.WithCameraDebounce(cfg.CameraDebounce))
	}
	temp := tempstate.Open(ctx, db, topts...)
	mopts = append(mopts, manifest.WithSessionID(temp.SessionID()))
	ms := manifest.Open(ctx, db, mopts...)

	bus := cfg.Events
	if bus == nil {
		bus = events.NewBus()
	}
	policy := cfg.Policy
	if !policy.Valid() {
		policy = rack.TemporaryWins
	}

	w := &Workspace{
		scene:    scene.New(),
		camera:   scene.NewCamera(),
		controls: scene.Controls{EnableRotate: true, Mode: scene.MouseDefault, Enabled: true},
		view:     View3D,
		snaps:    snap.NewIndex(),
		factory:  mep.NewFactory(),
		ctrls:    make(map[mep.Kind]*interaction.Controller),
		layers:   make(map[mep.Kind]*scene.Object),
		manifest: ms,
		temp:     temp,
		bus:      bus,
		policy:   policy,
	}
	w.restoreCamera()
	w.lines = snapline.NewManager(w.scene,
		snapline.WithLengthSource(ms),
		snapline.WithParameters(func() (rack.Parameters, bool) { return w.params, true }),
	)
	w.env = &interaction.Env{
		Scene:         w.scene,
		Lines:         w.lines,
		Snaps:         w.snaps,
		Factory:       w.factory,
		State:         temp,
		Events:        bus,
		SnapTolerance: cfg.SnapTolerance,
	}
	w.arbiter = interaction.NewArbiter(w.scene, func() *scene.Camera { return w.camera })
	for _, k := range mep.Kinds {
		layer := scene.NewObject(k.LayerName())
		w.layers[k] = layer
		w.scene.Add(layer)
		c := interaction.NewController(k, w.env)
		w.ctrls[k] = c
		w.arbiter.Register(k.ObjectType(), c)
	}
	w.rc = interaction.NewRackController(w.env)
	w.arbiter.Register(scene.TypeTradeRack, w.rc)

	if p, ok := ms.ActiveParameters(); ok {
		w.params = p.Normalize()
	} else {
		w.params = rack.DefaultParameters()
	}
	w.rebuild(ctx)

	items := temp.ActiveItems()
	if len(items) == 0 {
		items = ms.MEPItems()
		if len(items) > 0 {
			temp.SetActiveItems(ctx, items)
		}
	}
	w.loadItems(items)

	slog.Info("workspace opened",
		"component", "workspace",
		"session_id", temp.SessionID(),
		"mep_items", len(items),
		"configurations", len(ms.Configurations()),
	)
	return w
}

// Close flushes pending session writes.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.temp.Close(ctx); err != nil {
		return fmt.Errorf("close workspace: %w", err)
	}
	return nil
}

// Manifest exposes the project store.
func (w *Workspace) Manifest() *manifest.Store { return w.manifest }

// Session exposes the session store.
func (w *Workspace) Session() *tempstate.Store { return w.temp }

// Events returns the publisher change notifications go to.
func (w *Workspace) Events() events.Publisher { return w.bus }

// rebuild replaces the rack with one built from the current parameters,
// the session's preserved position and clearance, and the building shell.
// MEP groups are regenerated for the new rack length and the selection is
// re-resolved by id.
func (w *Workspace) rebuild(ctx context.Context) {
	opts := rack.Options{
		RackID:    RackID,
		Preserved: w.temp.RackPreservation(),
		Policy:    w.policy,
	}
	if bs, ok := w.manifest.BuildingShell(); ok {
		opts.Building = bs.BuildingContext()
	}
	res := rack.Build(w.params, opts)

	if old := w.scene.FindByID(RackID); old != nil {
		w.scene.Remove(old)
	}
	w.scene.Add(res.Object)
	w.snaps.ReplaceOwner(RackID, res.SnapPoints)
	w.rc.Rebind(RackID)

	length := w.lines.AvailableDuctLength()
	for _, k := range mep.Kinds {
		for _, g := range w.layers[k].Children() {
			item, ok := g.Data.(mep.Item)
			if !ok {
				continue
			}
			if !w.factory.Rebuild(g, item, length) {
				continue
			}
			w.factory.ApplyState(g, mep.StateNormal)
			g.UpdateMatrixWorld()
			w.snaps.ReplaceOwner(g.ID, w.factory.SnapPoints(g, length))
		}
	}
	w.reselect()
	w.retier(ctx)

	slog.Debug("rack rebuilt",
		"component", "workspace",
		"rack_id", RackID,
		"bays", res.Configuration.BayCount,
		"tiers", res.Configuration.TierCount,
		"snap_points", len(res.SnapPoints),
	)
}

// retier recomputes the tier of every MEP group against the current tier
// spaces and writes changed items back to the session in one update.
func (w *Workspace) retier(ctx context.Context) {
	var changed []mep.Item
	for _, k := range mep.Kinds {
		c := w.ctrls[k]
		for _, g := range w.layers[k].Children() {
			item, ok := g.Data.(mep.Item)
			if !ok {
				continue
			}
			g.UpdateMatrixWorld()
			res := c.CalculateTier(g.WorldPosition().Y)
			if sameTier(item.Tier, res.Tier) && item.TierName == res.TierName {
				continue
			}
			item.Tier, item.TierName = res.Tier, res.TierName
			g.Data = item
			item = item.Clone()
			pos := g.Position
			item.Position = &pos
			changed = append(changed, item)
		}
	}
	if len(changed) == 0 {
		return
	}
	if _, err := w.temp.UpsertMEPItems(ctx, changed); err != nil {
		slog.Error("persist retiered items failed", "component", "workspace", "action", "retier", "error", err)
	}
	last := changed[len(changed)-1]
	w.bus.Publish(events.MEPItemsUpdated, events.NewMEPItemsUpdated(w.temp.ActiveItems(), last.Type, last.ID))
	slog.Debug("tiers recomputed", "component", "workspace", "action", "retier", "changed", len(changed))
}

func sameTier(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// reselect re-resolves each controller's selection by id against the
// current scene and reapplies it so appearance, gizmo, tier and
// measurements reflect the rebuilt rack.
func (w *Workspace) reselect() {
	for _, k := range mep.Kinds {
		c := w.ctrls[k]
		sel := c.Selected()
		if sel == nil {
			continue
		}
		id := sel.ID
		if !w.scene.Contains(sel) {
			c.Reconcile()
			sel = w.scene.FindByID(id)
		}
		if sel == nil {
			slog.Debug("selection lost after rebuild", "component", "workspace", "item_id", id)
			continue
		}
		c.Select(sel)
	}
}

// loadItems replaces every MEP group with groups for items.
func (w *Workspace) loadItems(items []mep.Item) {
	for _, k := range mep.Kinds {
		c := w.ctrls[k]
		c.Deselect()
		c.ClearHover()
		for _, g := range w.layers[k].Children() {
			w.snaps.RemoveOwner(g.ID)
			w.factory.Dispose(g)
			w.layers[k].Remove(g)
		}
	}
	for _, it := range items {
		if !it.Type.Valid() {
			slog.Warn("mep item with unknown type skipped", "component", "workspace", "item_id", it.ID, "kind", string(it.Type))
			continue
		}
		if _, _, dup := w.find(it.ID); dup {
			it = it.Clone()
			it.ID = w.copyID(it.ID)
		}
		w.addGroup(it)
	}
}

func (w *Workspace) addGroup(item mep.Item) *scene.Object {
	pos := w.defaultPosition(item)
	if item.Position != nil && item.Position.IsFinite() {
		pos = *item.Position
	}
	length := w.lines.AvailableDuctLength()
	g := w.factory.CreateGroup(item, length, pos)
	w.layers[item.Type].Add(g)
	g.UpdateMatrixWorld()
	w.snaps.ReplaceOwner(g.ID, w.factory.SnapPoints(g, length))
	return g
}

// items returns the scene's MEP items with their current positions.
func (w *Workspace) items() []mep.Item {
	var out []mep.Item
	for _, k := range mep.Kinds {
		for _, g := range w.layers[k].Children() {
			item, ok := g.Data.(mep.Item)
			if !ok {
				continue
			}
			item = item.Clone()
			pos := g.Position
			item.Position = &pos
			out = append(out, item)
		}
	}
	return out
}

// find returns the group with id.
func (w *Workspace) find(id string) (*scene.Object, mep.Kind, bool) {
	for _, k := range mep.Kinds {
		for _, g := range w.layers[k].Children() {
			if g.ID == id {
				return g, k, true
			}
		}
	}
	return nil, "", false
}
