package interaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/scene"
)

// KindSpec holds the per-kind interaction settings.
type KindSpec struct {
	Kind          mep.Kind
	Axes          scene.Axis
	TierTolerance float64
}

// SpecFor returns the interaction settings of kind k.
func SpecFor(k mep.Kind) KindSpec {
	switch k {
	case mep.Duct, mep.CableTray:
		return KindSpec{Kind: k, Axes: scene.AxisY | scene.AxisZ, TierTolerance: DuctTierTolerance}
	default:
		return KindSpec{Kind: k, Axes: scene.AxisY | scene.AxisZ, TierTolerance: PipeTierTolerance}
	}
}

// Controller drives one MEP kind: Idle, Hovered, Selected and Dragging.
// Transitions come from the Arbiter; the controller never picks on its own.
type Controller struct {
	spec  KindSpec
	env   *Env
	gizmo *scene.TranslateGizmo

	selected     *scene.Object
	hovered      *scene.Object
	measurements []Measurement
	guides       []Guide
}

// NewController returns a controller for kind k.
func NewController(k mep.Kind, env *Env) *Controller {
	c := &Controller{spec: SpecFor(k), env: env, gizmo: scene.NewTranslateGizmo()}
	c.gizmo.SetAxes(c.spec.Axes)
	c.gizmo.OnChange(c.onGizmoChange)
	return c
}

// Kind returns the controller's kind.
func (c *Controller) Kind() mep.Kind { return c.spec.Kind }

// Gizmo exposes the controller's translate gizmo.
func (c *Controller) Gizmo() *scene.TranslateGizmo { return c.gizmo }

// Selected returns the selected group or nil.
func (c *Controller) Selected() *scene.Object { return c.selected }

// IsSelected reports whether the controller holds a selection.
func (c *Controller) IsSelected() bool { return c.selected != nil }

// Hovered returns the hovered group or nil.
func (c *Controller) Hovered() *scene.Object { return c.hovered }

// Dragging reports whether the gizmo is mid-drag.
func (c *Controller) Dragging() bool { return c.gizmo.Dragging() }

// Measurements returns the current measurement lines.
func (c *Controller) Measurements() []Measurement {
	return append([]Measurement(nil), c.measurements...)
}

// Guides returns the snap guides of the current drag.
func (c *Controller) Guides() []Guide { return append([]Guide(nil), c.guides...) }

func (c *Controller) owns(obj *scene.Object) bool {
	return obj != nil && obj.Tag.Type == c.spec.Kind.ObjectType()
}

// Select makes obj the selection: selected appearance, gizmo attached,
// measurements and tier recomputed.
func (c *Controller) Select(obj *scene.Object) {
	if !c.owns(obj) {
		slog.Warn("select ignored, object not owned by controller", "component", "interaction", "kind", string(c.spec.Kind))
		return
	}
	if c.selected != nil && c.selected != obj {
		c.Deselect()
	}
	if c.hovered == obj {
		c.hovered = nil
	}
	c.selected = obj
	c.env.Factory.ApplyState(obj, mep.StateSelected)
	c.gizmo.Attach(obj)
	c.refreshMeasurements()
	c.assignTier(obj)
	slog.Debug("mep selected", "component", "interaction", "kind", string(c.spec.Kind), "item_id", obj.ID)
}

// Deselect clears the selection.
func (c *Controller) Deselect() {
	if c.selected == nil {
		return
	}
	obj := c.selected
	c.selected = nil
	c.gizmo.Detach()
	c.env.Factory.ApplyState(obj, mep.StateNormal)
	c.measurements = nil
	c.guides = nil
}

// SetHover highlights obj unless it is the selection.
func (c *Controller) SetHover(obj *scene.Object) {
	if !c.owns(obj) {
		return
	}
	if c.hovered != nil && c.hovered != obj {
		c.ClearHover()
	}
	if obj == c.selected {
		return
	}
	c.hovered = obj
	c.env.Factory.ApplyState(obj, mep.StateHover)
}

// ClearHover restores the hovered object's appearance.
func (c *Controller) ClearHover() {
	if c.hovered == nil {
		return
	}
	if c.hovered != c.selected {
		c.env.Factory.ApplyState(c.hovered, mep.StateNormal)
	}
	c.hovered = nil
}

// Reconcile drops a selection or hover whose object has left the scene.
func (c *Controller) Reconcile() {
	if c.selected != nil && !c.env.Scene.Contains(c.selected) {
		slog.Debug("stale selection cleared", "component", "interaction", "item_id", c.selected.ID)
		c.gizmo.Detach()
		c.selected = nil
		c.measurements = nil
		c.guides = nil
	}
	if c.hovered != nil && !c.env.Scene.Contains(c.hovered) {
		c.hovered = nil
	}
}

// BeginDrag starts dragging the selection.
func (c *Controller) BeginDrag() bool {
	c.Reconcile()
	c.guides = nil
	return c.gizmo.BeginDrag()
}

// DragTo moves the selection toward target and applies snapping.
// Non-finite targets are rejected without a state change.
func (c *Controller) DragTo(target geom.Vec3) bool {
	if !target.IsFinite() {
		slog.Warn("non-finite drag position rejected", "component", "interaction", "kind", string(c.spec.Kind))
		return false
	}
	if !c.gizmo.Dragging() {
		return false
	}
	return c.gizmo.Translate(target)
}

func (c *Controller) onGizmoChange() {
	obj := c.gizmo.Object()
	if obj == nil || !c.gizmo.Dragging() {
		return
	}
	item, _ := obj.Data.(mep.Item)
	halfY, halfZ := item.HalfExtents()
	p, guides := SnapPosition(obj.Position, halfY, halfZ, c.env.Lines.Lines(), c.env.tolerance(), c.spec.Axes)
	obj.Position = p
	c.guides = guides
}

// EndDrag finishes a drag, clears guides, persists the position and
// recreates the measurement lines.
func (c *Controller) EndDrag(ctx context.Context) {
	if !c.gizmo.Dragging() {
		return
	}
	c.gizmo.EndDrag()
	c.guides = nil
	obj := c.selected
	if obj == nil {
		return
	}
	c.assignTier(obj)
	c.refreshSnapPoints(obj)
	c.refreshMeasurements()
	c.persist(ctx, obj)
}

// UpdateDimensions merges dims into obj's item and regenerates its meshes
// in place so the group (and the gizmo on it) keeps its identity.
func (c *Controller) UpdateDimensions(ctx context.Context, obj *scene.Object, dims mep.Dimensions) error {
	if !c.owns(obj) {
		return fmt.Errorf("update dimensions: object is not a %s", c.spec.Kind)
	}
	item, _ := obj.Data.(mep.Item)
	next := dims.Apply(item)
	if err := next.Validate(); err != nil {
		slog.Warn("dimension edit rejected", "component", "interaction", "item_id", obj.ID, "error", err)
		return err
	}
	if !c.env.Factory.Rebuild(obj, next, c.env.Lines.AvailableDuctLength()) {
		return mep.ErrInvalidDimensions
	}
	state := mep.StateNormal
	switch obj {
	case c.selected:
		state = mep.StateSelected
	case c.hovered:
		state = mep.StateHover
	}
	c.env.Factory.ApplyState(obj, state)
	c.assignTier(obj)
	c.refreshSnapPoints(obj)
	if obj == c.selected {
		c.refreshMeasurements()
	}
	c.persist(ctx, obj)
	return nil
}

// CalculateTier resolves the tier of height y for this kind.
func (c *Controller) CalculateTier(y float64) TierResult {
	return CalculateTier(c.env.Lines.TierSpaces(), y, c.spec.TierTolerance)
}

func (c *Controller) assignTier(obj *scene.Object) {
	item, ok := obj.Data.(mep.Item)
	if !ok {
		return
	}
	obj.UpdateMatrixWorld()
	res := c.CalculateTier(obj.WorldPosition().Y)
	item.Tier = res.Tier
	item.TierName = res.TierName
	obj.Data = item
}

func (c *Controller) refreshSnapPoints(obj *scene.Object) {
	if c.env.Snaps == nil {
		return
	}
	obj.UpdateMatrixWorld()
	c.env.Snaps.ReplaceOwner(obj.ID, c.env.Factory.SnapPoints(obj, c.env.Lines.AvailableDuctLength()))
}

func (c *Controller) refreshMeasurements() {
	c.measurements = nil
	if c.selected == nil {
		return
	}
	item, _ := c.selected.Data.(mep.Item)
	_, halfZ := item.HalfExtents()
	c.selected.UpdateMatrixWorld()
	c.measurements = measureToPosts(c.selected.WorldPosition(), halfZ, c.env.Lines.Lines())
}

// persist writes the item with its current position into session state and
// announces the change. A storage failure is logged; the scene stays
// authoritative.
func (c *Controller) persist(ctx context.Context, obj *scene.Object) {
	item, ok := obj.Data.(mep.Item)
	if !ok {
		return
	}
	pos := obj.Position
	item.Position = &pos
	obj.Data = item
	if c.env.State == nil {
		return
	}
	items, err := c.env.State.UpsertMEPItem(ctx, item)
	if err != nil {
		slog.Error("persist mep item failed", "component", "interaction", "action", "persist", "item_id", item.ID, "error", err)
		return
	}
	c.env.publish(events.MEPItemsUpdated, events.NewMEPItemsUpdated(items, c.spec.Kind, item.ID))
}
