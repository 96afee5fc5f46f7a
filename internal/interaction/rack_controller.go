package interaction

import (
	"context"
	"log/slog"
	"math"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/units"
)

// Rack highlight settings.
const (
	rackEmissive          uint32 = 0x1A3A5C
	rackEmissiveIntensity        = 0.25
	pivotName                    = "TradeRackPivot"
)

// RackController drives the rack: Z-only dragging through an invisible
// pivot at the rack's bounds center, and clearance edits on Y.
type RackController struct {
	env   *Env
	gizmo *scene.TranslateGizmo
	pivot *scene.Object

	rackID    string
	rack      *scene.Object
	selected  bool
	hovered   bool
	originals map[*scene.Object]*scene.Material
	pivotOff  float64 // rack Z minus pivot Z at drag start
}

// NewRackController returns a controller with no rack bound.
func NewRackController(env *Env) *RackController {
	pivot := scene.NewObject(pivotName)
	pivot.Visible = false
	pivot.ID = "trade-rack-pivot"
	rc := &RackController{
		env:       env,
		gizmo:     scene.NewTranslateGizmo(),
		pivot:     pivot,
		originals: make(map[*scene.Object]*scene.Material),
	}
	rc.gizmo.SetAxes(scene.AxisZ)
	rc.gizmo.OnChange(rc.onGizmoChange)
	return rc
}

// Gizmo exposes the rack gizmo.
func (rc *RackController) Gizmo() *scene.TranslateGizmo { return rc.gizmo }

// Rack returns the bound rack object.
func (rc *RackController) Rack() *scene.Object { return rc.rack }

// IsSelected reports whether the rack is selected.
func (rc *RackController) IsSelected() bool { return rc.selected }

// IsHovered reports whether the rack is hovered.
func (rc *RackController) IsHovered() bool { return rc.hovered }

// Dragging reports whether the rack gizmo is mid-drag.
func (rc *RackController) Dragging() bool { return rc.gizmo.Dragging() }

// Configuration returns the bound rack's configuration.
func (rc *RackController) Configuration() (rack.Configuration, bool) {
	if rc.rack == nil {
		return rack.Configuration{}, false
	}
	cfg, ok := rc.rack.Data.(rack.Configuration)
	return cfg, ok
}

// Rebind locates the rack by id after a rebuild, restores the selection
// appearance on the new instance and refreshes its snap points.
func (rc *RackController) Rebind(rackID string) {
	wasSelected := rc.selected
	rc.rackID = rackID
	rc.rack = rc.env.Scene.FindByID(rackID)
	rc.originals = make(map[*scene.Object]*scene.Material)
	rc.hovered = false
	if rc.rack == nil {
		slog.Warn("rack not found for controller", "component", "interaction", "rack_id", rackID)
		rc.selected = false
		rc.gizmo.Detach()
		return
	}
	if rc.pivot.Parent() == nil {
		rc.env.Scene.Add(rc.pivot)
	}
	rc.RefreshSnapPoints()
	rc.centerPivot()
	if wasSelected {
		rc.applyHighlight(0)
		rc.gizmo.Attach(rc.pivot)
	}
}

// RefreshSnapPoints replaces the rack-tagged points with ones computed from
// the rack's current world matrices.
func (rc *RackController) RefreshSnapPoints() {
	if rc.rack == nil || rc.env.Snaps == nil {
		return
	}
	rc.env.Scene.UpdateMatrixWorld()
	rc.env.Snaps.ReplaceOwner(rc.rackID, rack.RefreshSnapPoints(rc.rack, rc.rackID))
}

func (rc *RackController) centerPivot() {
	if rc.rack == nil {
		return
	}
	rc.env.Scene.UpdateMatrixWorld()
	rc.pivot.Position = rc.rack.WorldBox().Center()
	rc.pivot.UpdateMatrixWorld()
}

// Select selects the rack. The argument is ignored; there is one rack.
func (rc *RackController) Select(*scene.Object) {
	if rc.rack == nil {
		return
	}
	if rc.hovered {
		rc.ClearHover()
	}
	if rc.selected {
		return
	}
	rc.selected = true
	rc.applyHighlight(mep.SelectedColor)
	rc.centerPivot()
	rc.gizmo.Attach(rc.pivot)
	cfg, _ := rc.Configuration()
	rc.env.publish(events.TradeRackSelected, events.RackSelectedDetail{
		Rack:          events.RackInfo{ID: rc.rack.ID, Name: rc.rack.Name, Position: rc.rack.Position},
		Configuration: cfg,
		RackID:        rc.rackID,
	})
}

// Deselect clears the rack selection; nothing is published when the rack
// was not selected.
func (rc *RackController) Deselect() {
	if !rc.selected {
		return
	}
	rc.selected = false
	rc.gizmo.Detach()
	rc.restoreMaterials()
	rc.env.publish(events.TradeRackDeselected, events.RackDeselectedDetail{RackID: rc.rackID})
}

// SetHover highlights the rack unless it is selected.
func (rc *RackController) SetHover(*scene.Object) {
	if rc.rack == nil || rc.selected || rc.hovered {
		return
	}
	rc.hovered = true
	rc.applyHighlight(mep.HoverColor)
}

// ClearHover restores the rack appearance after hover.
func (rc *RackController) ClearHover() {
	if !rc.hovered {
		return
	}
	rc.hovered = false
	if !rc.selected {
		rc.restoreMaterials()
	}
}

// applyHighlight clones each member's original material on first use and
// tints the clone. A zero color reapplies the selected tint.
func (rc *RackController) applyHighlight(color uint32) {
	if color == 0 {
		color = mep.SelectedColor
	}
	for _, m := range rc.rack.Meshes() {
		orig, ok := rc.originals[m]
		if !ok {
			orig = m.Material
			rc.originals[m] = orig
		}
		if orig == nil {
			continue
		}
		c := orig.Clone()
		c.Color = color
		c.Emissive = rackEmissive
		c.EmissiveIntensity = rackEmissiveIntensity
		if m.Material != orig && m.Material != nil {
			m.Material.Dispose()
		}
		m.Material = c
	}
}

func (rc *RackController) restoreMaterials() {
	for m, orig := range rc.originals {
		if m.Material != orig && m.Material != nil {
			m.Material.Dispose()
		}
		m.Material = orig
	}
	rc.originals = make(map[*scene.Object]*scene.Material)
}

// BeginDrag starts a Z drag of the rack.
func (rc *RackController) BeginDrag() bool {
	if rc.rack == nil || !rc.selected {
		return false
	}
	if !rc.env.Scene.Contains(rc.rack) {
		rc.gizmo.Detach()
		return false
	}
	rc.centerPivot()
	rc.pivotOff = rc.rack.Position.Z - rc.pivot.Position.Z
	return rc.gizmo.BeginDrag()
}

// DragTo moves the pivot toward target; only Z is honored.
func (rc *RackController) DragTo(target geom.Vec3) bool {
	if !target.IsFinite() {
		slog.Warn("non-finite rack drag position rejected", "component", "interaction")
		return false
	}
	if !rc.gizmo.Dragging() {
		return false
	}
	return rc.gizmo.Translate(target)
}

// depthLimit is the Z clamp: the rack depth in meters.
func (rc *RackController) depthLimit() float64 {
	cfg, ok := rc.Configuration()
	if !ok {
		return math.Inf(1)
	}
	if d := cfg.RackWidth.Meters(); d > 0 {
		return d
	}
	return units.FtToM(rack.DefaultRackWidthFt)
}

func (rc *RackController) onGizmoChange() {
	if rc.rack == nil || !rc.gizmo.Dragging() {
		return
	}
	limit := rc.depthLimit()
	z := rc.pivot.Position.Z + rc.pivotOff
	z = math.Max(-limit, math.Min(limit, z))
	rc.rack.Position.Z = z
	rc.pivot.Position.Z = z - rc.pivotOff
	rc.RefreshSnapPoints()
}

// EndDrag saves the rack position and effective clearance to session state.
func (rc *RackController) EndDrag(ctx context.Context) {
	if !rc.gizmo.Dragging() {
		return
	}
	rc.gizmo.EndDrag()
	if rc.rack == nil {
		return
	}
	cfg, _ := rc.Configuration()
	clearance := rack.ClearanceFromY(cfg.MountType, cfg.BaselineY, rc.rack.Position.Y)
	rc.save(ctx, clearance)
}

// UpdateClearance moves the rack to clearanceIn inches from its baseline,
// persists the clearance (feet) and mirrors it into the configuration.
func (rc *RackController) UpdateClearance(ctx context.Context, clearanceIn float64) bool {
	if rc.rack == nil {
		slog.Warn("clearance edit without a rack", "component", "interaction")
		return false
	}
	if math.IsNaN(clearanceIn) || math.IsInf(clearanceIn, 0) {
		slog.Warn("non-finite clearance rejected", "component", "interaction")
		return false
	}
	cfg, _ := rc.Configuration()
	ft := clearanceIn / units.InchesPerFoot
	rc.rack.Position.Y = rack.ClearanceY(cfg.MountType, cfg.BaselineY, ft)
	cfg.ClearanceOffset = ft
	rc.rack.Data = cfg
	rc.RefreshSnapPoints()
	rc.centerPivot()
	rc.save(ctx, ft)
	return true
}

func (rc *RackController) save(ctx context.Context, clearanceFt float64) {
	cfg, _ := rc.Configuration()
	cfg.ClearanceOffset = clearanceFt
	pos := rc.rack.Position
	cfg.Position = &pos
	rc.rack.Data = cfg
	if rc.env.State != nil {
		if err := rc.env.State.SaveRackState(ctx, pos, clearanceFt); err != nil {
			slog.Error("save rack state failed", "component", "interaction", "action", "save_rack_state", "error", err)
		}
	}
	rc.env.publish(events.RackTemporaryStateChanged, events.RackTemporaryStateDetail{
		Position:     pos,
		TopClearance: clearanceFt,
	})
	rc.env.publish(events.TradeRackUpdated, events.RackUpdatedDetail{
		RackID:        rc.rackID,
		Position:      pos,
		Configuration: cfg,
	})
}
