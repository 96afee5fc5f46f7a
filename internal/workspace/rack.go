package workspace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/snapline"
	"github.com/hyperengineering/traderack/internal/validation"
)

// RackView is the rack as clients see it.
type RackView struct {
	ID            string                            `json:"id"`
	Configuration rack.Configuration                `json:"configuration"`
	Position      geom.Vec3                         `json:"position"`
	Selected      bool                              `json:"selected"`
	Hovered       bool                              `json:"hovered"`
	Dragging      bool                              `json:"dragging"`
	SnapLines     snapline.Lines                    `json:"snapLines"`
	TierSpaces    []snapline.TierSpace              `json:"tierSpaces"`
	SnapPoints    int                               `json:"snapPoints"`
	Preserved     *rack.Preservation                `json:"preserved,omitempty"`
	Building      *manifest.BuildingShellParameters `json:"buildingShell,omitempty"`
}

// Rack describes the current rack.
func (w *Workspace) Rack() RackView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rackView()
}

func (w *Workspace) rackView() RackView {
	cfg, _ := w.rc.Configuration()
	v := RackView{
		ID:            RackID,
		Configuration: cfg,
		Selected:      w.rc.IsSelected(),
		Hovered:       w.rc.IsHovered(),
		Dragging:      w.rc.Dragging(),
		SnapLines:     w.lines.Lines(),
		TierSpaces:    w.lines.TierSpaces(),
		SnapPoints:    len(w.snaps.ByOwner(RackID)),
		Preserved:     w.temp.RackPreservation(),
	}
	if r := w.rc.Rack(); r != nil {
		v.Position = r.Position
	}
	if bs, ok := w.manifest.BuildingShell(); ok {
		v.Building = &bs
	}
	return v
}

// Parameters returns the parameters the rack was last built from.
func (w *Workspace) Parameters() rack.Parameters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params.Clone()
}

// UpdateParameters validates p, records it as the active parameters and
// rebuilds the rack. field names the edited parameter for the history
// entry; empty means several.
func (w *Workspace) UpdateParameters(ctx context.Context, p rack.Parameters, field string) (RackView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := invalid(validation.ValidateRackParameters("", p)); err != nil {
		return RackView{}, err
	}
	if field == "" {
		field = "parameters"
	}
	w.params = p.Normalize()
	w.manifest.RecordParameterChange(ctx, w.params, field)
	w.rebuild(ctx)
	w.publishRackUpdated()
	slog.Info("rack parameters updated", "component", "workspace", "action", "update_parameters", "field", field)
	return w.rackView(), nil
}

// UpdateClearance moves the rack to clearanceIn inches from its baseline.
func (w *Workspace) UpdateClearance(ctx context.Context, clearanceIn float64) (RackView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	maxIn := validation.MaxRackLengthFt * 12
	if e := validation.ValidateRange("topClearance", clearanceIn, -maxIn, maxIn); e != nil {
		return RackView{}, invalid([]validation.ValidationError{*e})
	}
	if !w.rc.UpdateClearance(ctx, clearanceIn) {
		return RackView{}, fmt.Errorf("update clearance: no rack in scene")
	}
	w.retier(ctx)
	w.refreshSelection()
	return w.rackView(), nil
}

// UpdateBuildingShell stores the shell parameters and rebuilds the rack,
// which takes its deck clearance from the corridor height and beam depth.
func (w *Workspace) UpdateBuildingShell(ctx context.Context, p manifest.BuildingShellParameters) (RackView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var c validation.Collector
	c.Add(validation.ValidateRange("corridorWidth", p.CorridorWidth.TotalFeet(), 0, validation.MaxRackLengthFt))
	c.Add(validation.ValidateRange("corridorHeight", p.CorridorHeight.TotalFeet(), 0, validation.MaxRackLengthFt))
	c.Add(validation.ValidateRange("ceilingHeight", p.CeilingHeight.TotalFeet(), 0, validation.MaxRackLengthFt))
	c.Add(validation.ValidateRange("beamDepth", p.BeamDepth.TotalFeet(), 0, validation.MaxRackLengthFt))
	if err := invalid(c.Errors()); err != nil {
		return RackView{}, err
	}
	w.manifest.UpdateBuildingShell(ctx, p)
	w.rebuild(ctx)
	w.publishRackUpdated()
	return w.rackView(), nil
}

// refreshSelection recomputes tier and measurements of the selected item
// after the rack moved.
func (w *Workspace) refreshSelection() {
	for _, k := range kindsSelected(w) {
		c := w.ctrls[k]
		c.Select(c.Selected())
	}
}

func (w *Workspace) publishRackUpdated() {
	r := w.rc.Rack()
	if r == nil {
		return
	}
	cfg, _ := w.rc.Configuration()
	w.bus.Publish(events.TradeRackUpdated, events.RackUpdatedDetail{
		RackID:        RackID,
		Position:      r.Position,
		Configuration: cfg,
	})
}
