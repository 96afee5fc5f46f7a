package workspace

import (
	"context"
	"log/slog"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/interaction"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/tempstate"
)

// Selection describes what is selected.
type Selection struct {
	Type         scene.ObjectType          `json:"type,omitempty"`
	ID           string                    `json:"id,omitempty"`
	Item         *mep.Item                 `json:"item,omitempty"`
	Position     *geom.Vec3                `json:"position,omitempty"`
	Measurements []interaction.Measurement `json:"measurements"`
	Guides       []interaction.Guide       `json:"guides"`
	Dragging     bool                      `json:"dragging"`
	Cursor       interaction.Cursor        `json:"cursor"`
}

// kindsSelected lists the MEP kinds whose controller holds a selection.
// The arbiter keeps this at most one.
func kindsSelected(w *Workspace) []mep.Kind {
	var out []mep.Kind
	for _, k := range mep.Kinds {
		if w.ctrls[k].IsSelected() {
			out = append(out, k)
		}
	}
	return out
}

// Selection returns the current selection.
func (w *Workspace) Selection() Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selection()
}

func (w *Workspace) selection() Selection {
	sel := Selection{
		Measurements: []interaction.Measurement{},
		Guides:       []interaction.Guide{},
		Cursor:       w.arbiter.Cursor(),
	}
	if w.rc.IsSelected() {
		sel.Type = scene.TypeTradeRack
		sel.ID = RackID
		sel.Dragging = w.rc.Dragging()
		if r := w.rc.Rack(); r != nil {
			p := r.Position
			sel.Position = &p
		}
		return sel
	}
	for _, k := range kindsSelected(w) {
		c := w.ctrls[k]
		obj := c.Selected()
		sel.Type = k.ObjectType()
		sel.ID = obj.ID
		if item, ok := obj.Data.(mep.Item); ok {
			item = item.Clone()
			p := obj.Position
			item.Position = &p
			sel.Item = &item
			sel.Position = &p
		}
		sel.Measurements = append(sel.Measurements, c.Measurements()...)
		sel.Guides = append(sel.Guides, c.Guides()...)
		sel.Dragging = c.Dragging()
	}
	return sel
}

// Click routes a pointer click at ndc through the arbiter.
func (w *Workspace) Click(ctx context.Context, ndc geom.Vec2) interaction.PickResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := w.arbiter.Click(ndc)
	if res.Skipped {
		return res
	}
	w.recordSelection(ctx)
	return res
}

// Move routes a pointer move at ndc through the arbiter.
func (w *Workspace) Move(ctx context.Context, ndc geom.Vec2) interaction.PickResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := w.arbiter.Move(ndc)
	if res.Skipped || res.ID == w.hovered {
		return res
	}
	w.hovered = res.ID
	hovered := []string{}
	if res.ID != "" {
		hovered = append(hovered, res.ID)
	}
	if err := w.temp.UpdateUI(ctx, func(ui *tempstate.UI) { ui.HoveredObjects = hovered }); err != nil {
		slog.Warn("hover not persisted", "component", "workspace", "error", err)
	}
	return res
}

// Deselect clears every selection.
func (w *Workspace) Deselect(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.arbiter.DeselectAll()
	w.recordSelection(ctx)
}

// Select selects the object with id directly, as a click on it would.
func (w *Workspace) Select(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == RackID {
		w.deselectMEP()
		w.rc.Select(nil)
		w.recordSelection(ctx)
		return nil
	}
	g, k, ok := w.find(id)
	if !ok {
		return ErrItemNotFound
	}
	w.rc.Deselect()
	for _, other := range mep.Kinds {
		if other != k {
			w.ctrls[other].Deselect()
		}
	}
	w.ctrls[k].Select(g)
	w.recordSelection(ctx)
	return nil
}

func (w *Workspace) deselectMEP() {
	for _, k := range mep.Kinds {
		w.ctrls[k].Deselect()
	}
}

func (w *Workspace) recordSelection(ctx context.Context) {
	sel := w.selection()
	selected := []string{}
	if sel.ID != "" {
		selected = append(selected, sel.ID)
	}
	if err := w.temp.UpdateUI(ctx, func(ui *tempstate.UI) { ui.SelectedObjects = selected }); err != nil {
		slog.Warn("selection not persisted", "component", "workspace", "error", err)
	}
	itemID := ""
	if sel.Item != nil {
		itemID = sel.ID
	}
	w.temp.SetSelectedItem(ctx, itemID)
}

// BeginDrag starts dragging the selected object's gizmo.
func (w *Workspace) BeginDrag(ctx context.Context) (Selection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.rc.IsSelected():
		if !w.rc.BeginDrag() {
			return Selection{}, ErrNothingSelected
		}
		if err := w.temp.SetDragging(ctx, true); err != nil {
			slog.Warn("drag state not persisted", "component", "workspace", "error", err)
		}
	default:
		ks := kindsSelected(w)
		if len(ks) == 0 || !w.ctrls[ks[0]].BeginDrag() {
			return Selection{}, ErrNothingSelected
		}
	}
	return w.selection(), nil
}

// DragTo moves the dragged gizmo toward target. MEP items snap to nearby
// beam faces and post faces; the rack moves on Z only.
func (w *Workspace) DragTo(target geom.Vec3) (Selection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.rc.Dragging():
		w.rc.DragTo(target)
	default:
		ks := kindsSelected(w)
		if len(ks) == 0 || !w.ctrls[ks[0]].Dragging() {
			return Selection{}, ErrNothingSelected
		}
		w.ctrls[ks[0]].DragTo(target)
	}
	return w.selection(), nil
}

// EndDrag finishes the drag and persists the result to the session.
func (w *Workspace) EndDrag(ctx context.Context) Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rc.Dragging() {
		w.rc.EndDrag(ctx)
		if err := w.temp.SetDragging(ctx, false); err != nil {
			slog.Warn("drag state not persisted", "component", "workspace", "error", err)
		}
		w.retier(ctx)
		w.refreshSelection()
		return w.selection()
	}
	for _, k := range kindsSelected(w) {
		w.ctrls[k].EndDrag(ctx)
	}
	return w.selection()
}
