package interaction

import (
	"log/slog"
	"sort"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/scene"
)

// Cursor is the pointer style the UI should show.
type Cursor string

// Cursor values.
const (
	CursorDefault Cursor = "default"
	CursorPointer Cursor = "pointer"
)

// PickResult describes the outcome of one pointer event.
type PickResult struct {
	Hit      bool             `json:"hit"`
	Type     scene.ObjectType `json:"type,omitempty"`
	ID       string           `json:"id,omitempty"`
	Distance float64          `json:"distance,omitempty"`
	Skipped  bool             `json:"skipped,omitempty"`
	Cursor   Cursor           `json:"cursor"`
}

type candidateHit struct {
	scene.Intersection
	kind  scene.ObjectType
	owner *scene.Object
}

// Arbiter casts one ray across every MEP layer and the rack and routes the
// nearest hit to the controller that owns it. It keeps at most one object
// selected across all controllers.
type Arbiter struct {
	scene    *scene.Scene
	camera   func() *scene.Camera
	handlers map[scene.ObjectType]Handler
	order    []scene.ObjectType
	ray      *scene.Raycaster
	cursor   Cursor
}

// NewArbiter returns an arbiter over s. camera supplies the active camera at
// pick time.
func NewArbiter(s *scene.Scene, camera func() *scene.Camera) *Arbiter {
	return &Arbiter{
		scene:    s,
		camera:   camera,
		handlers: make(map[scene.ObjectType]Handler),
		ray:      scene.NewRaycaster(),
		cursor:   CursorDefault,
	}
}

// Register routes picks of type t to h. Registering a type twice replaces
// the earlier handler.
func (a *Arbiter) Register(t scene.ObjectType, h Handler) {
	if _, ok := a.handlers[t]; !ok {
		a.order = append(a.order, t)
	}
	a.handlers[t] = h
}

// Handler returns the handler registered for t.
func (a *Arbiter) Handler(t scene.ObjectType) (Handler, bool) {
	h, ok := a.handlers[t]
	return h, ok
}

// Cursor returns the cursor set by the last hover.
func (a *Arbiter) Cursor() Cursor { return a.cursor }

// Dragging reports whether any registered controller is mid-drag.
func (a *Arbiter) Dragging() bool {
	for _, t := range a.order {
		if a.handlers[t].Dragging() {
			return true
		}
	}
	return false
}

// Click selects the nearest object under ndc, or clears every selection
// when nothing is hit.
func (a *Arbiter) Click(ndc geom.Vec2) PickResult {
	if a.Dragging() {
		return PickResult{Skipped: true, Cursor: a.cursor}
	}
	hit, ok := a.pick(ndc)
	if !ok {
		a.DeselectAll()
		a.clearHover()
		a.cursor = CursorDefault
		return PickResult{Cursor: a.cursor}
	}
	h := a.handlers[hit.kind]
	for _, t := range a.order {
		if t != hit.kind {
			a.handlers[t].Deselect()
		}
	}
	a.clearHover()
	h.Select(hit.owner)
	a.cursor = CursorPointer
	slog.Debug("pick selected", "component", "interaction", "action", "click", "type", string(hit.kind), "id", hit.owner.ID)
	return PickResult{Hit: true, Type: hit.kind, ID: hit.owner.ID, Distance: hit.Distance, Cursor: a.cursor}
}

// Move updates hover to the nearest object under ndc. A miss clears hover
// but keeps the selection.
func (a *Arbiter) Move(ndc geom.Vec2) PickResult {
	if a.Dragging() {
		return PickResult{Skipped: true, Cursor: a.cursor}
	}
	hit, ok := a.pick(ndc)
	if !ok {
		a.clearHover()
		a.cursor = CursorDefault
		return PickResult{Cursor: a.cursor}
	}
	for _, t := range a.order {
		if t != hit.kind {
			a.handlers[t].ClearHover()
		}
	}
	a.handlers[hit.kind].SetHover(hit.owner)
	a.cursor = CursorPointer
	return PickResult{Hit: true, Type: hit.kind, ID: hit.owner.ID, Distance: hit.Distance, Cursor: a.cursor}
}

// DeselectAll clears the selection of every controller.
func (a *Arbiter) DeselectAll() {
	for _, t := range a.order {
		a.handlers[t].Deselect()
	}
}

func (a *Arbiter) clearHover() {
	for _, t := range a.order {
		a.handlers[t].ClearHover()
	}
}

// Selected returns the type of the controller holding the selection.
func (a *Arbiter) Selected() (scene.ObjectType, bool) {
	for _, t := range a.order {
		if a.handlers[t].IsSelected() {
			return t, true
		}
	}
	return scene.TypeNone, false
}

// pick gathers hits from the MEP layer groups (recursively) and from the
// rack's direct mesh children, and returns the nearest one that resolves
// to a registered owner.
func (a *Arbiter) pick(ndc geom.Vec2) (candidateHit, bool) {
	if a.scene == nil || a.camera == nil {
		return candidateHit{}, false
	}
	cam := a.camera()
	if cam == nil {
		return candidateHit{}, false
	}
	a.scene.UpdateMatrixWorld()
	a.ray.SetFromCamera(ndc, cam)

	var hits []scene.Intersection
	for _, top := range a.scene.Root.Children() {
		if _, ok := mep.KindForLayer(top.Name); ok {
			hits = append(hits, a.ray.IntersectObjects(top.Children(), true)...)
			continue
		}
		if top.Tag.Type == scene.TypeTradeRack && !top.IsMesh() {
			hits = append(hits, a.ray.IntersectObjects(top.Children(), false)...)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	for _, h := range hits {
		kind := h.Object.Tag.Type
		if _, ok := a.handlers[kind]; !ok {
			continue
		}
		owner := a.resolveOwner(h.Object)
		if owner == nil {
			continue
		}
		return candidateHit{Intersection: h, kind: kind, owner: owner}, true
	}
	return candidateHit{}, false
}

// resolveOwner maps a hit mesh to the group its controller manages, by
// owner id first and by walking up parents of the same type otherwise.
func (a *Arbiter) resolveOwner(obj *scene.Object) *scene.Object {
	if id := obj.Tag.OwnerID; id != "" {
		if o := a.scene.FindByID(id); o != nil {
			return o
		}
	}
	owner := obj
	for p := obj.Parent(); p != nil && p.Tag.Type == obj.Tag.Type; p = p.Parent() {
		owner = p
	}
	return owner
}
