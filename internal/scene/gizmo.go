package scene

import (
	"log/slog"

	"github.com/hyperengineering/traderack/internal/geom"
)

// Axis is a bit mask of translation axes.
type Axis uint8

const (
	AxisX Axis = 1 << iota
	AxisY
	AxisZ
)

// Has reports whether a includes b.
func (a Axis) Has(b Axis) bool { return a&b != 0 }

// TranslateGizmo moves its attached object along the shown axes and reports
// change and dragging-changed events.
type TranslateGizmo struct {
	ShowX, ShowY, ShowZ bool

	object          *Object
	dragging        bool
	onChange        []func()
	onDraggingState []func(bool)
}

// NewTranslateGizmo returns a detached gizmo with all axes shown.
func NewTranslateGizmo() *TranslateGizmo {
	return &TranslateGizmo{ShowX: true, ShowY: true, ShowZ: true}
}

// SetAxes shows exactly the axes in mask.
func (g *TranslateGizmo) SetAxes(mask Axis) {
	g.ShowX, g.ShowY, g.ShowZ = mask.Has(AxisX), mask.Has(AxisY), mask.Has(AxisZ)
}

// Attach binds the gizmo to obj, ending any drag on a previous object.
func (g *TranslateGizmo) Attach(obj *Object) {
	if g.object != obj && g.dragging {
		g.setDragging(false)
	}
	g.object = obj
}

// Detach unbinds the gizmo.
func (g *TranslateGizmo) Detach() {
	if g.dragging {
		g.setDragging(false)
	}
	g.object = nil
}

// Object returns the attached object or nil.
func (g *TranslateGizmo) Object() *Object { return g.object }

// Dragging reports whether a drag is in progress.
func (g *TranslateGizmo) Dragging() bool { return g.dragging }

// OnChange registers a callback fired after every translation.
func (g *TranslateGizmo) OnChange(fn func()) { g.onChange = append(g.onChange, fn) }

// OnDraggingChanged registers a callback fired when dragging starts or ends.
func (g *TranslateGizmo) OnDraggingChanged(fn func(bool)) {
	g.onDraggingState = append(g.onDraggingState, fn)
}

// BeginDrag starts a drag. It reports false when nothing is attached.
func (g *TranslateGizmo) BeginDrag() bool {
	if g.object == nil {
		return false
	}
	if !g.dragging {
		g.setDragging(true)
	}
	return true
}

// Translate moves the object toward target along the shown axes. An object
// that has been removed from its tree is detached instead.
func (g *TranslateGizmo) Translate(target geom.Vec3) bool {
	if g.object == nil {
		return false
	}
	if g.object.Parent() == nil {
		slog.Debug("gizmo object left the scene, detaching", "component", "scene", "object", g.object.ID)
		g.Detach()
		return false
	}
	p := g.object.Position
	if g.ShowX {
		p.X = target.X
	}
	if g.ShowY {
		p.Y = target.Y
	}
	if g.ShowZ {
		p.Z = target.Z
	}
	g.object.Position = p
	for _, fn := range g.onChange {
		fn()
	}
	return true
}

// EndDrag finishes a drag.
func (g *TranslateGizmo) EndDrag() {
	if g.dragging {
		g.setDragging(false)
	}
}

func (g *TranslateGizmo) setDragging(v bool) {
	g.dragging = v
	for _, fn := range g.onDraggingState {
		fn(v)
	}
}
