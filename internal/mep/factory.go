package mep

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/snap"
	"github.com/hyperengineering/traderack/internal/units"
)

// State is an appearance state.
type State string

const (
	StateNormal   State = "normal"
	StateHover    State = "hover"
	StateSelected State = "selected"
)

// Accent colors.
const (
	SelectedColor uint32 = 0x4A90E2
	HoverColor    uint32 = 0x00D4FF
)

// Mesh roles inside an MEP group.
const (
	RoleBody       = "body"
	RoleInsulation = "insulation"
	RoleRail       = "rail"
)

// Geometry constants.
const (
	PipeSegments        = 16
	trayThicknessIn     = 0.5
	insulationOpacity   = 0.45
	insulationBaseColor = 0xF2F2F2
)

var baseColors = map[Kind]uint32{
	Duct:      0xC0C6CC,
	Pipe:      0x71797E,
	Conduit:   0x9AA3AD,
	CableTray: 0x8C8C8C,
}

// alongX rotates local +Y onto +X.
var alongX = geom.QuatFromAxisAngle(geom.V(0, 0, 1), -math.Pi/2)

// Factory creates MEP groups. Materials are shared per kind and state; a
// custom item color allocates one material per group, released by Dispose.
type Factory struct {
	shared     map[Kind]map[State]*scene.Material
	insulation map[State]*scene.Material
	custom     map[string]*scene.Material
}

// NewFactory returns a factory with the shared materials allocated.
func NewFactory() *Factory {
	f := &Factory{
		shared:     make(map[Kind]map[State]*scene.Material),
		insulation: make(map[State]*scene.Material),
		custom:     make(map[string]*scene.Material),
	}
	for _, k := range Kinds {
		f.shared[k] = map[State]*scene.Material{
			StateNormal:   scene.NewMaterial(string(k)+"-normal", baseColors[k]),
			StateHover:    scene.NewMaterial(string(k)+"-hover", HoverColor),
			StateSelected: scene.NewMaterial(string(k)+"-selected", SelectedColor),
		}
	}
	for state, color := range map[State]uint32{StateNormal: insulationBaseColor, StateSelected: SelectedColor} {
		m := scene.NewMaterial("insulation-"+string(state), color)
		m.Opacity = insulationOpacity
		m.Transparent = true
		f.insulation[state] = m
	}
	return f
}

// Material returns the shared material for kind and state.
func (f *Factory) Material(k Kind, s State) *scene.Material {
	return f.shared[k][s]
}

// CreateGroup builds the group for item, extruded along X for lengthM and
// placed at position. Invalid dimensions yield an empty group.
func (f *Factory) CreateGroup(item Item, lengthM float64, position geom.Vec3) *scene.Object {
	g := scene.NewObject(item.ID)
	if item.ID != "" {
		g.ID = item.ID
	}
	g.Position = position
	g.Tag = scene.Tag{Type: item.Type.ObjectType(), OwnerID: g.ID, Selectable: true}
	g.Data = item.Clone()

	if !positiveFinite(lengthM) {
		slog.Warn("invalid mep length, creating empty group", "component", "mep", "item_id", item.ID, "length", fmt.Sprint(lengthM))
		return g
	}
	if err := item.Validate(); err != nil {
		slog.Warn("invalid mep dimensions, creating empty group", "component", "mep", "item_id", item.ID, "kind", string(item.Type), "error", err)
		return g
	}
	for _, c := range f.buildChildren(item, lengthM, g.ID) {
		g.Add(c)
	}
	f.ApplyState(g, StateNormal)
	return g
}

// Rebuild replaces the children of an existing group with a fresh set for
// item, keeping the group object (and anything attached to it) in place.
func (f *Factory) Rebuild(g *scene.Object, item Item, lengthM float64) bool {
	if !positiveFinite(lengthM) || item.Validate() != nil {
		slog.Warn("rebuild rejected, keeping current geometry", "component", "mep", "item_id", item.ID)
		return false
	}
	f.disposeCustom(g.ID)
	g.Clear()
	for _, c := range f.buildChildren(item, lengthM, g.ID) {
		g.Add(c)
	}
	g.Data = item.Clone()
	return true
}

func (f *Factory) buildChildren(item Item, lengthM float64, ownerID string) []*scene.Object {
	mesh := func(name, role string, geo *geom.Geometry) *scene.Object {
		m := scene.NewMesh(name, geo, nil)
		m.ID = ownerID + "/" + name
		m.Tag = scene.Tag{Type: item.Type.ObjectType(), OwnerID: ownerID, Role: role, Selectable: true}
		return m
	}
	ins := units.InToM(item.Insulation)
	var out []*scene.Object

	switch item.Type {
	case Duct:
		w, h := units.InToM(item.Width), units.InToM(item.Height)
		out = append(out, mesh("body", RoleBody, geom.NewBoxGeometry(lengthM, h, w)))
		if ins > 0 {
			out = append(out, mesh("insulation", RoleInsulation, geom.NewBoxGeometry(lengthM, h+2*ins, w+2*ins)))
		}
	case Pipe:
		r := units.InToM(item.Diameter) / 2
		body := mesh("body", RoleBody, geom.NewCylinderGeometry(r, lengthM, PipeSegments))
		body.Rotation = alongX
		out = append(out, body)
		if ins > 0 {
			shell := mesh("insulation", RoleInsulation, geom.NewCylinderGeometry(r+ins, lengthM, PipeSegments))
			shell.Rotation = alongX
			out = append(out, shell)
		}
	case Conduit:
		d := units.InToM(item.Diameter)
		pitch := d + units.InToM(item.Spacing)
		n := item.conduitCount()
		for i := 0; i < n; i++ {
			c := mesh(fmt.Sprintf("conduit-%d", i), RoleBody, geom.NewCylinderGeometry(d/2, lengthM, PipeSegments))
			c.Rotation = alongX
			c.Position = geom.V(0, 0, (float64(i)-float64(n-1)/2)*pitch)
			out = append(out, c)
		}
	case CableTray:
		w, h := units.InToM(item.Width), units.InToM(item.Height)
		t := math.Min(units.InToM(trayThicknessIn), math.Min(w, h)/4)
		bottom := mesh("bottom", RoleBody, geom.NewBoxGeometry(lengthM, t, w))
		bottom.Position = geom.V(0, -h/2+t/2, 0)
		out = append(out, bottom)
		for i, side := range []float64{-1, 1} {
			rail := mesh(fmt.Sprintf("rail-%d", i), RoleRail, geom.NewBoxGeometry(lengthM, h, t))
			rail.Position = geom.V(0, 0, side*(w/2-t/2))
			out = append(out, rail)
		}
	}
	return out
}

// ApplyState sets the appearance of every mesh in g. A custom item color is
// used only in the normal state.
func (f *Factory) ApplyState(g *scene.Object, s State) {
	item, _ := g.Data.(Item)
	kind := item.Type
	if !kind.Valid() {
		kind, _ = KindOf(g.Tag.Type)
	}
	body := f.Material(kind, s)
	if s == StateNormal && item.Color != "" {
		if c, ok := ParseColor(item.Color); ok {
			body = f.customMaterial(g.ID, kind, c)
		} else {
			slog.Warn("unparseable mep color", "component", "mep", "item_id", item.ID, "color", item.Color)
		}
	}
	insState := StateNormal
	if s == StateSelected {
		insState = StateSelected
	}
	for _, m := range g.Meshes() {
		if m.Tag.Role == RoleInsulation {
			m.Material = f.insulation[insState]
			continue
		}
		m.Material = body
	}
}

func (f *Factory) customMaterial(id string, k Kind, color uint32) *scene.Material {
	if m, ok := f.custom[id]; ok && m.Color == color && !m.Disposed {
		return m
	}
	f.disposeCustom(id)
	m := f.shared[k][StateNormal].Clone()
	m.Name = fmt.Sprintf("%s-custom-%s", k, id)
	m.Color = color
	f.custom[id] = m
	return m
}

func (f *Factory) disposeCustom(id string) {
	if m, ok := f.custom[id]; ok {
		m.Dispose()
		delete(f.custom, id)
	}
}

// Dispose releases per-item resources of g.
func (f *Factory) Dispose(g *scene.Object) {
	f.disposeCustom(g.ID)
	g.Clear()
}

// SnapPoints returns the end-corner vertices and longitudinal edges of the
// group's bounding section, plus the insulation outline when present.
// World matrices of g must be current.
func (f *Factory) SnapPoints(g *scene.Object, lengthM float64) []snap.Point {
	item, ok := g.Data.(Item)
	if !ok || len(g.Children()) == 0 {
		return nil
	}
	hy, hz := item.HalfExtents()
	if item.Type == Pipe {
		r := units.InToM(item.Diameter) / 2
		hy, hz = r, r
	}
	m := g.MatrixWorld()
	out := sectionPoints(m, lengthM/2, hy, hz, g.ID)
	if ins := units.InToM(item.Insulation); ins > 0 && (item.Type == Duct || item.Type == Pipe) {
		out = append(out, sectionPoints(m, lengthM/2, hy+ins, hz+ins, g.ID)...)
	}
	return out
}

func sectionPoints(m geom.Mat4, hx, hy, hz float64, owner string) []snap.Point {
	var out []snap.Point
	for _, x := range []float64{-hx, hx} {
		for _, y := range []float64{-hy, hy} {
			for _, z := range []float64{-hz, hz} {
				out = append(out, snap.Vertex(m.Apply(geom.V(x, y, z)), owner, snap.OwnerMEP))
			}
		}
	}
	for _, y := range []float64{-hy, hy} {
		for _, z := range []float64{-hz, hz} {
			out = append(out, snap.Segment(m.Apply(geom.V(-hx, y, z)), m.Apply(geom.V(hx, y, z)), owner, snap.OwnerMEP))
		}
	}
	return out
}
