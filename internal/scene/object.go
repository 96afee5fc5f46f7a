// Package scene is the headless stand-in for the renderer's object graph:
// a hierarchy of objects with local transforms, world-matrix propagation,
// world-space bounds, raycasting, a camera, and a translate gizmo.
package scene

import (
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/oklog/ulid/v2"
)

// ObjectType is the closed set of pickable object variants.
type ObjectType string

const (
	TypeNone      ObjectType = ""
	TypeDuct      ObjectType = "duct"
	TypePipe      ObjectType = "pipe"
	TypeConduit   ObjectType = "conduit"
	TypeCableTray ObjectType = "cableTray"
	TypeTradeRack ObjectType = "tradeRack"
)

// IsMEP reports whether t is one of the four MEP kinds.
func (t ObjectType) IsMEP() bool {
	switch t {
	case TypeDuct, TypePipe, TypeConduit, TypeCableTray:
		return true
	}
	return false
}

// Tag replaces free-form user data. OwnerID points at the group that owns a
// mesh so pick resolution is an id lookup instead of a parent walk.
type Tag struct {
	Type       ObjectType
	OwnerID    string
	Role       string
	Selectable bool
}

// Object is a node in the scene graph. A node with Geometry is a mesh.
type Object struct {
	ID          string
	Name        string
	Position    geom.Vec3
	Rotation    geom.Quat
	Visible     bool
	Geometry    *geom.Geometry
	Material    *Material
	Tag         Tag
	Data        any
	IsGenerated bool

	parent      *Object
	children    []*Object
	matrixWorld geom.Mat4
}

// NewObject returns an empty visible group.
func NewObject(name string) *Object {
	return &Object{
		ID:          ulid.Make().String(),
		Name:        name,
		Rotation:    geom.IdentityQuat,
		Visible:     true,
		matrixWorld: geom.Identity(),
	}
}

// NewMesh returns a visible mesh.
func NewMesh(name string, g *geom.Geometry, m *Material) *Object {
	o := NewObject(name)
	o.Geometry = g
	o.Material = m
	return o
}

// IsMesh reports whether the object carries geometry.
func (o *Object) IsMesh() bool { return o.Geometry != nil }

// Parent returns the parent node, nil for a detached node or the root.
func (o *Object) Parent() *Object { return o.parent }

// Children returns a copy of the direct children.
func (o *Object) Children() []*Object {
	out := make([]*Object, len(o.children))
	copy(out, o.children)
	return out
}

// Add reparents each child under o.
func (o *Object) Add(children ...*Object) {
	for _, c := range children {
		if c == nil || c == o {
			continue
		}
		if c.parent != nil {
			c.parent.Remove(c)
		}
		c.parent = o
		o.children = append(o.children, c)
	}
}

// Remove detaches child from o. It is a no-op when child is not a direct child.
func (o *Object) Remove(child *Object) {
	for i, c := range o.children {
		if c == child {
			o.children = append(o.children[:i], o.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// RemoveFromParent detaches o from its parent.
func (o *Object) RemoveFromParent() {
	if o.parent != nil {
		o.parent.Remove(o)
	}
}

// Clear detaches every child.
func (o *Object) Clear() {
	for _, c := range o.children {
		c.parent = nil
	}
	o.children = nil
}

// Traverse visits o and all descendants depth-first.
func (o *Object) Traverse(fn func(*Object)) {
	fn(o)
	for _, c := range o.children {
		c.Traverse(fn)
	}
}

// InScene reports whether o is still attached to a tree whose root is r.
func (o *Object) InScene(r *Object) bool {
	for n := o; n != nil; n = n.parent {
		if n == r {
			return true
		}
	}
	return false
}

// LocalMatrix returns the transform relative to the parent.
func (o *Object) LocalMatrix() geom.Mat4 {
	return geom.Compose(o.Position, o.Rotation)
}

// UpdateMatrixWorld recomputes world matrices for o and its subtree.
func (o *Object) UpdateMatrixWorld() {
	if o.parent != nil {
		o.matrixWorld = o.parent.matrixWorld.Mul(o.LocalMatrix())
	} else {
		o.matrixWorld = o.LocalMatrix()
	}
	for _, c := range o.children {
		c.UpdateMatrixWorld()
	}
}

// MatrixWorld returns the world matrix from the last update.
func (o *Object) MatrixWorld() geom.Mat4 { return o.matrixWorld }

// WorldPosition returns the world-space origin of o.
func (o *Object) WorldPosition() geom.Vec3 {
	return o.matrixWorld.Translation()
}

// WorldBox returns the world AABB of every mesh in the subtree. Call
// UpdateMatrixWorld first when transforms have changed.
func (o *Object) WorldBox() geom.Box3 {
	box := geom.EmptyBox()
	o.Traverse(func(n *Object) {
		if n.Geometry != nil {
			box = box.Union(n.Geometry.WorldBox(n.matrixWorld))
		}
	})
	return box
}

// Meshes returns every mesh in the subtree.
func (o *Object) Meshes() []*Object {
	var out []*Object
	o.Traverse(func(n *Object) {
		if n.IsMesh() {
			out = append(out, n)
		}
	})
	return out
}

// Scene is the root of the object graph.
type Scene struct {
	Root *Object
}

// New returns an empty scene.
func New() *Scene {
	root := NewObject("Scene")
	root.ID = "scene"
	return &Scene{Root: root}
}

// Add inserts objects under the root.
func (s *Scene) Add(objs ...*Object) { s.Root.Add(objs...) }

// Remove detaches obj from the root.
func (s *Scene) Remove(obj *Object) { s.Root.Remove(obj) }

// Traverse visits every node.
func (s *Scene) Traverse(fn func(*Object)) { s.Root.Traverse(fn) }

// UpdateMatrixWorld refreshes all world matrices.
func (s *Scene) UpdateMatrixWorld() { s.Root.UpdateMatrixWorld() }

// FindByID returns the first node with the given id.
func (s *Scene) FindByID(id string) *Object {
	var found *Object
	s.Root.Traverse(func(o *Object) {
		if found == nil && o.ID == id {
			found = o
		}
	})
	return found
}

// Contains reports whether obj is attached to this scene.
func (s *Scene) Contains(obj *Object) bool {
	return obj != nil && obj.InScene(s.Root)
}
