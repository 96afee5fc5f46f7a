package scene

import (
	"math"
	"sort"

	"github.com/hyperengineering/traderack/internal/geom"
)

// Intersection is a ray hit on a mesh.
type Intersection struct {
	Object   *Object
	Distance float64
	Point    geom.Vec3
	Face     int
}

// Raycaster casts a ray into the scene graph.
type Raycaster struct {
	Ray  geom.Ray
	Near float64
	Far  float64
}

// NewRaycaster returns a raycaster with an unbounded far plane.
func NewRaycaster() *Raycaster {
	return &Raycaster{Far: math.Inf(1)}
}

// SetFromCamera points the ray through ndc as seen from cam.
func (r *Raycaster) SetFromCamera(ndc geom.Vec2, cam *Camera) {
	r.Ray = cam.RayThrough(ndc)
}

// IntersectObject tests obj (and descendants when recursive).
// Results are sorted by ascending distance.
func (r *Raycaster) IntersectObject(obj *Object, recursive bool) []Intersection {
	var hits []Intersection
	r.intersect(obj, recursive, &hits)
	sortHits(hits)
	return hits
}

// IntersectObjects tests each object and merges the hits by distance.
func (r *Raycaster) IntersectObjects(objs []*Object, recursive bool) []Intersection {
	var hits []Intersection
	for _, o := range objs {
		r.intersect(o, recursive, &hits)
	}
	sortHits(hits)
	return hits
}

func (r *Raycaster) intersect(obj *Object, recursive bool, hits *[]Intersection) {
	if obj == nil || !obj.Visible {
		return
	}
	if obj.IsMesh() {
		if hit, ok := r.intersectMesh(obj); ok {
			*hits = append(*hits, hit)
		}
	}
	if recursive {
		for _, c := range obj.children {
			r.intersect(c, true, hits)
		}
	}
}

// intersectMesh returns the nearest triangle hit within [Near, Far].
func (r *Raycaster) intersectMesh(obj *Object) (Intersection, bool) {
	m := obj.matrixWorld
	if _, ok := r.Ray.IntersectBox(obj.Geometry.WorldBox(m)); !ok {
		return Intersection{}, false
	}
	best := Intersection{Distance: math.Inf(1), Face: -1}
	g := obj.Geometry
	for i := 0; i+2 < len(g.Indices); i += 3 {
		a := m.Apply(g.Positions[g.Indices[i]])
		b := m.Apply(g.Positions[g.Indices[i+1]])
		c := m.Apply(g.Positions[g.Indices[i+2]])
		d, ok := r.Ray.IntersectTriangle(a, b, c)
		if !ok || d < r.Near || d > r.Far || d >= best.Distance {
			continue
		}
		best = Intersection{Object: obj, Distance: d, Point: r.Ray.At(d), Face: i / 3}
	}
	if best.Object == nil {
		return Intersection{}, false
	}
	return best, true
}

func sortHits(hits []Intersection) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
}
