// Package snap holds the shared measurement snap-point index.
//
// Every entry carries the id and kind of the object that produced it. The
// rack builder, the MEP factory and the rack controller only ever remove
// entries by owner, never by spatial query.
package snap

import (
	"github.com/hyperengineering/traderack/internal/geom"
)

// Kind distinguishes point and segment snap targets.
type Kind string

const (
	KindVertex Kind = "vertex"
	KindEdge   Kind = "edge"
)

// OwnerKind names what produced a snap point.
type OwnerKind string

const (
	OwnerRack OwnerKind = "tradeRack"
	OwnerMEP  OwnerKind = "mep"
)

// Point is a vertex or edge snap target in world coordinates.
type Point struct {
	Kind      Kind      `json:"kind"`
	Point     geom.Vec3 `json:"point"`
	Start     geom.Vec3 `json:"start"`
	End       geom.Vec3 `json:"end"`
	OwnerID   string    `json:"ownerId"`
	OwnerKind OwnerKind `json:"ownerKind"`
}

// Vertex returns a vertex snap point.
func Vertex(p geom.Vec3, ownerID string, ownerKind OwnerKind) Point {
	return Point{Kind: KindVertex, Point: p, OwnerID: ownerID, OwnerKind: ownerKind}
}

// Segment returns an edge snap point.
func Segment(start, end geom.Vec3, ownerID string, ownerKind OwnerKind) Point {
	return Point{Kind: KindEdge, Start: start, End: end, OwnerID: ownerID, OwnerKind: ownerKind}
}

// FromSet converts an extraction result into tagged snap points: corners and
// interior edge points become vertices, feature edges become segments.
func FromSet(set geom.SnapSet, ownerID string, ownerKind OwnerKind) []Point {
	out := make([]Point, 0, len(set.Corners)+len(set.EdgePoints)+len(set.Edges))
	for _, c := range set.Corners {
		out = append(out, Vertex(c, ownerID, ownerKind))
	}
	for _, p := range set.EdgePoints {
		out = append(out, Vertex(p, ownerID, ownerKind))
	}
	for _, e := range set.Edges {
		out = append(out, Segment(e.Start, e.End, ownerID, ownerKind))
	}
	return out
}

// Index is the flat snap-point list shared by the rack and the MEP layers.
// It is not safe for concurrent use; the workspace serializes access.
type Index struct {
	points []Point
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Add appends points.
func (x *Index) Add(pts ...Point) {
	x.points = append(x.points, pts...)
}

// RemoveOwner drops every point tagged with ownerID and returns how many
// were removed.
func (x *Index) RemoveOwner(ownerID string) int {
	kept := x.points[:0]
	removed := 0
	for _, p := range x.points {
		if p.OwnerID == ownerID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	// Clear the tail so dropped points are not retained.
	for i := len(kept); i < len(x.points); i++ {
		x.points[i] = Point{}
	}
	x.points = kept
	return removed
}

// ReplaceOwner removes ownerID's points and adds pts in one step.
func (x *Index) ReplaceOwner(ownerID string, pts []Point) {
	x.RemoveOwner(ownerID)
	x.Add(pts...)
}

// Points returns a copy of the whole index.
func (x *Index) Points() []Point {
	out := make([]Point, len(x.points))
	copy(out, x.points)
	return out
}

// ByOwner returns a copy of ownerID's points.
func (x *Index) ByOwner(ownerID string) []Point {
	var out []Point
	for _, p := range x.points {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of points in the index.
func (x *Index) Len() int {
	return len(x.points)
}

// Nearest returns the vertex point closest to p within maxDist.
func (x *Index) Nearest(p geom.Vec3, maxDist float64) (Point, bool) {
	best := -1
	bestDist := maxDist
	for i, sp := range x.points {
		if sp.Kind != KindVertex {
			continue
		}
		if d := sp.Point.DistanceTo(p); d <= bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Point{}, false
	}
	return x.points[best], true
}
