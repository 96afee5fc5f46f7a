package geom

import "math"

// GeometryKind identifies the primitive a Geometry was built from.
type GeometryKind string

const (
	KindBox      GeometryKind = "box"
	KindCylinder GeometryKind = "cylinder"
)

// Geometry is an indexed triangle mesh in local coordinates.
//
// Edges lists feature edges (pairs of vertex indices). Snap-point extraction
// prefers them over raw triangle edges, which would include face diagonals.
type Geometry struct {
	Kind      GeometryKind
	Width     float64 // box X extent
	Height    float64 // box Y extent, cylinder length
	Depth     float64 // box Z extent
	Radius    float64 // cylinder radius
	Segments  int     // cylinder radial segments
	Positions []Vec3
	Indices   []int
	Edges     [][2]int
}

// NewBoxGeometry returns a box of the given extents centered on the origin.
func NewBoxGeometry(width, height, depth float64) *Geometry {
	hx, hy, hz := width/2, height/2, depth/2
	g := &Geometry{
		Kind:   KindBox,
		Width:  width,
		Height: height,
		Depth:  depth,
		Positions: []Vec3{
			{-hx, -hy, -hz}, // 0
			{hx, -hy, -hz},  // 1
			{hx, hy, -hz},   // 2
			{-hx, hy, -hz},  // 3
			{-hx, -hy, hz},  // 4
			{hx, -hy, hz},   // 5
			{hx, hy, hz},    // 6
			{-hx, hy, hz},   // 7
		},
		Indices: []int{
			0, 2, 1, 0, 3, 2, // back  (-Z)
			4, 5, 6, 4, 6, 7, // front (+Z)
			0, 1, 5, 0, 5, 4, // bottom
			3, 7, 6, 3, 6, 2, // top
			0, 4, 7, 0, 7, 3, // left  (-X)
			1, 2, 6, 1, 6, 5, // right (+X)
		},
		Edges: [][2]int{
			{0, 1}, {1, 2}, {2, 3}, {3, 0},
			{4, 5}, {5, 6}, {6, 7}, {7, 4},
			{0, 4}, {1, 5}, {2, 6}, {3, 7},
		},
	}
	return g
}

// NewCylinderGeometry returns a capped cylinder along the local Y axis,
// centered on the origin.
func NewCylinderGeometry(radius, height float64, segments int) *Geometry {
	if segments < 3 {
		segments = 3
	}
	g := &Geometry{
		Kind:     KindCylinder,
		Height:   height,
		Radius:   radius,
		Segments: segments,
	}
	hy := height / 2

	// Ring vertices: bottom ring [0, segments), top ring [segments, 2*segments).
	for _, y := range []float64{-hy, hy} {
		for i := 0; i < segments; i++ {
			theta := 2 * math.Pi * float64(i) / float64(segments)
			g.Positions = append(g.Positions, Vec3{radius * math.Sin(theta), y, radius * math.Cos(theta)})
		}
	}
	bottomCenter := len(g.Positions)
	g.Positions = append(g.Positions, Vec3{0, -hy, 0})
	topCenter := len(g.Positions)
	g.Positions = append(g.Positions, Vec3{0, hy, 0})

	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		b0, b1 := i, j
		t0, t1 := i+segments, j+segments
		g.Indices = append(g.Indices,
			b0, b1, t0,
			b1, t1, t0,
			bottomCenter, b1, b0,
			topCenter, t0, t1,
		)
		g.Edges = append(g.Edges, [2]int{b0, b1}, [2]int{t0, t1}, [2]int{b0, t0})
	}
	return g
}

// Triangles calls fn for every triangle in the mesh.
func (g *Geometry) Triangles(fn func(a, b, c Vec3)) {
	for i := 0; i+2 < len(g.Indices); i += 3 {
		fn(g.Positions[g.Indices[i]], g.Positions[g.Indices[i+1]], g.Positions[g.Indices[i+2]])
	}
}

// BoundingBox returns the local-space bounds.
func (g *Geometry) BoundingBox() Box3 {
	b := EmptyBox()
	for _, p := range g.Positions {
		b = b.ExpandByPoint(p)
	}
	return b
}

// WorldBox returns the bounds of the mesh transformed by m.
func (g *Geometry) WorldBox(m Mat4) Box3 {
	b := EmptyBox()
	for _, p := range g.Positions {
		b = b.ExpandByPoint(m.Apply(p))
	}
	return b
}
