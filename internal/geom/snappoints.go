package geom

import (
	"fmt"
	"math"
)

// snapKeyPrecision is the dedupe grid for snap points (10 µm).
const snapKeyPrecision = 1e-5

// minEdgeInset is the minimum distance an interior edge point must keep
// from either endpoint to be emitted.
const minEdgeInset = 0.10

// Edge is a world-space segment.
type Edge struct {
	Start Vec3 `json:"start"`
	End   Vec3 `json:"end"`
}

// SnapSet is the result of ExtractSnapPoints.
type SnapSet struct {
	Corners    []Vec3 // unique vertices
	Edges      []Edge // unique edges with their endpoints
	EdgePoints []Vec3 // midpoints and quarter points along edges
	Faces      []Vec3 // unique triangle centroids
}

func snapKey(p Vec3) string {
	q := func(v float64) int64 { return int64(math.Round(v / snapKeyPrecision)) }
	return fmt.Sprintf("%d,%d,%d", q(p.X), q(p.Y), q(p.Z))
}

// ExtractSnapPoints walks a mesh in world space and returns its corners,
// edges, interior edge points and face centroids, each deduplicated.
func ExtractSnapPoints(g *Geometry, world Mat4) SnapSet {
	var set SnapSet
	if g == nil || len(g.Positions) == 0 {
		return set
	}

	transformed := make([]Vec3, len(g.Positions))
	for i, p := range g.Positions {
		transformed[i] = world.Apply(p)
	}

	seenCorner := make(map[string]struct{})
	addCorner := func(p Vec3) {
		k := snapKey(p)
		if _, ok := seenCorner[k]; ok {
			return
		}
		seenCorner[k] = struct{}{}
		set.Corners = append(set.Corners, p)
	}

	seenFace := make(map[string]struct{})
	for i := 0; i+2 < len(g.Indices); i += 3 {
		a, b, c := transformed[g.Indices[i]], transformed[g.Indices[i+1]], transformed[g.Indices[i+2]]
		addCorner(a)
		addCorner(b)
		addCorner(c)
		centroid := a.Add(b).Add(c).Scale(1.0 / 3)
		if k := snapKey(centroid); !hasKey(seenFace, k) {
			seenFace[k] = struct{}{}
			set.Faces = append(set.Faces, centroid)
		}
	}

	edges := g.Edges
	if len(edges) == 0 {
		for i := 0; i+2 < len(g.Indices); i += 3 {
			a, b, c := g.Indices[i], g.Indices[i+1], g.Indices[i+2]
			edges = append(edges, [2]int{a, b}, [2]int{b, c}, [2]int{c, a})
		}
	}

	seenEdge := make(map[string]struct{})
	seenPoint := make(map[string]struct{})
	for _, e := range edges {
		start, end := transformed[e[0]], transformed[e[1]]
		ks, ke := snapKey(start), snapKey(end)
		if ks > ke {
			ks, ke = ke, ks
		}
		if hasKey(seenEdge, ks+"|"+ke) {
			continue
		}
		seenEdge[ks+"|"+ke] = struct{}{}
		set.Edges = append(set.Edges, Edge{Start: start, End: end})

		length := start.DistanceTo(end)
		for _, t := range []float64{0.25, 0.5, 0.75} {
			if t*length < minEdgeInset || (1-t)*length < minEdgeInset {
				continue
			}
			p := start.Lerp(end, t)
			if k := snapKey(p); !hasKey(seenPoint, k) {
				seenPoint[k] = struct{}{}
				set.EdgePoints = append(set.EdgePoints, p)
			}
		}
	}
	return set
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
