package interaction

import (
	"fmt"
	"math"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/snapline"
)

// Guide is a transient snap guide shown while dragging.
type Guide struct {
	Axis     string            `json:"axis"`
	Value    float64           `json:"value"`
	LineType snapline.LineType `json:"lineType"`
	Side     snapline.Side     `json:"side,omitempty"`
}

// SnapPosition aligns an object's faces to the nearest snap line within tol
// on each axis in axes. halfY and halfZ are the object's half extents.
// Y snaps the bottom face onto beam tops and the top face under beam
// bottoms; Z snaps side faces onto post inner faces.
func SnapPosition(p geom.Vec3, halfY, halfZ float64, lines snapline.Lines, tol float64, axes scene.Axis) (geom.Vec3, []Guide) {
	var guides []Guide
	if axes.Has(scene.AxisY) {
		best := math.Inf(1)
		var newY float64
		var g Guide
		for _, h := range lines.Horizontal {
			var d, y float64
			switch h.Type {
			case snapline.BeamTop:
				d, y = math.Abs(p.Y-halfY-h.Y), h.Y+halfY
			case snapline.BeamBottom:
				d, y = math.Abs(p.Y+halfY-h.Y), h.Y-halfY
			default:
				continue
			}
			if d < tol && d < best {
				best, newY = d, y
				g = Guide{Axis: "y", Value: h.Y, LineType: h.Type}
			}
		}
		if !math.IsInf(best, 1) {
			p.Y = newY
			guides = append(guides, g)
		}
	}
	if axes.Has(scene.AxisZ) {
		best := math.Inf(1)
		var newZ float64
		var g Guide
		for _, v := range lines.Vertical {
			var d, z float64
			switch v.Side {
			case snapline.SideRight:
				d, z = math.Abs(p.Z-halfZ-v.Z), v.Z+halfZ
			case snapline.SideLeft:
				d, z = math.Abs(p.Z+halfZ-v.Z), v.Z-halfZ
			default:
				continue
			}
			if d < tol && d < best {
				best, newZ = d, z
				g = Guide{Axis: "z", Value: v.Z, LineType: v.Type, Side: v.Side}
			}
		}
		if !math.IsInf(best, 1) {
			p.Z = newZ
			guides = append(guides, g)
		}
	}
	return p, guides
}

// NoTier is the tier name used when a position is outside every tier.
const NoTier = "No Tier"

// Tier tolerances in meters.
const (
	PipeTierTolerance = 0.1
	DuctTierTolerance = 0.15
)

// TierResult is the outcome of CalculateTier.
type TierResult struct {
	Tier     *int    `json:"tier"`
	TierName string  `json:"tierName"`
	CenterY  float64 `json:"centerY,omitempty"`
}

// CalculateTier finds the tier space containing y, widened by tol on both
// ends. When tolerance makes two spaces overlap the one with the nearer
// center wins. Without containment it falls back to the closest center
// within tol, and otherwise reports NoTier. It never fails.
func CalculateTier(spaces []snapline.TierSpace, y, tol float64) TierResult {
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return TierResult{TierName: NoTier}
	}
	pick := -1
	for i, s := range spaces {
		if y < s.Bottom-tol || y > s.Top+tol {
			continue
		}
		if pick < 0 || math.Abs(y-s.CenterY) < math.Abs(y-spaces[pick].CenterY) {
			pick = i
		}
	}
	if pick < 0 {
		closest := tol
		for i, s := range spaces {
			if d := math.Abs(y - s.CenterY); d <= closest {
				pick, closest = i, d
			}
		}
	}
	if pick < 0 {
		return TierResult{TierName: NoTier}
	}
	idx := spaces[pick].TierIndex
	return TierResult{Tier: &idx, TierName: fmt.Sprintf("Tier %d", idx), CenterY: spaces[pick].CenterY}
}
