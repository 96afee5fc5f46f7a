// Package snapline derives the reference lines MEP drags snap to from the
// rack geometry currently in the scene: beam top and bottom faces and the
// inner faces of the posts.
package snapline

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/units"
)

// LineType names a snap surface.
type LineType string

const (
	BeamTop    LineType = "beam_top"
	BeamBottom LineType = "beam_bottom"
	PostInner  LineType = "post_inner"
)

// Side is the rack side of a vertical line. Right is the -Z row.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Classification thresholds in meters.
const (
	minBeamLengthX = 0.5
	minBeamLengthZ = 0.3
	minPostHeight  = 0.5
	// MinTierHeight is the smallest gap between beams that counts as a tier.
	MinTierHeight = 0.3
	// MinDuctLength is the floor for AvailableDuctLength.
	MinDuctLength = 0.1
	// FallbackRackLengthFt is used when no source knows the rack length.
	FallbackRackLengthFt = 12.0
)

// Horizontal is a beam face at height Y.
type Horizontal struct {
	Y           float64  `json:"y"`
	Type        LineType `json:"type"`
	Description string   `json:"description"`
}

// Vertical is a post inner face at depth Z.
type Vertical struct {
	Z           float64  `json:"z"`
	Type        LineType `json:"type"`
	Side        Side     `json:"side"`
	Description string   `json:"description"`
}

// Lines is the full snap-line set.
type Lines struct {
	Horizontal []Horizontal `json:"horizontal"`
	Vertical   []Vertical   `json:"vertical"`
}

// Beams returns the number of distinct beam levels represented.
func (l Lines) Beams() int {
	n := 0
	for _, h := range l.Horizontal {
		if h.Type == BeamTop {
			n++
		}
	}
	return n
}

// VerticalOn returns the post line on side, if any.
func (l Lines) VerticalOn(side Side) (Vertical, bool) {
	for _, v := range l.Vertical {
		if v.Side == side {
			return v, true
		}
	}
	return Vertical{}, false
}

// TierSpace is the clear space between two adjacent beam levels.
type TierSpace struct {
	TierIndex int     `json:"tierIndex"`
	Top       float64 `json:"top"`
	Bottom    float64 `json:"bottom"`
	Height    float64 `json:"height"`
	CenterY   float64 `json:"centerY"`
}

// LengthSource reports the active configuration's rack length.
type LengthSource interface {
	ActiveRackLength() (units.Length, bool)
}

// Manager derives snap lines from a scene.
type Manager struct {
	scene    *scene.Scene
	manifest LengthSource
	params   func() (rack.Parameters, bool)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLengthSource sets the highest-priority rack length source.
func WithLengthSource(src LengthSource) Option {
	return func(m *Manager) { m.manifest = src }
}

// WithParameters sets the current rack parameter source.
func WithParameters(fn func() (rack.Parameters, bool)) Option {
	return func(m *Manager) { m.params = fn }
}

// NewManager returns a manager reading from s.
func NewManager(s *scene.Scene, opts ...Option) *Manager {
	m := &Manager{scene: s}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindRack returns the rack root: among generated or rack-named objects, the
// one with the most direct mesh children.
func (m *Manager) FindRack() *scene.Object {
	if m == nil || m.scene == nil {
		return nil
	}
	var best *scene.Object
	bestMeshes := 0
	m.scene.Traverse(func(o *scene.Object) {
		if o == m.scene.Root {
			return
		}
		name := strings.ToLower(o.Name)
		if !o.IsGenerated && !strings.Contains(name, "rack") && !strings.Contains(name, "trade") {
			return
		}
		n := 0
		for _, c := range o.Children() {
			if c.IsMesh() {
				n++
			}
		}
		if n > bestMeshes {
			best, bestMeshes = o, n
		}
	})
	return best
}

type level struct{ top, bottom float64 }

// Lines derives horizontal and vertical snap lines from the rack in the
// scene. A missing rack yields empty lines.
func (m *Manager) Lines() Lines {
	lines, _ := m.scan()
	return lines
}

func (m *Manager) scan() (Lines, []level) {
	out := Lines{Horizontal: []Horizontal{}, Vertical: []Vertical{}}
	r := m.FindRack()
	if r == nil {
		slog.Debug("no rack in scene", "component", "snapline")
		return out, nil
	}
	m.scene.UpdateMatrixWorld()

	seen := make(map[int64]struct{})
	var levels []level
	minZ, maxZ, postWidth := math.Inf(1), math.Inf(-1), 0.0
	posts := 0

	for _, mesh := range r.Meshes() {
		if mesh.Geometry.Kind != geom.KindBox {
			continue
		}
		box := mesh.Geometry.WorldBox(mesh.MatrixWorld())
		size := box.Size()
		center := box.Center()
		switch {
		case isHorizontalBeam(size):
			k := int64(math.Round(center.Y * 1e6))
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			levels = append(levels, level{top: center.Y + size.Y/2, bottom: center.Y - size.Y/2})
		case size.Y >= size.X && size.Y >= size.Z && size.Y >= minPostHeight:
			posts++
			minZ = math.Min(minZ, box.Min.Z)
			maxZ = math.Max(maxZ, box.Max.Z)
			postWidth = math.Max(postWidth, size.Z)
		}
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i].top > levels[j].top })
	for _, lv := range levels {
		out.Horizontal = append(out.Horizontal,
			Horizontal{Y: lv.top, Type: BeamTop, Description: "Beam top @ " + units.FormatFeetInches(lv.top)},
			Horizontal{Y: lv.bottom, Type: BeamBottom, Description: "Beam bottom @ " + units.FormatFeetInches(lv.bottom)},
		)
	}
	if posts > 0 {
		right := minZ + postWidth
		left := maxZ - postWidth
		out.Vertical = append(out.Vertical,
			Vertical{Z: right, Type: PostInner, Side: SideRight, Description: fmt.Sprintf("Right post inner face @ z=%.3f m", right)},
			Vertical{Z: left, Type: PostInner, Side: SideLeft, Description: fmt.Sprintf("Left post inner face @ z=%.3f m", left)},
		)
	}
	return out, levels
}

// isHorizontalBeam reports whether the longest extent is X or Z (and long
// enough) rather than Y.
func isHorizontalBeam(size geom.Vec3) bool {
	switch {
	case size.X >= size.Y && size.X >= size.Z:
		return size.X > size.Y && size.X >= minBeamLengthX
	case size.Z >= size.Y && size.Z >= size.X:
		return size.Z > size.Y && size.Z >= minBeamLengthZ
	}
	return false
}

// TierSpaces pairs adjacent beam levels from the top. Each space runs from
// the upper beam's bottom face to the lower beam's top face; gaps under
// MinTierHeight are skipped. Indices are 1-based from the top.
func (m *Manager) TierSpaces() []TierSpace {
	_, levels := m.scan()
	return tierSpaces(levels)
}

func tierSpaces(levels []level) []TierSpace {
	spaces := []TierSpace{}
	for i := 0; i+1 < len(levels); i++ {
		top, bottom := levels[i].bottom, levels[i+1].top
		h := top - bottom
		if h < MinTierHeight {
			continue
		}
		spaces = append(spaces, TierSpace{
			TierIndex: len(spaces) + 1,
			Top:       top,
			Bottom:    bottom,
			Height:    h,
			CenterY:   (top + bottom) / 2,
		})
	}
	return spaces
}

// RackLength returns the rack length in feet: the active manifest
// configuration, then the current parameters, then bays x bay width from
// the built rack, then 12 ft.
func (m *Manager) RackLength() float64 {
	if m.manifest != nil {
		if l, ok := m.manifest.ActiveRackLength(); ok && l.TotalFeet() > 0 {
			return l.TotalFeet()
		}
	}
	if m.params != nil {
		if p, ok := m.params(); ok && p.RackLength.TotalFeet() > 0 {
			return p.RackLength.TotalFeet()
		}
	}
	if r := m.FindRack(); r != nil {
		if cfg, ok := r.Data.(rack.Configuration); ok && cfg.BayCount > 0 {
			if l := float64(cfg.BayCount) * cfg.BayWidth.TotalFeet(); l > 0 {
				return l
			}
		}
	}
	slog.Warn("rack length unknown, using fallback", "component", "snapline", "feet", FallbackRackLengthFt)
	return FallbackRackLengthFt
}

// PostSize returns the post cross-section in inches.
func (m *Manager) PostSize() float64 {
	if m.params != nil {
		if p, ok := m.params(); ok {
			return p.PostSizeIn()
		}
	}
	if r := m.FindRack(); r != nil {
		if cfg, ok := r.Data.(rack.Configuration); ok {
			return cfg.PostSizeIn()
		}
	}
	return rack.DefaultMemberSizeIn
}

// AvailableDuctLength is the rack length in meters, at least MinDuctLength.
func (m *Manager) AvailableDuctLength() float64 {
	return math.Max(units.FtToM(m.RackLength()), MinDuctLength)
}

// RackCenter returns the world AABB center of the rack, or the origin.
func (m *Manager) RackCenter() geom.Vec3 {
	r := m.FindRack()
	if r == nil {
		return geom.Vec3{}
	}
	r.UpdateMatrixWorld()
	return r.WorldBox().Center()
}
