package rack

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/snap"
	"github.com/hyperengineering/traderack/internal/units"
)

// GroupName is the name of every rack root object.
const GroupName = "TradeRack"

// Mesh roles carried in scene.Tag.Role.
const (
	RolePost             = "post"
	RoleLongitudinalBeam = "longitudinalBeam"
	RoleTransverseBeam   = "transverseBeam"
)

// PositionPolicy decides between a saved position in the parameters and a
// position preserved in session state when both are present.
type PositionPolicy string

const (
	// TemporaryWins applies session state over a saved position.
	TemporaryWins PositionPolicy = "temporary_wins"
	// SavedWins keeps an explicit saved position and ignores session state.
	SavedWins PositionPolicy = "saved_wins"
)

// Valid reports whether p is a known policy.
func (p PositionPolicy) Valid() bool { return p == TemporaryWins || p == SavedWins }

// BuildingContext carries the building-shell values used for deck mounts.
type BuildingContext struct {
	CorridorHeight units.Length
	BeamDepth      units.Length
}

// Preservation is rack placement carried over from session state.
type Preservation struct {
	Position  *geom.Vec3 `json:"position,omitempty"`     // meters
	Clearance *float64   `json:"topClearance,omitempty"` // feet, offset from the baseline
}

// Materials are the shared rack materials.
type Materials struct {
	Post *scene.Material
	Beam *scene.Material
}

// DefaultMaterials returns the steel finishes used when none are supplied.
func DefaultMaterials() Materials {
	return Materials{
		Post: scene.NewMaterial("rack-post", 0x6B7B8C),
		Beam: scene.NewMaterial("rack-beam", 0x8A9AA9),
	}
}

// Options control a build.
type Options struct {
	RackID    string
	Materials Materials
	Building  *BuildingContext
	Preserved *Preservation
	Policy    PositionPolicy
}

// Configuration is the rack's effective configuration after a build.
// BaselineY is the rack's world Y with zero clearance offset; all derived
// lengths are in feet. TopClearance stays the roof height (deck) or total
// height (floor); ClearanceOffset is the session offset from BaselineY.
type Configuration struct {
	Parameters
	RackID          string  `json:"rackId"`
	BaselineY       float64 `json:"baselineY"`
	BayCount        int     `json:"bayCount"`
	LastBayWidth    float64 `json:"lastBayWidth"`
	TotalHeight     float64 `json:"totalHeight"`
	ClearanceOffset float64 `json:"clearanceOffset"`
}

// Result is the output of Build.
type Result struct {
	Object        *scene.Object
	SnapPoints    []snap.Point
	Configuration Configuration
	Posts         []*scene.Object
	Beams         []*scene.Object
	// Levels are beam centerlines in the rack's local frame, top to bottom.
	Levels []float64
}

// Empty reports whether the build produced no members.
func (r *Result) Empty() bool { return len(r.Posts) == 0 && len(r.Beams) == 0 }

// Build generates a rack from params. It is deterministic: identical inputs
// produce identical mesh transforms and identical snap points in the same
// order. The rack root sits at (0, BaselineY, 0) unless a saved or
// preserved position moves it; members are placed in the root's frame with
// the rack bottom at local Y 0.
func Build(params Parameters, opts Options) *Result {
	if opts.RackID == "" {
		opts.RackID = "trade-rack"
	}
	if opts.Materials.Post == nil || opts.Materials.Beam == nil {
		def := DefaultMaterials()
		if opts.Materials.Post == nil {
			opts.Materials.Post = def.Post
		}
		if opts.Materials.Beam == nil {
			opts.Materials.Beam = def.Beam
		}
	}
	if !opts.Policy.Valid() {
		opts.Policy = TemporaryWins
	}

	p := params.Normalize()
	if opts.Building != nil && p.MountType == MountDeck {
		ch, bd := opts.Building.CorridorHeight.TotalFeet(), opts.Building.BeamDepth.TotalFeet()
		if validPositive(ch) && bd >= 0 && ch > bd {
			p.TopClearance = ch - bd
		}
	}

	root := scene.NewObject(GroupName)
	root.ID = opts.RackID
	root.IsGenerated = true
	root.Tag = scene.Tag{Type: scene.TypeTradeRack, OwnerID: opts.RackID, Selectable: true}
	res := &Result{Object: root}

	bayCount, lastBayFt, ok := p.Bays()
	if !ok {
		slog.Warn("invalid rack length or bay width, building empty rack",
			"component", "rack",
			"rack_id", opts.RackID,
			"rack_length", p.RackLength.String(),
			"bay_width", p.BayWidth.String(),
		)
		res.Configuration = Configuration{Parameters: p, RackID: opts.RackID}
		root.Data = res.Configuration
		return res
	}

	lengthM := p.RackLength.Meters()
	depthM := p.RackWidth.Meters()
	if !validPositive(depthM) {
		slog.Warn("invalid rack width, using default", "component", "rack", "rack_id", opts.RackID)
		depthM = units.FtToM(DefaultRackWidthFt)
	}
	bayM := p.BayWidth.Meters()
	postM := units.InToM(p.PostSizeIn())
	beamM := units.InToM(p.BeamSizeIn())

	tiersM := make([]float64, len(p.TierHeights))
	var sumTiers float64
	for i, h := range p.TierHeights {
		tiersM[i] = math.Max(h.Meters(), 0)
		sumTiers += tiersM[i]
	}
	heightM := sumTiers + float64(p.TierCount+1)*beamM

	// Beam centerlines, local frame, rack bottom at 0.
	levels := make([]float64, 0, p.TierCount+1)
	var baselineY float64
	switch p.MountType {
	case MountFloor:
		baselineY = 0
		y := 0.0
		levels = append(levels, y+beamM/2)
		y += beamM
		for _, t := range tiersM {
			y += t
			levels = append(levels, y+beamM/2)
			y += beamM
		}
		p.TopClearance = units.MToFt(heightM)
		reverse(levels)
	default:
		roofY := units.FtToM(p.TopClearance)
		baselineY = roofY - heightM
		y := heightM
		levels = append(levels, y-beamM/2)
		y -= beamM
		for _, t := range tiersM {
			y -= t
			levels = append(levels, y-beamM/2)
			y -= beamM
		}
	}
	res.Levels = levels

	dx, dz := lengthM/2, depthM/2
	xs := make([]float64, 0, bayCount+1)
	for i := 0; i < bayCount; i++ {
		xs = append(xs, -dx+float64(i)*bayM)
	}
	xs = append(xs, dx)
	rows := []struct {
		side string
		z    float64
	}{{"right", -(dz - postM/2)}, {"left", dz - postM/2}}

	for i, x := range xs {
		for _, row := range rows {
			post := member(opts.RackID, fmt.Sprintf("post-%d-%s", i, row.side), RolePost,
				geom.NewBoxGeometry(postM, heightM, postM), opts.Materials.Post)
			post.Position = geom.V(x, heightM/2, row.z)
			root.Add(post)
			res.Posts = append(res.Posts, post)
		}
	}

	top, bottom := levels[0], levels[len(levels)-1]
	for li, y := range []float64{top, bottom} {
		for _, row := range rows {
			beam := member(opts.RackID, fmt.Sprintf("long-%d-%s", li, row.side), RoleLongitudinalBeam,
				geom.NewBoxGeometry(lengthM, beamM, beamM), opts.Materials.Beam)
			beam.Position = geom.V(0, y, row.z)
			root.Add(beam)
			res.Beams = append(res.Beams, beam)
		}
		if top == bottom {
			break
		}
	}

	for li, y := range levels {
		for i, x := range xs {
			beam := member(opts.RackID, fmt.Sprintf("trans-%d-%d", li, i), RoleTransverseBeam,
				geom.NewBoxGeometry(beamM, beamM, depthM), opts.Materials.Beam)
			beam.Position = geom.V(x, y, 0)
			root.Add(beam)
			res.Beams = append(res.Beams, beam)
		}
	}

	root.Position = geom.V(0, baselineY, 0)
	place(root, p, baselineY, opts)

	res.Configuration = Configuration{
		Parameters:   p,
		RackID:       opts.RackID,
		BaselineY:    baselineY,
		BayCount:     bayCount,
		LastBayWidth: lastBayFt,
		TotalHeight:  units.MToFt(heightM),
	}
	if pr := opts.Preserved; pr != nil && pr.Clearance != nil && validFinite(*pr.Clearance) {
		res.Configuration.ClearanceOffset = *pr.Clearance
	}
	root.Data = res.Configuration

	res.SnapPoints = RefreshSnapPoints(root, opts.RackID)
	return res
}

// ClearanceY returns the root Y for a clearance offset (feet) from baselineY.
// Deck racks drop below the baseline, floor racks rise above it.
func ClearanceY(mount MountType, baselineY, clearanceFt float64) float64 {
	off := units.FtToM(clearanceFt)
	if mount == MountFloor {
		return baselineY + off
	}
	return baselineY - off
}

// ClearanceFromY is the inverse of ClearanceY.
func ClearanceFromY(mount MountType, baselineY, y float64) float64 {
	if mount == MountFloor {
		return units.MToFt(y - baselineY)
	}
	return units.MToFt(baselineY - y)
}

// place applies the saved position and session preservation to root.
func place(root *scene.Object, p Parameters, baselineY float64, opts Options) {
	if p.Position != nil && p.Position.IsFinite() {
		root.Position = *p.Position
		if opts.Policy == SavedWins {
			return
		}
	}
	pr := opts.Preserved
	if pr == nil {
		return
	}
	if pr.Position != nil && pr.Position.IsFinite() {
		root.Position.X = pr.Position.X
		root.Position.Z = pr.Position.Z
		root.Position.Y = pr.Position.Y
	}
	if pr.Clearance != nil && validFinite(*pr.Clearance) {
		root.Position.Y = ClearanceY(p.MountType, baselineY, *pr.Clearance)
	}
}

// RefreshSnapPoints recomputes world matrices under obj and extracts the
// rack-tagged snap points of every member, posts first then beams, in
// child order.
func RefreshSnapPoints(obj *scene.Object, rackID string) []snap.Point {
	obj.UpdateMatrixWorld()
	var out []snap.Point
	for _, role := range []string{RolePost, RoleLongitudinalBeam, RoleTransverseBeam} {
		for _, m := range obj.Children() {
			if m.Geometry == nil || m.Tag.Role != role {
				continue
			}
			set := geom.ExtractSnapPoints(m.Geometry, m.MatrixWorld())
			out = append(out, snap.FromSet(set, rackID, snap.OwnerRack)...)
		}
	}
	return out
}

func member(rackID, name, role string, g *geom.Geometry, m *scene.Material) *scene.Object {
	o := scene.NewMesh(name, g, m)
	o.ID = rackID + "/" + name
	o.Tag = scene.Tag{Type: scene.TypeTradeRack, OwnerID: rackID, Role: role, Selectable: true}
	return o
}

func validFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
