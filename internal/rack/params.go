// Package rack builds the parametric trade-rack structure: posts, beams,
// beam levels and the rack-owned snap points.
package rack

import (
	"log/slog"
	"math"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/units"
)

// MountType is how the rack is supported.
type MountType string

const (
	MountDeck  MountType = "deck"
	MountFloor MountType = "floor"
)

// Valid reports whether m is a known mount type.
func (m MountType) Valid() bool { return m == MountDeck || m == MountFloor }

// MemberType selects a post or beam size class.
type MemberType string

const (
	MemberStandard MemberType = "standard"
	MemberHeavy    MemberType = "heavy"
	MemberLight    MemberType = "light"
)

// Member sizes in inches.
var (
	ColumnSizes = map[MemberType]float64{MemberStandard: 3, MemberHeavy: 4, MemberLight: 2}
	BeamSizes   = map[MemberType]float64{MemberStandard: 3, MemberHeavy: 4, MemberLight: 2}
)

// Defaults used when a parameter is missing or unusable.
const (
	DefaultMemberSizeIn = 3.0
	DefaultRackWidthFt  = 4.0
	DefaultTierHeightFt = 2.0
	// ShortBayThresholdIn is the remainder above which a short final bay is added.
	ShortBayThresholdIn = 1.0
	// MinBayWidthFt and MaxBayCount bound the member count of a build.
	MinBayWidthFt = 1.0
	MaxBayCount   = 500
)

// Parameters is the rack parameter record. Lengths are units.Length values;
// TopClearance is in feet; Position is meters.
type Parameters struct {
	MountType    MountType      `json:"mountType"`
	RackLength   units.Length   `json:"rackLength"`
	RackWidth    units.Length   `json:"rackWidth"`
	BayWidth     units.Length   `json:"bayWidth"`
	TierCount    int            `json:"tierCount"`
	TierHeights  []units.Length `json:"tierHeights"`
	ColumnType   MemberType     `json:"columnType,omitempty"`
	BeamType     MemberType     `json:"beamType,omitempty"`
	TopClearance float64        `json:"topClearance"`
	Position     *geom.Vec3     `json:"position,omitempty"`

	PostSize    *float64               `json:"postSize,omitempty"`
	ColumnSize  *float64               `json:"columnSize,omitempty"`
	ColumnSizes map[MemberType]float64 `json:"columnSizes,omitempty"`
	BeamSize    *float64               `json:"beamSize,omitempty"`

	DuctEnabled      []bool `json:"ductEnabled,omitempty"`
	PipeEnabled      []bool `json:"pipeEnabled,omitempty"`
	ConduitEnabled   []bool `json:"conduitEnabled,omitempty"`
	CableTrayEnabled []bool `json:"cableTrayEnabled,omitempty"`
}

// DefaultParameters returns the parameters of a fresh project.
func DefaultParameters() Parameters {
	return Parameters{
		MountType:    MountDeck,
		RackLength:   units.FeetInches(12, 0),
		RackWidth:    units.FeetInches(4, 0),
		BayWidth:     units.FeetInches(3, 0),
		TierCount:    2,
		TierHeights:  []units.Length{units.FeetInches(2, 0), units.FeetInches(2, 0)},
		ColumnType:   MemberStandard,
		BeamType:     MemberStandard,
		TopClearance: 15,
	}
}

// Clone returns a deep copy.
func (p Parameters) Clone() Parameters {
	c := p
	c.TierHeights = append([]units.Length(nil), p.TierHeights...)
	c.DuctEnabled = append([]bool(nil), p.DuctEnabled...)
	c.PipeEnabled = append([]bool(nil), p.PipeEnabled...)
	c.ConduitEnabled = append([]bool(nil), p.ConduitEnabled...)
	c.CableTrayEnabled = append([]bool(nil), p.CableTrayEnabled...)
	if p.Position != nil {
		pos := *p.Position
		c.Position = &pos
	}
	if p.ColumnSizes != nil {
		c.ColumnSizes = make(map[MemberType]float64, len(p.ColumnSizes))
		for k, v := range p.ColumnSizes {
			c.ColumnSizes[k] = v
		}
	}
	return c
}

// Normalize pads or truncates TierHeights and the per-tier enable arrays to
// TierCount. A TierCount below 1 becomes 1. Missing bay width, member types
// and deck roof height take the DefaultParameters values.
func (p Parameters) Normalize() Parameters {
	n := p.Clone()
	def := DefaultParameters()
	if n.BayWidth.IsZero() {
		n.BayWidth = def.BayWidth
	}
	if n.ColumnType == "" {
		n.ColumnType = def.ColumnType
	}
	if n.BeamType == "" {
		n.BeamType = def.BeamType
	}
	if n.TierCount < 1 {
		slog.Warn("tier count below 1, using 1", "component", "rack", "tier_count", n.TierCount)
		n.TierCount = 1
	}
	if !n.MountType.Valid() {
		if n.MountType != "" {
			slog.Warn("unknown mount type, using deck", "component", "rack", "mount_type", string(n.MountType))
		}
		n.MountType = MountDeck
	}
	if n.MountType == MountDeck && n.TopClearance == 0 {
		n.TopClearance = def.TopClearance
	}
	for len(n.TierHeights) < n.TierCount {
		n.TierHeights = append(n.TierHeights, units.FeetInches(DefaultTierHeightFt, 0))
	}
	n.TierHeights = n.TierHeights[:n.TierCount]
	n.DuctEnabled = padBools(n.DuctEnabled, n.TierCount)
	n.PipeEnabled = padBools(n.PipeEnabled, n.TierCount)
	n.ConduitEnabled = padBools(n.ConduitEnabled, n.TierCount)
	n.CableTrayEnabled = padBools(n.CableTrayEnabled, n.TierCount)
	return n
}

// padBools resizes a present array; absent arrays stay absent.
func padBools(b []bool, n int) []bool {
	if len(b) == 0 {
		return nil
	}
	for len(b) < n {
		b = append(b, false)
	}
	return b[:n]
}

// PostSizeIn resolves the post cross-section in inches:
// PostSize, then ColumnSize, then ColumnSizes[ColumnType], then the size
// table, then 3 in.
func (p Parameters) PostSizeIn() float64 {
	for _, v := range []*float64{p.PostSize, p.ColumnSize} {
		if v != nil && validPositive(*v) {
			return *v
		}
	}
	if v, ok := p.ColumnSizes[p.ColumnType]; ok && validPositive(v) {
		return v
	}
	if v, ok := ColumnSizes[p.ColumnType]; ok {
		return v
	}
	return DefaultMemberSizeIn
}

// BeamSizeIn resolves the beam depth in inches.
func (p Parameters) BeamSizeIn() float64 {
	if p.BeamSize != nil && validPositive(*p.BeamSize) {
		return *p.BeamSize
	}
	if v, ok := BeamSizes[p.BeamType]; ok {
		return v
	}
	return DefaultMemberSizeIn
}

// Bays decomposes the rack length into whole bays plus an optional short
// final bay. bayCount includes the short bay. lastBayFt equals the bay
// width when there is no short bay. ok is false when the length or bay
// width is unusable or the rack would need more than MaxBayCount bays.
func (p Parameters) Bays() (bayCount int, lastBayFt float64, ok bool) {
	length := p.RackLength.TotalFeet()
	bay := p.BayWidth.TotalFeet()
	if !validPositive(length) || !validPositive(bay) {
		return 0, 0, false
	}
	whole := math.Floor(length/bay + 1e-9)
	if whole > MaxBayCount {
		return 0, 0, false
	}
	remainder := length - whole*bay
	if remainder < 0 {
		remainder = 0
	}
	bayCount = int(whole)
	lastBayFt = bay
	if units.FtToIn(remainder) > ShortBayThresholdIn {
		bayCount++
		lastBayFt = remainder
	}
	if bayCount == 0 {
		// Rack shorter than one bay (within the threshold): a single bay.
		bayCount, lastBayFt = 1, length
	}
	return bayCount, lastBayFt, true
}

func validPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
