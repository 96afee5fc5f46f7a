// Package mep models ducts, pipes, conduits and cable trays and builds
// their scene groups.
package mep

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/units"
)

// Kind is an MEP item kind.
type Kind string

const (
	Duct      Kind = "duct"
	Pipe      Kind = "pipe"
	Conduit   Kind = "conduit"
	CableTray Kind = "cableTray"
)

// Kinds lists every kind in layer order.
var Kinds = []Kind{Duct, Pipe, Conduit, CableTray}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case Duct, Pipe, Conduit, CableTray:
		return true
	}
	return false
}

// ObjectType maps k onto the scene's closed object-type set.
func (k Kind) ObjectType() scene.ObjectType { return scene.ObjectType(k) }

// KindOf maps a scene object type back onto a kind.
func KindOf(t scene.ObjectType) (Kind, bool) {
	k := Kind(t)
	return k, k.Valid()
}

// Category is the persisted bucket name of k.
func (k Kind) Category() string {
	switch k {
	case Duct:
		return "ductwork"
	case Pipe:
		return "piping"
	case Conduit:
		return "conduits"
	case CableTray:
		return "cableTrays"
	}
	return ""
}

// LayerName is the scene group that holds every item of kind k.
func (k Kind) LayerName() string {
	switch k {
	case Duct:
		return "Ductwork"
	case Pipe:
		return "Piping"
	case Conduit:
		return "Conduits"
	case CableTray:
		return "CableTrays"
	}
	return ""
}

// KindForLayer resolves a layer group name.
func KindForLayer(name string) (Kind, bool) {
	for _, k := range Kinds {
		if k.LayerName() == name {
			return k, true
		}
	}
	return "", false
}

// PipeTypes are the accepted pipe materials.
var PipeTypes = []string{"copper", "steel", "pvc", "hdpe", "cast_iron", "pex"}

// Item is one MEP run. Dimensions are inches, Position is meters.
type Item struct {
	ID          string     `json:"id"`
	Type        Kind       `json:"type"`
	Name        string     `json:"name,omitempty"`
	Width       float64    `json:"width,omitempty"`
	Height      float64    `json:"height,omitempty"`
	Insulation  float64    `json:"insulation,omitempty"`
	Diameter    float64    `json:"diameter,omitempty"`
	PipeType    string     `json:"pipeType,omitempty"`
	ConduitType string     `json:"conduitType,omitempty"`
	Count       int        `json:"count,omitempty"`
	Spacing     float64    `json:"spacing,omitempty"`
	TrayType    string     `json:"trayType,omitempty"`
	Tier        *int       `json:"tier,omitempty"`
	TierName    string     `json:"tierName,omitempty"`
	Position    *geom.Vec3 `json:"position,omitempty"`
	Color       string     `json:"color,omitempty"`
}

// Clone returns a deep copy.
func (it Item) Clone() Item {
	c := it
	if it.Tier != nil {
		t := *it.Tier
		c.Tier = &t
	}
	if it.Position != nil {
		p := *it.Position
		c.Position = &p
	}
	return c
}

// BaseID strips trailing copy suffixes ("_k" followed by digits) from an id.
func BaseID(id string) string {
	for {
		i := strings.LastIndex(id, "_k")
		if i <= 0 || !allDigits(id[i+2:]) {
			return id
		}
		id = id[:i]
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Dimensions is a partial dimension edit. Nil fields are left unchanged.
type Dimensions struct {
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Insulation  *float64 `json:"insulation,omitempty"`
	Diameter    *float64 `json:"diameter,omitempty"`
	PipeType    *string  `json:"pipeType,omitempty"`
	ConduitType *string  `json:"conduitType,omitempty"`
	Count       *int     `json:"count,omitempty"`
	Spacing     *float64 `json:"spacing,omitempty"`
	TrayType    *string  `json:"trayType,omitempty"`
	Color       *string  `json:"color,omitempty"`
	Name        *string  `json:"name,omitempty"`
}

// Apply merges d into it.
func (d Dimensions) Apply(it Item) Item {
	out := it.Clone()
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setS := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&out.Width, d.Width)
	setF(&out.Height, d.Height)
	setF(&out.Insulation, d.Insulation)
	setF(&out.Diameter, d.Diameter)
	setF(&out.Spacing, d.Spacing)
	setS(&out.PipeType, d.PipeType)
	setS(&out.ConduitType, d.ConduitType)
	setS(&out.TrayType, d.TrayType)
	setS(&out.Color, d.Color)
	setS(&out.Name, d.Name)
	if d.Count != nil {
		out.Count = *d.Count
	}
	return out
}

// ErrInvalidDimensions reports unusable dimensions.
var ErrInvalidDimensions = errors.New("invalid mep dimensions")

func positiveFinite(v float64) bool { return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) }

func nonNegativeFinite(v float64) bool { return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v) }

// Validate checks the dimensions required by the item's kind.
func (it Item) Validate() error {
	if !nonNegativeFinite(it.Insulation) {
		return fmt.Errorf("%w: insulation %v", ErrInvalidDimensions, it.Insulation)
	}
	switch it.Type {
	case Duct, CableTray:
		if !positiveFinite(it.Width) || !positiveFinite(it.Height) {
			return fmt.Errorf("%w: %s %vx%v", ErrInvalidDimensions, it.Type, it.Width, it.Height)
		}
	case Pipe:
		if !positiveFinite(it.Diameter) {
			return fmt.Errorf("%w: pipe diameter %v", ErrInvalidDimensions, it.Diameter)
		}
	case Conduit:
		if !positiveFinite(it.Diameter) {
			return fmt.Errorf("%w: conduit diameter %v", ErrInvalidDimensions, it.Diameter)
		}
		if it.Count < 0 || !nonNegativeFinite(it.Spacing) {
			return fmt.Errorf("%w: conduit count %d spacing %v", ErrInvalidDimensions, it.Count, it.Spacing)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDimensions, it.Type)
	}
	return nil
}

// conduitCount is the number of runs in a conduit bank, at least 1.
func (it Item) conduitCount() int {
	if it.Count < 1 {
		return 1
	}
	return it.Count
}

// HalfExtents returns the half height (Y) and half width (Z) in meters that
// drag snapping aligns against beam and post faces. Pipes include their
// insulation.
func (it Item) HalfExtents() (halfY, halfZ float64) {
	switch it.Type {
	case Duct, CableTray:
		return units.InToM(it.Height) / 2, units.InToM(it.Width) / 2
	case Pipe:
		r := units.InToM(it.Diameter/2 + it.Insulation)
		return r, r
	case Conduit:
		n := float64(it.conduitCount())
		width := n*it.Diameter + (n-1)*it.Spacing
		return units.InToM(it.Diameter) / 2, units.InToM(width) / 2
	}
	return 0, 0
}

// Size describes the cross-section for labels, e.g. `12"x10"` or `4" copper`.
func (it Item) Size() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) + `"` }
	switch it.Type {
	case Duct, CableTray:
		return f(it.Width) + "x" + f(it.Height)
	case Pipe:
		if it.PipeType != "" {
			return f(it.Diameter) + " " + it.PipeType
		}
		return f(it.Diameter)
	case Conduit:
		return fmt.Sprintf("%dx%s", it.conduitCount(), f(it.Diameter))
	}
	return ""
}

// ParseColor reads "#RRGGBB", "RRGGBB" or "0xRRGGBB".
func ParseColor(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 6 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
