package interaction

import (
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/snapline"
	"github.com/hyperengineering/traderack/internal/units"
)

// Measurement is a dimension line from an object's side face to a post
// inner face.
type Measurement struct {
	Side     snapline.Side `json:"side"`
	From     geom.Vec3     `json:"from"`
	To       geom.Vec3     `json:"to"`
	Distance float64       `json:"distance"`
	Label    string        `json:"label"`
}

// measureToPosts builds one measurement per post line. Missing lines yield
// no measurement.
func measureToPosts(center geom.Vec3, halfZ float64, lines snapline.Lines) []Measurement {
	var out []Measurement
	if v, ok := lines.VerticalOn(snapline.SideRight); ok {
		from := geom.V(center.X, center.Y, center.Z-halfZ)
		to := geom.V(center.X, center.Y, v.Z)
		d := from.Z - to.Z
		out = append(out, Measurement{Side: snapline.SideRight, From: from, To: to, Distance: d, Label: units.FormatFeetInches(d)})
	}
	if v, ok := lines.VerticalOn(snapline.SideLeft); ok {
		from := geom.V(center.X, center.Y, center.Z+halfZ)
		to := geom.V(center.X, center.Y, v.Z)
		d := to.Z - from.Z
		out = append(out, Measurement{Side: snapline.SideLeft, From: from, To: to, Distance: d, Label: units.FormatFeetInches(d)})
	}
	return out
}
