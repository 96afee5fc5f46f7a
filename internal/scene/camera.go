package scene

import (
	"math"

	"github.com/hyperengineering/traderack/internal/geom"
)

// Projection selects perspective or orthographic rays.
type Projection string

const (
	Perspective  Projection = "perspective"
	Orthographic Projection = "orthographic"
)

// Camera is the viewer. Orthographic cameras use HalfHeight (meters at
// zoom 1) for their frustum.
type Camera struct {
	Projection Projection `json:"projection"`
	Position   geom.Vec3  `json:"position"`
	Target     geom.Vec3  `json:"target"`
	Up         geom.Vec3  `json:"up"`
	FOV        float64    `json:"fov"` // vertical, degrees
	Aspect     float64    `json:"aspect"`
	Zoom       float64    `json:"zoom"`
	HalfHeight float64    `json:"halfHeight"`
}

// NewCamera returns a perspective camera looking at the origin.
func NewCamera() *Camera {
	return &Camera{
		Projection: Perspective,
		Position:   geom.V(10, 8, 10),
		Up:         geom.V(0, 1, 0),
		FOV:        50,
		Aspect:     16.0 / 9.0,
		Zoom:       1,
		HalfHeight: 5,
	}
}

// basis returns forward, right and up unit vectors.
func (c *Camera) basis() (fwd, right, up geom.Vec3) {
	fwd = c.Target.Sub(c.Position).Normalize()
	worldUp := c.Up
	if worldUp == (geom.Vec3{}) {
		worldUp = geom.V(0, 1, 0)
	}
	right = fwd.Cross(worldUp).Normalize()
	if right == (geom.Vec3{}) {
		right = geom.V(1, 0, 0)
	}
	up = right.Cross(fwd)
	return fwd, right, up
}

func (c *Camera) zoom() float64 {
	if c.Zoom <= 0 || math.IsNaN(c.Zoom) {
		return 1
	}
	return c.Zoom
}

// RayThrough returns the pick ray through a normalized device coordinate.
func (c *Camera) RayThrough(ndc geom.Vec2) geom.Ray {
	fwd, right, up := c.basis()
	aspect := c.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	if c.Projection == Orthographic {
		hh := c.HalfHeight / c.zoom()
		origin := c.Position.
			Add(right.Scale(ndc.X * hh * aspect)).
			Add(up.Scale(ndc.Y * hh))
		return geom.Ray{Origin: origin, Direction: fwd}
	}
	tanHalf := math.Tan(c.FOV*math.Pi/360) / c.zoom()
	dir := fwd.
		Add(right.Scale(ndc.X * tanHalf * aspect)).
		Add(up.Scale(ndc.Y * tanHalf)).
		Normalize()
	return geom.Ray{Origin: c.Position, Direction: dir}
}

// Rotation returns the camera's Euler angles (pitch, yaw, 0) in radians.
func (c *Camera) Rotation() geom.Vec3 {
	fwd, _, _ := c.basis()
	return geom.V(math.Asin(clamp(fwd.Y, -1, 1)), math.Atan2(-fwd.X, -fwd.Z), 0)
}

// Clone returns a copy of the camera.
func (c *Camera) Clone() *Camera {
	cp := *c
	return &cp
}

// MouseMode is the primary-button behavior of the orbit controls.
type MouseMode string

const (
	MouseDefault MouseMode = "default"
	MousePan     MouseMode = "pan"
	MouseOrbit   MouseMode = "orbit"
)

// Controls is the state of the external orbit controls.
type Controls struct {
	EnableRotate bool      `json:"enableRotate"`
	Mode         MouseMode `json:"mode"`
	Enabled      bool      `json:"enabled"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
