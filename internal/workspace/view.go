package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/tempstate"
	"github.com/hyperengineering/traderack/internal/units"
)

// ViewMode is the camera mode.
type ViewMode string

const (
	View2D ViewMode = "2D"
	View3D ViewMode = "3D"
)

// fitPadding pads the 2D view around the rack cross-section.
const fitPadding = 1.2

// View is the camera and controls state.
type View struct {
	Mode     ViewMode       `json:"mode"`
	Camera   scene.Camera   `json:"camera"`
	Controls scene.Controls `json:"controls"`
}

type savedView struct {
	camera   *scene.Camera
	controls scene.Controls
}

// CameraUpdate is a partial camera move. Nil fields are unchanged.
type CameraUpdate struct {
	Position *geom.Vec3 `json:"position,omitempty"`
	Target   *geom.Vec3 `json:"target,omitempty"`
	Zoom     *float64   `json:"zoom,omitempty"`
	Aspect   *float64   `json:"aspect,omitempty"`
}

// View returns the camera state.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewState()
}

func (w *Workspace) viewState() View {
	return View{Mode: w.view, Camera: *w.camera.Clone(), Controls: w.controls}
}

// restoreCamera applies the session's last camera. A 2D session restarts
// in 3D since the rack it was fitted to is rebuilt.
func (w *Workspace) restoreCamera() {
	cam := w.temp.Snapshot().Camera
	if cam.Position.IsFinite() && cam.Position != (geom.Vec3{}) {
		w.camera.Position = cam.Position
	}
	if cam.Target.IsFinite() {
		w.camera.Target = cam.Target
	}
	if cam.Zoom > 0 && !math.IsInf(cam.Zoom, 0) {
		w.camera.Zoom = cam.Zoom
	}
}

// syncCamera queues a debounced write of the camera to the session.
func (w *Workspace) syncCamera() {
	w.temp.UpdateCamera(tempstate.Camera{
		Position: w.camera.Position,
		Rotation: w.camera.Rotation(),
		Zoom:     w.camera.Zoom,
		Target:   w.camera.Target,
		ViewMode: string(w.view),
	})
}

// UpdateCamera moves the camera, as the orbit controls would.
func (w *Workspace) UpdateCamera(u CameraUpdate) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u.Position != nil {
		if !u.Position.IsFinite() {
			return View{}, fmt.Errorf("camera position is not finite")
		}
		w.camera.Position = *u.Position
	}
	if u.Target != nil {
		if !u.Target.IsFinite() {
			return View{}, fmt.Errorf("camera target is not finite")
		}
		w.camera.Target = *u.Target
	}
	if u.Zoom != nil && *u.Zoom > 0 && !math.IsInf(*u.Zoom, 0) {
		w.camera.Zoom = *u.Zoom
	}
	if u.Aspect != nil && *u.Aspect > 0 && !math.IsInf(*u.Aspect, 0) {
		w.camera.Aspect = *u.Aspect
	}
	w.syncCamera()
	return w.viewState(), nil
}

// SetViewMode switches between the 3D orbit view and the 2D cross-section.
// 2D looks down +X at the rack center with an orthographic camera fitted
// to the rack height and depth; returning to 3D restores the camera and
// controls saved on the way in.
func (w *Workspace) SetViewMode(mode ViewMode) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch mode {
	case View2D, View3D:
	default:
		return View{}, fmt.Errorf("unknown view mode %q", mode)
	}
	if mode == w.view {
		return w.viewState(), nil
	}
	if mode == View2D {
		w.saved3D = &savedView{camera: w.camera.Clone(), controls: w.controls}
		w.fit2D()
	} else if w.saved3D != nil {
		w.camera = w.saved3D.camera
		w.controls = w.saved3D.controls
		w.saved3D = nil
	}
	w.view = mode
	w.syncCamera()
	slog.Info("view mode changed", "component", "workspace", "action", "view_mode", "mode", string(mode))
	return w.viewState(), nil
}

func (w *Workspace) fit2D() {
	center := w.lines.RackCenter()
	height, depth := 0.0, 0.0
	if cfg, ok := w.rc.Configuration(); ok {
		height = units.FtToM(cfg.TotalHeight)
		depth = cfg.RackWidth.Meters()
	}
	extent := math.Max(height, depth)
	if extent <= 0 {
		extent = units.FtToM(10)
	}
	cam := w.camera.Clone()
	cam.Projection = scene.Orthographic
	cam.Target = center
	cam.Position = center.Add(geom.V(extent*4, 0, 0))
	cam.Up = geom.V(0, 1, 0)
	cam.HalfHeight = extent * fitPadding / 2
	cam.Zoom = 1
	w.camera = cam
	w.controls.EnableRotate = false
	w.controls.Mode = scene.MousePan
}

// Key applies a keyboard shortcut: P pans, O orbits, Escape restores the
// default mouse mode and L logs the camera. It reports whether key was
// handled.
func (w *Workspace) Key(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch strings.ToLower(key) {
	case "p":
		w.controls.Mode = scene.MousePan
	case "o":
		if w.view == View2D {
			slog.Debug("orbit ignored in 2D view", "component", "workspace")
			return true
		}
		w.controls.Mode = scene.MouseOrbit
	case "escape", "esc":
		w.controls.Mode = scene.MouseDefault
	case "l":
		slog.Info("camera",
			"component", "workspace",
			"position", w.camera.Position,
			"target", w.camera.Target,
			"rotation", w.camera.Rotation(),
			"zoom", w.camera.Zoom,
			"projection", string(w.camera.Projection),
			"view_mode", string(w.view),
		)
	default:
		return false
	}
	return true
}

// Flush forces pending session writes.
func (w *Workspace) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.temp.Flush(ctx)
}
