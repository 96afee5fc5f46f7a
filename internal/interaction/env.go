// Package interaction implements selection, hover, gizmo dragging with
// snapping, and dimension edits for MEP items and the rack, plus the
// arbiter that routes pointer picks to the right controller.
package interaction

import (
	"context"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/snap"
	"github.com/hyperengineering/traderack/internal/snapline"
)

// DefaultSnapTolerance is the drag snapping distance in meters (about 1.2 in).
const DefaultSnapTolerance = 0.03

// StateSink persists interaction results into session state.
type StateSink interface {
	// UpsertMEPItem stores item, matched by base id and type, and returns
	// the updated active item list.
	UpsertMEPItem(ctx context.Context, item mep.Item) ([]mep.Item, error)
	// SaveRackState stores the rack's temporary position and clearance (feet).
	SaveRackState(ctx context.Context, position geom.Vec3, clearanceFt float64) error
}

// Env is the set of collaborators shared by every controller.
type Env struct {
	Scene         *scene.Scene
	Lines         *snapline.Manager
	Snaps         *snap.Index
	Factory       *mep.Factory
	State         StateSink
	Events        events.Publisher
	SnapTolerance float64
}

func (e *Env) tolerance() float64 {
	if e.SnapTolerance > 0 {
		return e.SnapTolerance
	}
	return DefaultSnapTolerance
}

func (e *Env) publish(name events.Name, detail any) {
	if e.Events != nil {
		e.Events.Publish(name, detail)
	}
}

// Handler is the per-variant surface the arbiter drives.
type Handler interface {
	Select(obj *scene.Object)
	Deselect()
	SetHover(obj *scene.Object)
	ClearHover()
	Dragging() bool
	IsSelected() bool
}
