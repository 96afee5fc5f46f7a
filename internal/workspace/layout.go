package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/layout"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/snapline"
	"github.com/hyperengineering/traderack/internal/units"
)

// LayoutRequest tunes a layout search. Zero fields take the rack's current
// values or the optimizer defaults.
type LayoutRequest struct {
	MaxTiers       int     `json:"maxTiers,omitempty"`
	MaxTotalHeight float64 `json:"maxTotalHeight,omitempty"` // meters
	Population     int     `json:"population,omitempty"`
	Generations    int     `json:"generations,omitempty"`
	Seed           uint64  `json:"seed,omitempty"`
}

// LayoutSuggestion is a proposed tier arrangement for the scene's items.
type LayoutSuggestion struct {
	// TierHeights are ordered the way the rack parameters order them.
	TierHeights []units.Length   `json:"tierHeights"`
	Solution    *layout.Solution `json:"solution"`
}

// SuggestLayout searches for tiers that hold every MEP item in the least
// height. The rack is not changed.
func (w *Workspace) SuggestLayout(ctx context.Context, req LayoutRequest) (*LayoutSuggestion, error) {
	w.mu.Lock()
	items := w.items()
	opts := w.layoutOptions(req)
	mount := w.params.MountType
	w.mu.Unlock()

	// The search runs without the lock; it only reads the copies above.
	sol, err := layout.Optimize(ctx, layout.FromItems(items), opts)
	if err != nil {
		return nil, fmt.Errorf("suggest layout: %w", err)
	}
	slog.Info("layout suggested",
		"component", "workspace",
		"action", "suggest_layout",
		"tiers", len(sol.Tiers),
		"placed", sol.Placed,
		"unplaced", len(sol.Unplaced),
		"generations", sol.Generations,
	)
	return &LayoutSuggestion{TierHeights: tierHeights(sol, mount), Solution: sol}, nil
}

func (w *Workspace) layoutOptions(req LayoutRequest) layout.Options {
	o := layout.DefaultOptions()
	o.Width = w.clearWidth()
	o.MaxTotalHeight = req.MaxTotalHeight
	if !(o.MaxTotalHeight > 0) {
		for _, h := range w.params.TierHeights {
			o.MaxTotalHeight += h.Meters()
		}
	}
	if req.MaxTiers > 0 {
		o.MaxTiers = req.MaxTiers
	}
	if req.Population > 0 {
		o.Population = req.Population
	}
	if req.Generations > 0 {
		o.Generations = req.Generations
	}
	if req.Seed != 0 {
		o.Seed = req.Seed
	}
	return o
}

// clearWidth is the distance between the inner post faces in meters.
func (w *Workspace) clearWidth() float64 {
	lines := w.lines.Lines()
	right, okR := lines.VerticalOn(snapline.SideRight)
	left, okL := lines.VerticalOn(snapline.SideLeft)
	if okR && okL && left.Z > right.Z {
		return left.Z - right.Z
	}
	return w.params.RackWidth.Meters() - 2*units.InToM(w.params.PostSizeIn())
}

// tierHeights converts solution tiers, listed top down, to rack tier
// heights rounded up to whole inches. Floor racks list tiers bottom up.
func tierHeights(sol *layout.Solution, mount rack.MountType) []units.Length {
	out := make([]units.Length, len(sol.Tiers))
	for i, t := range sol.Tiers {
		in := math.Ceil(units.MToIn(t.Height) - 1e-6)
		out[i] = units.FeetInches(math.Floor(in/units.InchesPerFoot), math.Mod(in, units.InchesPerFoot))
	}
	if mount == rack.MountFloor {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// ApplyLayout rebuilds the rack with the suggestion's tiers and moves every
// placed item onto its beam: bottom placements rest on the tier's lower
// beam, top placements hang under its upper beam. Items keep their X.
func (w *Workspace) ApplyLayout(ctx context.Context, s *LayoutSuggestion) (RackView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s == nil || s.Solution == nil || len(s.TierHeights) == 0 {
		return RackView{}, fmt.Errorf("apply layout: empty suggestion")
	}
	p := w.params.Clone()
	p.TierCount = len(s.TierHeights)
	p.TierHeights = append([]units.Length(nil), s.TierHeights...)
	w.params = p.Normalize()
	w.manifest.RecordParameterChange(ctx, w.params, "tierHeights")
	w.rebuild(ctx)

	spaces := w.lines.TierSpaces()
	right, ok := w.lines.Lines().VerticalOn(snapline.SideRight)
	if !ok {
		return RackView{}, fmt.Errorf("apply layout: rack has no posts")
	}
	moved := 0
	for _, k := range mep.Kinds {
		for _, g := range w.layers[k].Children() {
			pl, ti, found := s.Solution.Find(g.ID)
			if !found || ti >= len(spaces) {
				continue
			}
			item, _ := g.Data.(mep.Item)
			halfY, halfZ := item.HalfExtents()
			space := spaces[ti]
			y := space.Bottom + halfY
			if pl.Side == layout.Top {
				y = space.Top - halfY
			}
			g.Position = geom.V(g.Position.X, y, right.Z+pl.X+halfZ)
			g.UpdateMatrixWorld()
			tier := w.ctrls[k].CalculateTier(y)
			item.Tier, item.TierName = tier.Tier, tier.TierName
			pos := g.Position
			item.Position = &pos
			g.Data = item
			w.snaps.ReplaceOwner(g.ID, w.factory.SnapPoints(g, w.lines.AvailableDuctLength()))
			w.persistItem(ctx, item)
			moved++
		}
	}
	w.refreshSelection()
	w.publishRackUpdated()
	slog.Info("layout applied", "component", "workspace", "action", "apply_layout", "tiers", p.TierCount, "moved", moved)
	return w.rackView(), nil
}
