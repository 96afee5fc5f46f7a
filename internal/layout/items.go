package layout

import (
	"github.com/hyperengineering/traderack/internal/mep"
)

// FromItems returns the cross sections of items. Items without a usable
// cross section are skipped.
func FromItems(items []mep.Item) []Rect {
	rects := make([]Rect, 0, len(items))
	for _, it := range items {
		halfY, halfZ := it.HalfExtents()
		if halfY <= 0 || halfZ <= 0 {
			continue
		}
		rects = append(rects, Rect{ID: it.ID, Width: 2 * halfZ, Height: 2 * halfY})
	}
	return rects
}

// Find returns the placement of id and the index of its tier.
func (s *Solution) Find(id string) (Placement, int, bool) {
	for ti, t := range s.Tiers {
		for _, p := range t.Bottom {
			if p.ID == id {
				return p, ti, true
			}
		}
		for _, p := range t.Top {
			if p.ID == id {
				return p, ti, true
			}
		}
	}
	return Placement{}, 0, false
}
