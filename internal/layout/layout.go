// Package layout proposes tier arrangements for MEP runs. Each run's cross
// section is packed into stacked tiers where a run either rests on the
// tier's bottom beam or hangs under its top beam. A genetic search picks
// the run order, tier count and tier heights that place every run in the
// least height without clashes.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
)

// Side is the beam a run is attached to.
type Side string

const (
	Bottom Side = "bottom"
	Top    Side = "top"
)

var (
	ErrNoRects        = errors.New("nothing to lay out")
	ErrInvalidOptions = errors.New("invalid layout options")
)

// Rect is a run cross section in meters: Width across the rack (Z) and
// Height (Y).
type Rect struct {
	ID     string  `json:"id"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Placement locates one run. X is the offset of the run's near edge from the
// tier's near post face.
type Placement struct {
	ID   string  `json:"id"`
	Side Side    `json:"side"`
	X    float64 `json:"x"`
}

// Tier is one proposed tier, listed from the top of the rack down.
type Tier struct {
	Height float64     `json:"height"`
	Bottom []Placement `json:"bottom"`
	Top    []Placement `json:"top"`
}

// Solution is the best layout found.
type Solution struct {
	Tiers       []Tier   `json:"tiers"`
	Placed      int      `json:"placed"`
	Unplaced    []string `json:"unplaced"`
	TotalHeight float64  `json:"totalHeight"`
	Fitness     float64  `json:"fitness"`
	Generations int      `json:"generations"`
}

// Options tune the search. Width is the clear width between posts and
// MaxTotalHeight bounds the sum of tier heights, both in meters.
type Options struct {
	Width          float64
	MaxTotalHeight float64
	MaxTiers       int
	MinTierHeight  float64
	Population     int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	ElitismRate    float64
	Seed           uint64
}

// DefaultOptions returns search settings that converge for typical racks.
func DefaultOptions() Options {
	return Options{
		MaxTiers:      6,
		MinTierHeight: 0.3048,
		Population:    60,
		Generations:   150,
		MutationRate:  0.2,
		CrossoverRate: 0.8,
		ElitismRate:   0.1,
		Seed:          1,
	}
}

func (o Options) validate() error {
	switch {
	case !(o.Width > 0), math.IsInf(o.Width, 0):
		return fmt.Errorf("%w: width %v must be positive", ErrInvalidOptions, o.Width)
	case !(o.MaxTotalHeight > 0), math.IsInf(o.MaxTotalHeight, 0):
		return fmt.Errorf("%w: max height %v must be positive", ErrInvalidOptions, o.MaxTotalHeight)
	case o.MaxTiers < 1:
		return fmt.Errorf("%w: max tiers %d must be at least 1", ErrInvalidOptions, o.MaxTiers)
	case o.Population < 4:
		return fmt.Errorf("%w: population %d must be at least 4", ErrInvalidOptions, o.Population)
	}
	return nil
}

// Optimize searches for a layout of rects. It is deterministic for a given
// Seed. Cancelling ctx stops the search and returns ctx's error.
func Optimize(ctx context.Context, rects []Rect, opts Options) (*Solution, error) {
	if len(rects) == 0 {
		return nil, ErrNoRects
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	o := &optimizer{
		rects: rects,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9E3779B97F4A7C15)),
	}
	best, gens, err := o.evolve(ctx)
	if err != nil {
		return nil, err
	}
	sol := o.solution(best)
	sol.Generations = gens
	slog.Debug("layout search finished", "component", "layout",
		"tiers", len(sol.Tiers), "placed", sol.Placed, "total_height", sol.TotalHeight, "fitness", sol.Fitness)
	return sol, nil
}

// slot is a rect index and its X offset inside a container.
type slot struct {
	idx int
	x   float64
}

type container struct {
	height float64
	bottom []slot
	top    []slot
}

func (c *container) empty() bool { return len(c.bottom) == 0 && len(c.top) == 0 }

type individual struct {
	tiers   int
	heights []float64
	order   []int

	fitness    float64
	containers []container
	placed     int
}

func (ind *individual) clone() *individual {
	c := *ind
	c.heights = append([]float64(nil), ind.heights...)
	c.order = append([]int(nil), ind.order...)
	c.containers = make([]container, len(ind.containers))
	for i, ct := range ind.containers {
		c.containers[i] = container{
			height: ct.height,
			bottom: append([]slot(nil), ct.bottom...),
			top:    append([]slot(nil), ct.top...),
		}
	}
	return &c
}

type optimizer struct {
	rects []Rect
	opts  Options
	rng   *rand.Rand
}

func (o *optimizer) newIndividual() *individual {
	n := 1 + o.rng.IntN(o.opts.MaxTiers)
	ind := &individual{tiers: n, order: o.rng.Perm(len(o.rects))}
	ind.heights = evenHeights(o.opts.MaxTotalHeight, n)
	return ind
}

func evenHeights(total float64, n int) []float64 {
	h := make([]float64, n)
	for i := range h {
		h[i] = total / float64(n)
	}
	return h
}

func (o *optimizer) sideHeight(s []slot) float64 {
	var h float64
	for _, sl := range s {
		h = math.Max(h, o.rects[sl.idx].Height)
	}
	return h
}

// minHeight is the least container height without a clash: runs that
// overlap across the width stack, others may share height.
func (o *optimizer) minHeight(c *container) float64 {
	bh, th := o.sideHeight(c.bottom), o.sideHeight(c.top)
	if len(c.bottom) == 0 || len(c.top) == 0 {
		return bh + th
	}
	var need float64
	for _, b := range c.bottom {
		rb := o.rects[b.idx]
		for _, t := range c.top {
			rt := o.rects[t.idx]
			if overlaps(b.x, rb.Width, t.x, rt.Width) {
				need = math.Max(need, rb.Height+rt.Height)
			}
		}
	}
	if need == 0 {
		need = math.Max(bh, th)
	}
	return need
}

func overlaps(x1, w1, x2, w2 float64) bool {
	return !(x1+w1 <= x2 || x1 >= x2+w2)
}

func (o *optimizer) canPlace(c *container, r Rect, side Side) bool {
	if r.Height > c.height {
		return false
	}
	own, other := c.bottom, c.top
	if side == Top {
		own, other = c.top, c.bottom
	}
	return math.Max(o.sideHeight(own), r.Height) <= c.height-o.sideHeight(other)
}

func (o *optimizer) collides(s []slot, r Rect, x float64) bool {
	for _, sl := range s {
		if overlaps(x, r.Width, sl.x, o.rects[sl.idx].Width) {
			return true
		}
	}
	return false
}

// position finds an X for r on side: first aligned with a run on the
// opposite beam, then the leftmost free gap.
func (o *optimizer) position(c *container, r Rect, side Side) (float64, bool) {
	own, other := c.bottom, c.top
	if side == Top {
		own, other = c.top, c.bottom
	}
	w := o.opts.Width
	for _, sl := range other {
		ow := o.rects[sl.idx].Width
		if sl.x+r.Width <= w && !o.collides(own, r, sl.x) {
			return sl.x, true
		}
		if x := sl.x + ow - r.Width; x >= 0 && x+r.Width <= w && !o.collides(own, r, x) {
			return x, true
		}
	}

	spans := make([][2]float64, len(own))
	for i, sl := range own {
		spans[i] = [2]float64{sl.x, sl.x + o.rects[sl.idx].Width}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	x := 0.0
	for _, sp := range spans {
		if x+r.Width <= sp[0] {
			return x, true
		}
		x = math.Max(x, sp[1])
	}
	if x+r.Width <= w {
		return x, true
	}
	return 0, false
}

func (o *optimizer) pack(ind *individual) ([]container, int) {
	cs := make([]container, ind.tiers)
	for i := range cs {
		h := o.opts.MaxTotalHeight / float64(ind.tiers)
		if i < len(ind.heights) {
			h = ind.heights[i]
		}
		cs[i].height = h
	}
	placed := 0
	for _, idx := range ind.order {
		r := o.rects[idx]
		if r.Width > o.opts.Width {
			continue
		}
	containers:
		for ci := range cs {
			c := &cs[ci]
			for _, side := range []Side{Bottom, Top} {
				if !o.canPlace(c, r, side) {
					continue
				}
				x, ok := o.position(c, r, side)
				if !ok {
					continue
				}
				if side == Bottom {
					c.bottom = append(c.bottom, slot{idx, x})
				} else {
					c.top = append(c.top, slot{idx, x})
				}
				placed++
				break containers
			}
		}
	}
	for i := range cs {
		if !cs[i].empty() {
			cs[i].height = math.Max(o.minHeight(&cs[i]), o.opts.MinTierHeight)
		}
	}
	return cs, placed
}

// clashes reports whether any bottom and top runs physically overlap.
func (o *optimizer) clashes(c *container) bool {
	for _, b := range c.bottom {
		rb := o.rects[b.idx]
		for _, t := range c.top {
			rt := o.rects[t.idx]
			if overlaps(b.x, rb.Width, t.x, rt.Width) && rb.Height > c.height-rt.Height {
				return true
			}
		}
	}
	return false
}

func (o *optimizer) evaluate(ind *individual) {
	cs, placed := o.pack(ind)
	ind.containers, ind.placed = cs, placed
	if placed == 0 {
		ind.fitness = -1000
		return
	}
	total := float64(len(o.rects))
	var used, height, util, compact, clash float64
	for i := range cs {
		c := &cs[i]
		if c.empty() {
			continue
		}
		used++
		height += c.height
		var area float64
		for _, s := range append(append([]slot(nil), c.bottom...), c.top...) {
			area += o.rects[s.idx].Width * o.rects[s.idx].Height
		}
		util += area / (o.opts.Width * c.height)
		if len(c.bottom) > 0 && len(c.top) > 0 {
			compact += o.minHeight(c) / c.height * 200
		}
		if o.clashes(c) {
			clash += 10000
		}
	}
	var bonus float64
	if placed == len(o.rects) {
		bonus = 500
	}
	over := 0.0
	if height > o.opts.MaxTotalHeight {
		over = (height - o.opts.MaxTotalHeight) / o.opts.MaxTotalHeight * 1000
	}
	ind.fitness = float64(placed)/total*1000 +
		bonus +
		util/used*300 +
		compact -
		used/float64(o.opts.MaxTiers)*50 -
		height/o.opts.MaxTotalHeight*30 -
		over -
		clash
}

func (o *optimizer) tournament(pop []*individual, size int) *individual {
	best := pop[o.rng.IntN(len(pop))]
	for i := 1; i < size; i++ {
		if c := pop[o.rng.IntN(len(pop))]; c.fitness > best.fitness {
			best = c
		}
	}
	return best
}

func (o *optimizer) crossover(p1, p2 *individual) (*individual, *individual) {
	if o.rng.Float64() > o.opts.CrossoverRate {
		return p1.clone(), p2.clone()
	}
	c1 := &individual{tiers: p1.tiers}
	c2 := &individual{tiers: p2.tiers}
	if o.rng.Float64() < 0.5 {
		c1.tiers, c2.tiers = p2.tiers, p1.tiers
	}
	c1.heights = mixHeights(o.rng, p1.heights, p2.heights, c1.tiers, o.opts.MaxTotalHeight)
	c2.heights = mixHeights(o.rng, p2.heights, p1.heights, c2.tiers, o.opts.MaxTotalHeight)
	c1.order, c2.order = orderCrossover(o.rng, p1.order, p2.order)
	return c1, c2
}

func mixHeights(rng *rand.Rand, a, b []float64, n int, total float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		src := a
		if rng.Float64() < 0.5 {
			src = b
		}
		if i < len(src) {
			out[i] = src[i]
		} else {
			out[i] = total / float64(n)
		}
	}
	return out
}

// orderCrossover keeps a slice of each parent and fills the rest in the
// other parent's order.
func orderCrossover(rng *rand.Rand, a, b []int) ([]int, []int) {
	n := len(a)
	if n < 2 {
		return append([]int(nil), a...), append([]int(nil), b...)
	}
	i, j := rng.IntN(n), rng.IntN(n-1)
	if j >= i {
		j++
	}
	if i > j {
		i, j = j, i
	}
	return ox(a, b, i, j), ox(b, a, i, j)
}

func ox(keep, fill []int, start, end int) []int {
	n := len(keep)
	child := make([]int, n)
	used := make(map[int]bool, end-start)
	for k := range child {
		child[k] = -1
	}
	for k := start; k < end; k++ {
		child[k] = keep[k]
		used[keep[k]] = true
	}
	p := end
	for k := 0; k < n; k++ {
		v := fill[(end+k)%n]
		if used[v] {
			continue
		}
		child[p%n] = v
		used[v] = true
		p++
	}
	return child
}

func (o *optimizer) mutate(ind *individual) {
	switch o.rng.IntN(5) {
	case 0:
		ind.tiers = 1 + o.rng.IntN(o.opts.MaxTiers)
		for len(ind.heights) < ind.tiers {
			ind.heights = append(ind.heights, o.opts.MaxTotalHeight/float64(ind.tiers))
		}
		ind.heights = ind.heights[:ind.tiers]
	case 1:
		if len(ind.heights) == 0 {
			return
		}
		k := o.rng.IntN(len(ind.heights))
		h := ind.heights[k]
		ind.heights[k] = math.Max(o.opts.MinTierHeight, h+(o.rng.Float64()*0.6-0.3)*h)
		var sum float64
		for _, v := range ind.heights {
			sum += v
		}
		if sum > o.opts.MaxTotalHeight {
			f := o.opts.MaxTotalHeight / sum
			for k := range ind.heights {
				ind.heights[k] *= f
			}
		}
	case 2:
		if len(ind.order) > 1 {
			i, j := o.rng.IntN(len(ind.order)), o.rng.IntN(len(ind.order))
			ind.order[i], ind.order[j] = ind.order[j], ind.order[i]
		}
	case 3:
		ind.heights = evenHeights(o.opts.MaxTotalHeight, ind.tiers)
	case 4:
		n := len(ind.order)
		if n > 2 {
			size := n/3 + o.rng.IntN(n*2/3-n/3+1)
			start := o.rng.IntN(n - size + 1)
			sub := ind.order[start : start+size]
			o.rng.Shuffle(len(sub), func(i, j int) { sub[i], sub[j] = sub[j], sub[i] })
		}
	}
}

func (o *optimizer) evolve(ctx context.Context) (*individual, int, error) {
	pop := make([]*individual, o.opts.Population)
	for i := range pop {
		pop[i] = o.newIndividual()
		o.evaluate(pop[i])
	}
	elite := int(float64(o.opts.Population) * o.opts.ElitismRate)
	if elite < 1 {
		elite = 1
	}
	var best *individual
	stagnant := 0
	gen := 0
	for ; gen < o.opts.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, gen, fmt.Errorf("layout search: %w", err)
		}
		sort.SliceStable(pop, func(i, j int) bool { return pop[i].fitness > pop[j].fitness })
		if best == nil || pop[0].fitness > best.fitness {
			best = pop[0].clone()
			stagnant = 0
		} else {
			stagnant++
		}

		rate := o.opts.MutationRate
		if stagnant > 15 {
			rate = math.Min(0.8, rate*(1+float64(stagnant)/20))
		}

		next := make([]*individual, 0, o.opts.Population)
		for i := 0; i < elite; i++ {
			next = append(next, pop[i].clone())
		}
		for i := 0; i < max(1, o.opts.Population/10) && len(next) < o.opts.Population; i++ {
			ind := o.newIndividual()
			o.evaluate(ind)
			next = append(next, ind)
		}
		for len(next) < o.opts.Population {
			size := 2 + o.rng.IntN(4)
			c1, c2 := o.crossover(o.tournament(pop, size), o.tournament(pop, size))
			for _, c := range []*individual{c1, c2} {
				if o.rng.Float64() < rate {
					o.mutate(c)
				}
				o.evaluate(c)
				if len(next) < o.opts.Population {
					next = append(next, c)
				}
			}
		}
		pop = next
	}
	sort.SliceStable(pop, func(i, j int) bool { return pop[i].fitness > pop[j].fitness })
	if best == nil || pop[0].fitness > best.fitness {
		best = pop[0]
	}
	return best, gen, nil
}

func (o *optimizer) solution(ind *individual) *Solution {
	sol := &Solution{Placed: ind.placed, Fitness: ind.fitness, Tiers: []Tier{}, Unplaced: []string{}}
	placed := make(map[int]bool, len(o.rects))
	for i := range ind.containers {
		c := &ind.containers[i]
		if c.empty() {
			continue
		}
		t := Tier{Height: c.height, Bottom: []Placement{}, Top: []Placement{}}
		for _, s := range c.bottom {
			t.Bottom = append(t.Bottom, Placement{ID: o.rects[s.idx].ID, Side: Bottom, X: s.x})
			placed[s.idx] = true
		}
		for _, s := range c.top {
			t.Top = append(t.Top, Placement{ID: o.rects[s.idx].ID, Side: Top, X: s.x})
			placed[s.idx] = true
		}
		sol.Tiers = append(sol.Tiers, t)
		sol.TotalHeight += c.height
	}
	for i, r := range o.rects {
		if !placed[i] {
			sol.Unplaced = append(sol.Unplaced, r.ID)
		}
	}
	return sol
}
