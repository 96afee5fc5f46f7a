package workspace

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/scene"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/units"
)

const eps = 1e-6

func newTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "traderack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func openTest(t *testing.T, db store.Store) (*Workspace, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	w := Open(context.Background(), db, Config{Events: rec})
	t.Cleanup(func() { w.Close(context.Background()) })
	return w, rec
}

func duct(w, h float64) mep.Item {
	return mep.Item{Type: mep.Duct, Name: "Supply", Width: w, Height: h}
}

func TestOpen_BuildsDefaultRack(t *testing.T) {
	w, _ := openTest(t, nil)
	v := w.Rack()
	if v.Configuration.BayCount != 4 {
		t.Errorf("BayCount = %d, want 4", v.Configuration.BayCount)
	}
	if len(v.TierSpaces) != 2 {
		t.Errorf("tier spaces = %d, want 2", len(v.TierSpaces))
	}
	if v.SnapPoints == 0 {
		t.Error("no rack snap points")
	}
	if got := w.View().Mode; got != View3D {
		t.Errorf("view mode = %s, want 3D", got)
	}
}

func TestUpdateParameters_ReplacesRackSnapPoints(t *testing.T) {
	w, rec := openTest(t, nil)
	before := w.Rack().SnapPoints

	p := rack.DefaultParameters()
	p.RackLength = units.FeetInches(6, 0)
	v, err := w.UpdateParameters(context.Background(), p, "rackLength")
	if err != nil {
		t.Fatalf("UpdateParameters: %v", err)
	}
	if v.Configuration.BayCount != 2 {
		t.Errorf("BayCount = %d, want 2", v.Configuration.BayCount)
	}
	if v.SnapPoints >= before {
		t.Errorf("snap points = %d, want fewer than %d", v.SnapPoints, before)
	}
	half := units.FtToM(3) + 0.01
	for _, pt := range w.snaps.ByOwner(RackID) {
		for _, x := range []float64{pt.Point.X, pt.Start.X, pt.End.X} {
			if math.Abs(x) > half {
				t.Fatalf("stale rack snap point at x=%v", x)
			}
		}
	}
	if rec.Count(events.TradeRackUpdated) != 1 {
		t.Errorf("tradeRackUpdated = %d, want 1", rec.Count(events.TradeRackUpdated))
	}
	if h := w.Manifest().History(1); len(h) != 1 || h[0].Title != "Changed rack rackLength" {
		t.Errorf("history = %+v", h)
	}
}

func TestUpdateParameters_Invalid(t *testing.T) {
	w, _ := openTest(t, nil)
	p := rack.DefaultParameters()
	p.MountType = "wall"
	_, err := w.UpdateParameters(context.Background(), p, "mountType")
	var inv *InvalidError
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want *InvalidError", err)
	}
	if inv.Errors[0].Field != "mountType" {
		t.Errorf("field = %q", inv.Errors[0].Field)
	}
	if w.Parameters().MountType != rack.MountDeck {
		t.Error("invalid parameters applied")
	}
}

func TestRebuild_KeepsSelectionByID(t *testing.T) {
	ctx := context.Background()
	w, _ := openTest(t, nil)
	item, err := w.AddMEPItem(ctx, duct(12, 8))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Select(ctx, item.ID); err != nil {
		t.Fatal(err)
	}

	p := rack.DefaultParameters()
	p.TierHeights = []units.Length{units.FeetInches(3, 0), units.FeetInches(3, 0)}
	if _, err := w.UpdateParameters(ctx, p, "tierHeights"); err != nil {
		t.Fatal(err)
	}
	sel := w.Selection()
	if sel.ID != item.ID || sel.Type != scene.TypeDuct {
		t.Fatalf("selection = %+v, want %s", sel, item.ID)
	}
	if !w.scene.Contains(w.ctrls[mep.Duct].Selected()) {
		t.Error("selected group not in scene")
	}
	if len(sel.Measurements) == 0 {
		t.Error("measurements not refreshed")
	}
}

func TestRebuild_PreservesRackPlacement(t *testing.T) {
	ctx := context.Background()
	w, rec := openTest(t, nil)
	v, err := w.UpdateClearance(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Count(events.RackTemporaryStateChanged) != 1 {
		t.Error("no rackTemporaryStateChanged event")
	}
	y := v.Position.Y

	p := rack.DefaultParameters()
	p.RackLength = units.FeetInches(18, 0)
	v, err = w.UpdateParameters(ctx, p, "rackLength")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v.Position.Y-y) > eps {
		t.Errorf("rack Y = %v after rebuild, want %v", v.Position.Y, y)
	}
	if v.Preserved == nil || v.Preserved.Clearance == nil || math.Abs(*v.Preserved.Clearance-2) > eps {
		t.Errorf("preserved = %+v, want clearance 2 ft", v.Preserved)
	}
}

func TestMEPItemLifecycle(t *testing.T) {
	ctx := context.Background()
	w, rec := openTest(t, nil)

	item, err := w.AddMEPItem(ctx, duct(12, 8))
	if err != nil {
		t.Fatalf("AddMEPItem: %v", err)
	}
	if item.ID == "" || mep.BaseID(item.ID) != item.ID {
		t.Errorf("id = %q", item.ID)
	}
	if item.Position == nil || item.Tier == nil || *item.Tier != 2 {
		t.Errorf("placement = %+v tier %v, want bottom tier", item.Position, item.Tier)
	}
	if rec.Count(events.MEPItemsUpdated) != 1 {
		t.Errorf("mepItemsUpdated = %d, want 1", rec.Count(events.MEPItemsUpdated))
	}
	if n := len(w.Session().ActiveItems()); n != 1 {
		t.Errorf("session items = %d, want 1", n)
	}
	if n := len(w.Manifest().MEPItems()); n != 1 {
		t.Errorf("project items = %d, want 1", n)
	}

	cp, err := w.CloneMEPItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("CloneMEPItem: %v", err)
	}
	if cp.ID == item.ID || cp.Width != item.Width {
		t.Errorf("copy = %+v", cp)
	}
	if sel := w.Selection(); sel.ID != cp.ID {
		t.Errorf("selection = %q, want copy", sel.ID)
	}
	if n := len(w.Items()); n != 2 {
		t.Fatalf("items = %d, want 2", n)
	}

	if err := w.DeleteMEPItem(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if n := len(w.Items()); n != 1 {
		t.Errorf("items = %d, want 1", n)
	}
	if n := len(w.Session().ActiveItems()); n != 1 {
		t.Errorf("session items = %d, want 1", n)
	}
	if len(w.snaps.ByOwner(item.ID)) != 0 {
		t.Error("snap points of deleted item kept")
	}
	if err := w.DeleteMEPItem(ctx, "missing"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestAddMEPItem_Rejects(t *testing.T) {
	w, _ := openTest(t, nil)
	_, err := w.AddMEPItem(context.Background(), mep.Item{Type: mep.Pipe, Diameter: -1})
	var inv *InvalidError
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want *InvalidError", err)
	}
	if len(w.Items()) != 0 {
		t.Error("invalid item added")
	}
}

func TestUpdateDimensions(t *testing.T) {
	ctx := context.Background()
	w, _ := openTest(t, nil)
	item, err := w.AddMEPItem(ctx, mep.Item{Type: mep.Pipe, Diameter: 2})
	if err != nil {
		t.Fatal(err)
	}
	d := 4.0
	got, err := w.UpdateDimensions(ctx, item.ID, mep.Dimensions{Diameter: &d})
	if err != nil {
		t.Fatalf("UpdateDimensions: %v", err)
	}
	if got.Diameter != 4 {
		t.Errorf("Diameter = %v, want 4", got.Diameter)
	}
	if s := w.Session().ActiveItems(); len(s) != 1 || s[0].Diameter != 4 {
		t.Errorf("session = %+v", s)
	}

	bad := -1.0
	if _, err := w.UpdateDimensions(ctx, item.ID, mep.Dimensions{Diameter: &bad}); err == nil {
		t.Error("negative diameter accepted")
	}
	if _, err := w.UpdateDimensions(ctx, "missing", mep.Dimensions{Diameter: &d}); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestDrag_PersistsItemPosition(t *testing.T) {
	ctx := context.Background()
	w, _ := openTest(t, nil)
	if _, err := w.BeginDrag(ctx); !errors.Is(err, ErrNothingSelected) {
		t.Errorf("err = %v, want ErrNothingSelected", err)
	}

	item, _ := w.AddMEPItem(ctx, duct(12, 8))
	if err := w.Select(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := w.BeginDrag(ctx); err != nil {
		t.Fatalf("BeginDrag: %v", err)
	}
	target := item.Position.Add(geom.V(0, 0, 0.1))
	if _, err := w.DragTo(target); err != nil {
		t.Fatal(err)
	}
	sel := w.EndDrag(ctx)
	if sel.Dragging {
		t.Error("still dragging")
	}
	got := w.Items()[0].Position
	s := w.Session().ActiveItems()
	if len(s) != 1 || s[0].Position == nil || *s[0].Position != *got {
		t.Errorf("session position = %+v, scene %+v", s, got)
	}
	if math.Abs(got.Z-target.Z) > eps {
		t.Errorf("Z = %v, want %v", got.Z, target.Z)
	}
}

func TestRackDrag_SavesTemporaryPosition(t *testing.T) {
	ctx := context.Background()
	w, rec := openTest(t, nil)
	if err := w.Select(ctx, RackID); err != nil {
		t.Fatal(err)
	}
	if rec.Count(events.TradeRackSelected) != 1 {
		t.Error("no tradeRackSelected event")
	}
	if _, err := w.BeginDrag(ctx); err != nil {
		t.Fatalf("BeginDrag: %v", err)
	}
	if !w.Session().Snapshot().Rack.IsDragging {
		t.Error("session not marked dragging")
	}
	w.mu.Lock()
	target := w.lines.RackCenter().Add(geom.V(0, 0, 0.3))
	w.mu.Unlock()
	if _, err := w.DragTo(target); err != nil {
		t.Fatal(err)
	}
	w.EndDrag(ctx)

	st := w.Session().Snapshot().Rack
	if st.IsDragging {
		t.Error("session still dragging")
	}
	if st.TemporaryPosition == nil || math.Abs(st.TemporaryPosition.Z-0.3) > 1e-3 {
		t.Errorf("temporary position = %+v, want z 0.3", st.TemporaryPosition)
	}
}

func TestClickMiss_Deselects(t *testing.T) {
	ctx := context.Background()
	w, rec := openTest(t, nil)
	if err := w.Select(ctx, RackID); err != nil {
		t.Fatal(err)
	}
	away, target := geom.V(100, 100, 100), geom.V(200, 200, 200)
	if _, err := w.UpdateCamera(CameraUpdate{Position: &away, Target: &target}); err != nil {
		t.Fatal(err)
	}
	res := w.Click(ctx, geom.Vec2{})
	if res.Hit {
		t.Fatalf("hit %+v, want miss", res)
	}
	if sel := w.Selection(); sel.ID != "" {
		t.Errorf("selection = %q, want none", sel.ID)
	}
	if rec.Count(events.TradeRackDeselected) != 1 {
		t.Error("no tradeRackDeselected event")
	}
	if ui := w.Session().Snapshot().UI; len(ui.SelectedObjects) != 0 {
		t.Errorf("selected objects = %v", ui.SelectedObjects)
	}
}

func TestViewMode_RoundTrip(t *testing.T) {
	w, _ := openTest(t, nil)
	orig := w.View()

	v, err := w.SetViewMode(View2D)
	if err != nil {
		t.Fatal(err)
	}
	if v.Camera.Projection != scene.Orthographic || v.Controls.EnableRotate {
		t.Errorf("2D view = %+v", v)
	}
	if v.Camera.Position.X <= v.Camera.Target.X {
		t.Error("2D camera not on +X")
	}
	cfg := w.Rack().Configuration
	extent := math.Max(units.FtToM(cfg.TotalHeight), cfg.RackWidth.Meters())
	if math.Abs(v.Camera.HalfHeight-extent*1.2/2) > eps {
		t.Errorf("HalfHeight = %v, want %v", v.Camera.HalfHeight, extent*0.6)
	}
	if w.Session().Snapshot().Camera.ViewMode != "2D" {
		t.Error("view mode not recorded in session")
	}

	back, err := w.SetViewMode(View3D)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, orig) {
		t.Errorf("3D view = %+v, want %+v", back, orig)
	}
	if _, err := w.SetViewMode("4D"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestKey(t *testing.T) {
	w, _ := openTest(t, nil)
	tests := []struct {
		key     string
		handled bool
		mode    scene.MouseMode
	}{
		{"P", true, scene.MousePan},
		{"o", true, scene.MouseOrbit},
		{"Escape", true, scene.MouseDefault},
		{"L", true, scene.MouseDefault},
		{"x", false, scene.MouseDefault},
	}
	for _, tt := range tests {
		if got := w.Key(tt.key); got != tt.handled {
			t.Errorf("Key(%q) = %v, want %v", tt.key, got, tt.handled)
		}
		if got := w.View().Controls.Mode; got != tt.mode {
			t.Errorf("after %q mode = %s, want %s", tt.key, got, tt.mode)
		}
	}
}

func TestSaveAndApplyConfiguration(t *testing.T) {
	ctx := context.Background()
	w, _ := openTest(t, newTestDB(t))
	item, _ := w.AddMEPItem(ctx, duct(12, 8))
	if _, err := w.UpdateClearance(ctx, 6); err != nil {
		t.Fatal(err)
	}
	if w.Session().Snapshot().Rack.TemporaryPosition == nil {
		t.Fatal("no temporary position after clearance edit")
	}

	saved, err := w.SaveConfiguration(ctx, "", "Level 2")
	if err != nil {
		t.Fatalf("SaveConfiguration: %v", err)
	}
	if len(saved.MEPItems) != 1 || saved.Position == nil {
		t.Errorf("saved = %+v", saved)
	}
	if w.Session().Snapshot().Rack.TemporaryPosition != nil {
		t.Error("temporary position kept after permanent save")
	}
	if w.Manifest().ActiveConfigurationID() != saved.ID {
		t.Error("saved configuration not active")
	}

	if err := w.DeleteMEPItem(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := w.ApplyConfiguration(ctx, saved.ID); err != nil {
		t.Fatalf("ApplyConfiguration: %v", err)
	}
	items := w.Items()
	if len(items) != 1 || items[0].ID != item.ID {
		t.Errorf("items after apply = %+v", items)
	}
	if _, err := w.ApplyConfiguration(ctx, "missing"); !errors.Is(err, manifest.ErrConfigurationNotFound) {
		t.Errorf("err = %v, want ErrConfigurationNotFound", err)
	}
}

func TestSaveApply_KeepsClearancePlacement(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	w := Open(ctx, db, Config{})
	roof := w.Parameters().TopClearance

	v, err := w.UpdateClearance(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	y := v.Position.Y
	topM := y + units.FtToM(v.Configuration.TotalHeight)
	if v.Configuration.TopClearance != roof {
		t.Errorf("roof height = %v after clearance edit, want %v", v.Configuration.TopClearance, roof)
	}

	saved, err := w.SaveConfiguration(ctx, "", "Level 3")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Parameters.TopClearance != roof {
		t.Errorf("saved topClearance = %v, want roof height %v", saved.Parameters.TopClearance, roof)
	}
	if _, err := w.ApplyConfiguration(ctx, saved.ID); err != nil {
		t.Fatal(err)
	}
	if got := w.Rack().Position.Y; math.Abs(got-y) > eps {
		t.Fatalf("rack Y after apply = %v, want %v", got, y)
	}

	p := w.Parameters()
	p.RackLength = units.FeetInches(15, 0)
	v, err = w.UpdateParameters(ctx, p, "rackLength")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v.Position.Y-y) > eps {
		t.Errorf("rack Y after length edit = %v, want %v", v.Position.Y, y)
	}

	// A taller rack keeps its top under the roof at the same offset.
	p = w.Parameters()
	p.TierCount = 3
	v, err = w.UpdateParameters(ctx, p, "tierCount")
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Position.Y + units.FtToM(v.Configuration.TotalHeight); math.Abs(got-topM) > eps {
		t.Errorf("rack top after tier edit = %v, want %v", got, topM)
	}
	want := v.Position.Y
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}

	w2, _ := openTest(t, db)
	if got := w2.Rack().Position.Y; math.Abs(got-want) > eps {
		t.Errorf("rack Y after reopen = %v, want %v", got, want)
	}
}

func TestRebuild_RecomputesEveryTierLabel(t *testing.T) {
	ctx := context.Background()
	w, rec := openTest(t, nil)
	p := rack.DefaultParameters()
	p.MountType = rack.MountFloor
	if _, err := w.UpdateParameters(ctx, p, "mountType"); err != nil {
		t.Fatal(err)
	}

	// Two unselected items, one per tier.
	var ids []string
	for _, ts := range w.Rack().TierSpaces {
		pos := geom.V(0, ts.CenterY, 0)
		item, err := w.AddMEPItem(ctx, mep.Item{Type: mep.Pipe, Diameter: 2, Position: &pos})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, item.ID)
	}
	before := map[string]string{}
	for _, it := range w.Items() {
		before[it.ID] = it.TierName
	}
	rec.Reset()

	p.TierCount = 3
	if _, err := w.UpdateParameters(ctx, p, "tierCount"); err != nil {
		t.Fatal(err)
	}

	session := map[string]string{}
	for _, it := range w.Session().ActiveItems() {
		session[it.ID] = it.TierName
	}
	relabeled := 0
	for _, it := range w.Items() {
		want := w.ctrls[mep.Pipe].CalculateTier(it.Position.Y).TierName
		if it.TierName != want {
			t.Errorf("%s: scene tier %q, want %q", it.ID, it.TierName, want)
		}
		if session[it.ID] != want {
			t.Errorf("%s: session tier %q, want %q", it.ID, session[it.ID], want)
		}
		if it.TierName != before[it.ID] {
			relabeled++
		}
	}
	if len(ids) != 2 || relabeled == 0 {
		t.Errorf("relabeled %d of %v; tier indexes should shift when a tier is added", relabeled, ids)
	}
	if rec.Count(events.MEPItemsUpdated) == 0 {
		t.Error("no mepItemsUpdated after tiers changed")
	}
}

func TestReopen_RestoresSession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	w1 := Open(ctx, db, Config{})
	item, _ := w1.AddMEPItem(ctx, duct(10, 6))
	v1, _ := w1.UpdateClearance(ctx, 12)
	if err := w1.Close(ctx); err != nil {
		t.Fatal(err)
	}

	w2, _ := openTest(t, db)
	if w2.Session().SessionID() == w1.Session().SessionID() {
		t.Error("session id reused")
	}
	items := w2.Items()
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("items = %+v", items)
	}
	if v2 := w2.Rack(); math.Abs(v2.Position.Y-v1.Position.Y) > eps {
		t.Errorf("rack Y = %v, want %v", v2.Position.Y, v1.Position.Y)
	}
}

func TestSuggestAndApplyLayout(t *testing.T) {
	ctx := context.Background()
	w, _ := openTest(t, nil)
	for _, it := range []mep.Item{
		duct(12, 8),
		duct(10, 6),
		{Type: mep.Pipe, Diameter: 2},
		{Type: mep.CableTray, Width: 12, Height: 4},
	} {
		if _, err := w.AddMEPItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	sug, err := w.SuggestLayout(ctx, LayoutRequest{Population: 20, Generations: 40, Seed: 3})
	if err != nil {
		t.Fatalf("SuggestLayout: %v", err)
	}
	if sug.Solution.Placed != 4 {
		t.Fatalf("placed = %d, unplaced %v", sug.Solution.Placed, sug.Solution.Unplaced)
	}
	for _, h := range sug.TierHeights {
		if in := h.TotalInches(); in != math.Round(in) {
			t.Errorf("tier height %v not whole inches", h)
		}
	}

	v, err := w.ApplyLayout(ctx, sug)
	if err != nil {
		t.Fatalf("ApplyLayout: %v", err)
	}
	if v.Configuration.TierCount != len(sug.TierHeights) {
		t.Errorf("TierCount = %d, want %d", v.Configuration.TierCount, len(sug.TierHeights))
	}
	for _, it := range w.Items() {
		halfY, _ := it.HalfExtents()
		inside := false
		for _, s := range v.TierSpaces {
			if it.Position.Y-halfY >= s.Bottom-eps && it.Position.Y+halfY <= s.Top+eps {
				inside = true
			}
		}
		if !inside {
			t.Errorf("%s at y=%v is outside every tier", it.ID, it.Position.Y)
		}
		if it.Tier == nil {
			t.Errorf("%s has no tier", it.ID)
		}
	}

	if _, err := w.ApplyLayout(ctx, nil); err == nil {
		t.Error("nil suggestion accepted")
	}
}
