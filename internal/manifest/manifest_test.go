package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/units"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "traderack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func openTest(t *testing.T, db store.Store, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithSessionID("session-1")}, opts...)
	return Open(context.Background(), db, opts...)
}

func ductItem(id string) mep.Item {
	return mep.Item{ID: id, Type: mep.Duct, Name: "Supply", Width: 12, Height: 8}
}

func TestOpen_MissingDocumentWritesTemplate(t *testing.T) {
	db := newTestDB(t)
	s := openTest(t, db)

	m := s.Snapshot()
	if m.Version != Version {
		t.Errorf("Version = %q, want %q", m.Version, Version)
	}
	if m.Project.Name != "Untitled Project" {
		t.Errorf("Project.Name = %q", m.Project.Name)
	}
	if _, err := db.GetDocument(context.Background(), store.KeyProjectManifest); err != nil {
		t.Errorf("template not persisted: %v", err)
	}
}

func TestOpen_UnreadableDocumentFallsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	// Valid JSON but not an object.
	if _, err := db.PutDocument(ctx, store.KeyProjectManifest, []byte(`[1,2,3]`)); err != nil {
		t.Fatal(err)
	}
	s := openTest(t, db)
	if got := s.Snapshot().Project.Name; got != "Untitled Project" {
		t.Errorf("Project.Name = %q, want template", got)
	}
}

func TestDecode_FillsMissingSections(t *testing.T) {
	old := `{"version":"0.9","projectId":"p1","project":{"name":"Corridor B"},"tradeRacks":{"configurations":[]}}`
	m, migrated, err := Decode([]byte(old), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if !migrated {
		t.Error("migrated = false, want true")
	}
	if m.Project.Name != "Corridor B" {
		t.Errorf("Project.Name = %q, want preserved", m.Project.Name)
	}
	if m.Project.Status != "draft" {
		t.Errorf("Project.Status = %q, want filled from template", m.Project.Status)
	}
	if m.MEPItems.Ductwork == nil || m.Measurements.Items == nil {
		t.Error("missing sections not filled")
	}
	if m.UIState["viewMode"] != "3D" {
		t.Errorf("uiState.viewMode = %v", m.UIState["viewMode"])
	}
	if m.Version != Version {
		t.Errorf("Version = %q", m.Version)
	}
}

func TestDecode_PreservesUnknownFields(t *testing.T) {
	doc := `{"version":"1.0","customPlugin":{"a":1},"uiState":{"panelWidth":320}}`
	m, _, err := Decode([]byte(doc), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatal(err)
	}
	if string(fields["customPlugin"]) != `{"a":1}` {
		t.Errorf("customPlugin = %s", fields["customPlugin"])
	}
	if !strings.Contains(string(fields["uiState"]), `"panelWidth":320`) {
		t.Errorf("uiState lost field: %s", fields["uiState"])
	}
}

func TestDecode_PreservesNestedUnknownFields(t *testing.T) {
	doc := `{"version":"1.0",
		"tradeRacks":{"vendorFlag":true,"configurations":[
			{"id":"cfg-1","name":"A","rackLength":12,"rackWidth":4,"mountType":"deck","approvedBy":"pm","mepItems":[]},
			{"id":"cfg-2","name":"B","rackLength":12,"rackWidth":4,"mountType":"deck","approvedBy":"gc","mepItems":[]}]},
		"mepItems":{"ductwork":[{"id":"duct-1","type":"duct","width":12,"height":8,"fireRating":"2h"}]}}`
	m, _, err := Decode([]byte(doc), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	m.TradeRacks.Configurations = m.TradeRacks.Configurations[:1]
	m.TradeRacks.Configurations[0].Name = "A2"

	out, err := json.Marshal(m.Clone())
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		TradeRacks struct {
			VendorFlag     bool `json:"vendorFlag"`
			Configurations []struct {
				ID         string `json:"id"`
				Name       string `json:"name"`
				ApprovedBy string `json:"approvedBy"`
			} `json:"configurations"`
		} `json:"tradeRacks"`
		MEPItems struct {
			Ductwork []struct {
				FireRating string `json:"fireRating"`
			} `json:"ductwork"`
		} `json:"mepItems"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if !got.TradeRacks.VendorFlag {
		t.Error("tradeRacks.vendorFlag lost")
	}
	cfgs := got.TradeRacks.Configurations
	if len(cfgs) != 1 || cfgs[0].ID != "cfg-1" || cfgs[0].Name != "A2" || cfgs[0].ApprovedBy != "pm" {
		t.Errorf("configurations = %+v", cfgs)
	}
	if len(got.MEPItems.Ductwork) != 1 || got.MEPItems.Ductwork[0].FireRating != "2h" {
		t.Errorf("ductwork = %+v", got.MEPItems.Ductwork)
	}
}

func TestDecode_ClearedOptionalFieldStaysCleared(t *testing.T) {
	doc := `{"tradeRacks":{"configurations":[
		{"id":"cfg-1","name":"A","rackLength":12,"rackWidth":4,"mountType":"deck",
		 "lastApplied":"2026-01-02T03:04:05Z","mepItems":[]}]}}`
	m, _, err := Decode([]byte(doc), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	m.TradeRacks.Configurations[0].LastApplied = nil
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "2026-01-02T03:04:05Z") {
		t.Errorf("stale lastApplied written back: %s", out)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := openTest(t, db)

	params := rack.DefaultParameters()
	params.TierCount = 3
	cfg := s.SaveConfiguration(ctx, SaveRequest{Name: "Level 2", Parameters: params, MEPItems: []mep.Item{ductItem("duct-1")}})

	reopened := openTest(t, db)
	got, err := reopened.Configuration(cfg.ID)
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	if got.Name != "Level 2" || got.TierCount != 3 {
		t.Errorf("got %q tiers=%d", got.Name, got.TierCount)
	}
	if len(got.MEPItems) != 1 {
		t.Errorf("MEPItems = %d, want 1", len(got.MEPItems))
	}
	if reopened.ActiveConfigurationID() != cfg.ID {
		t.Errorf("active id = %q, want %q", reopened.ActiveConfigurationID(), cfg.ID)
	}
}

func TestSaveConfiguration_Semantics(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)

	items := []mep.Item{ductItem("duct-1"), {ID: "pipe-1", Type: mep.Pipe, Diameter: 2}}
	cfg := s.SaveConfiguration(ctx, SaveRequest{Name: "A", Parameters: rack.DefaultParameters(), MEPItems: items})

	if cfg.ID == "" {
		t.Fatal("ID not assigned")
	}
	if cfg.Version != 1 || cfg.LastApplied == nil {
		t.Errorf("Version = %d, LastApplied = %v", cfg.Version, cfg.LastApplied)
	}
	m := s.Snapshot()
	if m.TradeRacks.TotalCount != 1 {
		t.Errorf("TotalCount = %d", m.TradeRacks.TotalCount)
	}
	if m.MEPItems.TotalCount != 2 || len(m.MEPItems.Piping) != 1 {
		t.Errorf("mepItems not mirrored: %+v", m.MEPItems)
	}

	// The snapshot is a copy.
	items[0].Width = 99
	got, _ := s.Configuration(cfg.ID)
	if got.MEPItems[0].Width != 12 {
		t.Errorf("stored item aliased caller slice")
	}

	again := s.SaveConfiguration(ctx, SaveRequest{ID: cfg.ID, Parameters: rack.DefaultParameters()})
	if again.Version != 2 || again.Name != "A" {
		t.Errorf("update: version=%d name=%q", again.Version, again.Name)
	}
	if n := len(s.Configurations()); n != 1 {
		t.Errorf("configurations = %d, want 1", n)
	}
	if h := s.History(1); h[0].Title != `Saved rack configuration "A"` {
		t.Errorf("title = %q", h[0].Title)
	}
}

func TestApplyActivateDelete(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)

	p1 := rack.DefaultParameters()
	a := s.SaveConfiguration(ctx, SaveRequest{Name: "same", Parameters: p1, MEPItems: []mep.Item{ductItem("duct-1")}})
	p2 := rack.DefaultParameters()
	p2.TierCount = 4
	b := s.SaveConfiguration(ctx, SaveRequest{Name: "same", Parameters: p2})

	if _, err := s.ApplyConfiguration(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	active, _ := s.ActiveParameters()
	if active.TierCount != p1.TierCount {
		t.Errorf("active tiers = %d, want %d", active.TierCount, p1.TierCount)
	}
	if n := len(s.MEPItems()); n != 1 {
		t.Errorf("applied items = %d, want 1", n)
	}

	if err := s.ActivateConfiguration(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	active, _ = s.ActiveParameters()
	if active.TierCount != p1.TierCount {
		t.Error("activate changed active parameters")
	}

	// Same name: deletion matches by id only.
	if err := s.DeleteConfiguration(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Configuration(a.ID); err != nil {
		t.Errorf("sibling with same name deleted: %v", err)
	}
	if s.ActiveConfigurationID() != "" {
		t.Errorf("active id = %q, want cleared", s.ActiveConfigurationID())
	}

	for _, fn := range []func() error{
		func() error { _, err := s.ApplyConfiguration(ctx, "missing"); return err },
		func() error { return s.ActivateConfiguration(ctx, "missing") },
		func() error { return s.DeleteConfiguration(ctx, "missing") },
	} {
		if err := fn(); !errors.Is(err, ErrConfigurationNotFound) {
			t.Errorf("err = %v, want ErrConfigurationNotFound", err)
		}
	}
}

func TestAddConfiguration_KeepsActive(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)
	a := s.SaveConfiguration(ctx, SaveRequest{Name: "A", Parameters: rack.DefaultParameters()})

	imported := s.AddConfiguration(ctx, SavedConfiguration{ID: a.ID, Name: "Imported", OriginalID: "orig-7", Parameters: rack.DefaultParameters()})
	if imported.ID == a.ID {
		t.Error("colliding id kept")
	}
	if s.ActiveConfigurationID() != a.ID {
		t.Error("import changed active configuration")
	}
	if n := len(s.Configurations()); n != 2 {
		t.Errorf("configurations = %d, want 2", n)
	}
	if h := s.History(1); h[0].Title != `Saved rack configuration "Imported"` {
		t.Errorf("title = %q", h[0].Title)
	}
}

func TestHistory_Bounded(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil, WithHistoryLimit(5))
	for i := 0; i < 8; i++ {
		s.UpdateUIState(ctx, map[string]any{"activePanel": i})
	}
	m := s.Snapshot()
	if len(m.ChangeHistory) != 5 {
		t.Fatalf("history = %d, want 5", len(m.ChangeHistory))
	}
	for _, c := range m.ChangeHistory {
		if c.SessionID != "session-1" {
			t.Errorf("SessionID = %q", c.SessionID)
		}
	}
	if h := s.History(0); len(h) != 5 || !h[0].Timestamp.Equal(fixedNow) {
		t.Errorf("History(0) = %d entries", len(h))
	}
}

func TestHistory_AppendedToStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := openTest(t, db)
	s.UpdateProject(ctx, Project{Name: "Wing C"})
	s.UpdateMeasurements(ctx, []Measurement{{Start: geom.Vec3{}, End: geom.Vec3{X: 1}, Distance: 1}})

	entries, err := db.RecentHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Title != "Updated 1 measurements" || entries[1].Component != ComponentProject {
		t.Errorf("entries = %+v", entries)
	}
}

func TestMEPItems_AddRemove(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)

	it, err := s.AddMEPItem(ctx, mep.Item{Type: mep.CableTray, Name: "Tray", Width: 12, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(it.ID, "cableTray-") {
		t.Errorf("ID = %q", it.ID)
	}
	if _, err := s.AddMEPItem(ctx, mep.Item{Type: "sprinkler"}); !errors.Is(err, ErrInvalidItem) {
		t.Errorf("err = %v, want ErrInvalidItem", err)
	}
	m := s.Snapshot()
	if m.MEPItems.TotalCount != 1 || m.Statistics.MEPItemsAdded != 1 {
		t.Errorf("totals = %d/%d", m.MEPItems.TotalCount, m.Statistics.MEPItemsAdded)
	}
	if h := s.History(1); h[0].Title != `Added cable tray "Tray"` {
		t.Errorf("title = %q", h[0].Title)
	}
	if err := s.RemoveMEPItem(ctx, it.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveMEPItem(ctx, it.ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestActiveRackLength(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)
	if _, ok := s.ActiveRackLength(); ok {
		t.Error("length reported without active parameters")
	}
	p := rack.DefaultParameters()
	p.RackLength = units.FeetInches(20, 6)
	s.RecordParameterChange(ctx, p, "rackLength")

	l, ok := s.ActiveRackLength()
	if !ok || l.TotalFeet() != 20.5 {
		t.Errorf("ActiveRackLength = %v, %v", l, ok)
	}
	if h := s.History(1); h[0].Title != "Changed rack rackLength" {
		t.Errorf("title = %q", h[0].Title)
	}

	s.RecordPositionChange(ctx, geom.Vec3{Y: 3})
	active, _ := s.ActiveParameters()
	if active.Position == nil || active.Position.Y != 3 {
		t.Errorf("Position = %v", active.Position)
	}
}

func TestBuildingShell(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)
	if _, ok := s.BuildingShell(); ok {
		t.Fatal("shell reported before set")
	}
	s.UpdateBuildingShell(ctx, BuildingShellParameters{CorridorHeight: units.Feet(15), BeamDepth: units.FeetInches(0, 12)})
	p, ok := s.BuildingShell()
	if !ok {
		t.Fatal("shell not set")
	}
	bc := p.BuildingContext()
	if bc == nil || bc.CorridorHeight.TotalFeet() != 15 {
		t.Errorf("BuildingContext = %+v", bc)
	}
	if v := s.Snapshot().BuildingShell.Version; v != 2 {
		t.Errorf("Version = %d, want 2", v)
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		component, action, details, want string
	}{
		{ComponentTradeRacks, ActionDelete, `{"id":"x"}`, `Deleted rack configuration "x"`},
		{ComponentTradeRacks, ActionPosition, ``, "Moved trade rack"},
		{ComponentMEPItems, ActionRemove, `{"name":"P1","type":"pipe"}`, `Removed pipe "P1"`},
		{ComponentMEPItems, ActionBulkUpdate, `{"count":3}`, "Updated 3 MEP items"},
		{"other", "thing", ``, "other thing"},
	}
	for _, tt := range tests {
		if got := Title(tt.component, tt.action, json.RawMessage(tt.details)); got != tt.want {
			t.Errorf("Title(%s, %s) = %q, want %q", tt.component, tt.action, got, tt.want)
		}
	}
}
