package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/units"
	"github.com/oklog/ulid/v2"
)

// DefaultHistoryLimit is the number of change history entries kept in the
// manifest.
const DefaultHistoryLimit = 500

var (
	ErrConfigurationNotFound = errors.New("rack configuration not found")
	ErrItemNotFound          = errors.New("mep item not found")
	ErrInvalidItem           = errors.New("invalid mep item")
)

// Store is the process-wide manifest facade. Every setter mutates the
// in-memory manifest, bumps lastUpdated, appends a change entry and
// persists. Persistence failures are logged; memory stays authoritative.
type Store struct {
	mu        sync.Mutex
	db        store.Store
	m         *Manifest
	sessionID string
	limit     int
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithHistoryLimit bounds the in-document change history.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithSessionID stamps change entries with id.
func WithSessionID(id string) Option {
	return func(s *Store) { s.sessionID = id }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the manifest from db, migrating it additively, or starts from
// the initial template when it is missing or unreadable. A nil db keeps the
// manifest in memory only.
func Open(ctx context.Context, db store.Store, opts ...Option) *Store {
	s := &Store{
		db:    db,
		limit: DefaultHistoryLimit,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.m = s.load(ctx)
	s.m.Statistics.LastSession = s.sessionID
	return s
}

func (s *Store) load(ctx context.Context) *Manifest {
	now := s.now()
	if s.db == nil {
		return New(now)
	}
	doc, err := s.db.GetDocument(ctx, store.KeyProjectManifest)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("no project manifest, starting from template", "component", "manifest")
		m := New(now)
		s.write(ctx, m)
		return m
	}
	if err != nil {
		slog.Error("load project manifest failed, using template", "component", "manifest", "action", "load", "error", err)
		return New(now)
	}
	m, migrated, err := Decode(doc.Body, now)
	if err != nil {
		slog.Warn("project manifest unreadable, using template", "component", "manifest", "action", "load", "error", err)
		return New(now)
	}
	if migrated {
		slog.Info("project manifest migrated", "component", "manifest", "version", m.Version)
		s.write(ctx, m)
	}
	return m
}

// Reload discards in-memory state and reads the stored manifest again.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = s.load(ctx)
}

func (s *Store) write(ctx context.Context, m *Manifest) {
	if s.db == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("encode project manifest failed", "component", "manifest", "action", "persist", "error", err)
		return
	}
	if _, err := s.db.PutDocument(ctx, store.KeyProjectManifest, data); err != nil {
		slog.Error("persist project manifest failed", "component", "manifest", "action", "persist", "error", err)
	}
}

// record finishes a mutation: history entry, eviction, totals, persistence.
func (s *Store) record(ctx context.Context, component, action string, details any) Change {
	now := s.now()
	var raw json.RawMessage
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			raw = data
		}
	}
	c := Change{
		ID:        ulid.Make().String(),
		Timestamp: now,
		Component: component,
		Action:    action,
		Title:     Title(component, action, raw),
		Details:   raw,
		SessionID: s.sessionID,
	}
	s.m.ChangeHistory = append(s.m.ChangeHistory, c)
	if over := len(s.m.ChangeHistory) - s.limit; over > 0 {
		s.m.ChangeHistory = append([]Change(nil), s.m.ChangeHistory[over:]...)
	}
	s.m.LastUpdated = now
	s.m.recount()
	s.write(ctx, s.m)

	if s.db != nil {
		entry := &store.HistoryEntry{
			ID: c.ID, Timestamp: c.Timestamp, Component: component, Action: action,
			Title: c.Title, Details: raw, SessionID: s.sessionID,
		}
		if _, err := s.db.AppendHistory(ctx, entry); err != nil {
			slog.Error("append change history failed", "component", "manifest", "action", "history", "error", err)
		}
	}
	slog.Debug("manifest changed", "component", "manifest", "action", action, "title", c.Title)
	return c
}

// SessionID returns the id stamped on change entries.
func (s *Store) SessionID() string { return s.sessionID }

// Snapshot returns a deep copy of the manifest.
func (s *Store) Snapshot() *Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Clone()
}

// Export encodes the manifest as stored.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.m)
}

// History returns up to limit most recent change entries, newest first.
func (s *Store) History(limit int) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.m.ChangeHistory
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	out := make([]Change, 0, limit)
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}
	return out
}

// UpdateProject replaces the project description.
func (s *Store) UpdateProject(ctx context.Context, p Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Tags == nil {
		p.Tags = []string{}
	}
	s.m.Project = p
	s.record(ctx, ComponentProject, ActionUpdate, map[string]string{"name": p.Name})
}

// UpdateBuildingShell stores new shell parameters.
func (s *Store) UpdateBuildingShell(ctx context.Context, p BuildingShellParameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.m.BuildingShell.Parameters = &p
	s.m.BuildingShell.LastModified = &now
	s.m.BuildingShell.Version++
	s.record(ctx, ComponentBuildingShell, ActionUpdate, p)
}

// BuildingShell returns the shell parameters, if set.
func (s *Store) BuildingShell() (BuildingShellParameters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m.BuildingShell.Parameters == nil {
		return BuildingShellParameters{}, false
	}
	return *s.m.BuildingShell.Parameters, true
}

// SaveRequest is the input of SaveConfiguration.
type SaveRequest struct {
	ID         string
	Name       string
	Parameters rack.Parameters
	MEPItems   []mep.Item
}

// SaveConfiguration appends a configuration, or updates the one with the
// same id. The saved configuration carries a copy of items, becomes the
// active configuration with lastApplied set, and its items are mirrored
// into the manifest's MEP items.
func (s *Store) SaveConfiguration(ctx context.Context, req SaveRequest) SavedConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	cfg := SavedConfiguration{
		Parameters: req.Parameters.Clone(),
		ID:         req.ID,
		Name:       req.Name,
		SavedAt:    now,
		Version:    1,
		MEPItems:   cloneItems(req.MEPItems),
	}
	if cfg.ID == "" {
		cfg.ID = ulid.Make().String()
	}
	applied := now
	cfg.LastApplied = &applied

	if i := s.indexOf(cfg.ID); i >= 0 {
		prev := s.m.TradeRacks.Configurations[i]
		cfg.Version = prev.Version + 1
		cfg.OriginalID = prev.OriginalID
		if cfg.Name == "" {
			cfg.Name = prev.Name
		}
		s.m.TradeRacks.Configurations[i] = cfg
	} else {
		s.m.TradeRacks.Configurations = append(s.m.TradeRacks.Configurations, cfg)
	}
	active := cfg.Parameters.Clone()
	s.m.TradeRacks.Active = &active
	s.m.TradeRacks.ActiveConfigurationID = cfg.ID
	s.m.TradeRacks.LastModified = &now
	s.m.MEPItems.Replace(cfg.MEPItems)
	s.m.MEPItems.LastModified = &now
	s.m.Statistics.ConfigurationsSaved++

	s.record(ctx, ComponentTradeRacks, ActionSave, map[string]any{"id": cfg.ID, "name": cfg.Name, "mepItems": len(cfg.MEPItems)})
	return cfg.Clone()
}

// AddConfiguration appends cfg as a new saved configuration without
// changing the active one. It is recorded like a save. A missing id is
// generated.
func (s *Store) AddConfiguration(ctx context.Context, cfg SavedConfiguration) SavedConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cfg = cfg.Clone()
	if cfg.ID == "" || s.indexOf(cfg.ID) >= 0 {
		cfg.ID = ulid.Make().String()
	}
	if cfg.SavedAt.IsZero() {
		cfg.SavedAt = now
	}
	if cfg.Version < 1 {
		cfg.Version = 1
	}
	s.m.TradeRacks.Configurations = append(s.m.TradeRacks.Configurations, cfg)
	s.m.TradeRacks.LastModified = &now
	s.m.Statistics.ConfigurationsSaved++
	s.record(ctx, ComponentTradeRacks, ActionSave, map[string]any{"id": cfg.ID, "name": cfg.Name, "originalId": cfg.OriginalID})
	return cfg.Clone()
}

// ApplyConfiguration makes the configuration with id the active one: its
// parameters become the active parameters and its items the saved items.
func (s *Store) ApplyConfiguration(ctx context.Context, id string) (SavedConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return SavedConfiguration{}, fmt.Errorf("apply %q: %w", id, ErrConfigurationNotFound)
	}
	now := s.now()
	cfg := &s.m.TradeRacks.Configurations[i]
	cfg.LastApplied = &now
	active := cfg.Parameters.Clone()
	s.m.TradeRacks.Active = &active
	s.m.TradeRacks.ActiveConfigurationID = id
	s.m.TradeRacks.LastModified = &now
	s.m.MEPItems.Replace(cfg.MEPItems)
	s.m.MEPItems.LastModified = &now
	s.record(ctx, ComponentTradeRacks, ActionApply, map[string]string{"id": id, "name": cfg.Name})
	return cfg.Clone(), nil
}

// ActivateConfiguration changes only activeConfigurationId.
func (s *Store) ActivateConfiguration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("activate %q: %w", id, ErrConfigurationNotFound)
	}
	s.m.TradeRacks.ActiveConfigurationID = id
	s.record(ctx, ComponentTradeRacks, ActionActivate, map[string]string{"id": id, "name": s.m.TradeRacks.Configurations[i].Name})
	return nil
}

// DeleteConfiguration removes the configuration with id. Names are never
// used to match.
func (s *Store) DeleteConfiguration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete %q: %w", id, ErrConfigurationNotFound)
	}
	name := s.m.TradeRacks.Configurations[i].Name
	cfgs := s.m.TradeRacks.Configurations
	s.m.TradeRacks.Configurations = append(cfgs[:i:i], cfgs[i+1:]...)
	if s.m.TradeRacks.ActiveConfigurationID == id {
		s.m.TradeRacks.ActiveConfigurationID = ""
	}
	now := s.now()
	s.m.TradeRacks.LastModified = &now
	s.record(ctx, ComponentTradeRacks, ActionDelete, map[string]string{"id": id, "name": name})
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, c := range s.m.TradeRacks.Configurations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Configurations returns copies of the saved configurations.
func (s *Store) Configurations() []SavedConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SavedConfiguration, len(s.m.TradeRacks.Configurations))
	for i, c := range s.m.TradeRacks.Configurations {
		out[i] = c.Clone()
	}
	return out
}

// Configuration returns the saved configuration with id.
func (s *Store) Configuration(id string) (SavedConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return SavedConfiguration{}, fmt.Errorf("configuration %q: %w", id, ErrConfigurationNotFound)
	}
	return s.m.TradeRacks.Configurations[i].Clone(), nil
}

// ActiveConfigurationID returns the active configuration id, if any.
func (s *Store) ActiveConfigurationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.TradeRacks.ActiveConfigurationID
}

// ActiveParameters returns the active rack parameters.
func (s *Store) ActiveParameters() (rack.Parameters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m.TradeRacks.Active == nil {
		return rack.Parameters{}, false
	}
	return s.m.TradeRacks.Active.Clone(), true
}

// ActiveRackLength returns the active rack length for snap-line sizing.
func (s *Store) ActiveRackLength() (units.Length, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.m.TradeRacks.Active
	if a == nil || a.RackLength.IsZero() {
		return units.Length{}, false
	}
	return a.RackLength, true
}

// RecordParameterChange stores params as the active parameters. field
// names the edited parameter for the history title, or is empty.
func (s *Store) RecordParameterChange(ctx context.Context, params rack.Parameters, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := params.Clone()
	s.m.TradeRacks.Active = &p
	now := s.now()
	s.m.TradeRacks.LastModified = &now
	s.record(ctx, ComponentTradeRacks, ActionParameters, map[string]any{"field": field})
}

// RecordPositionChange stores the rack's permanent position.
func (s *Store) RecordPositionChange(ctx context.Context, pos geom.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m.TradeRacks.Active == nil {
		p := rack.DefaultParameters()
		s.m.TradeRacks.Active = &p
	}
	s.m.TradeRacks.Active.Position = &pos
	now := s.now()
	s.m.TradeRacks.LastModified = &now
	s.record(ctx, ComponentTradeRacks, ActionPosition, map[string]any{"position": pos})
}

// MEPItems returns the saved MEP items.
func (s *Store) MEPItems() []mep.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.MEPItems.All()
}

// UpdateMEPItems replaces the saved MEP items, routing each to its bucket.
func (s *Store) UpdateMEPItems(ctx context.Context, items []mep.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.m.MEPItems.Replace(items) {
		slog.Warn("mep item with unknown type dropped", "component", "manifest", "item_id", it.ID, "kind", string(it.Type))
	}
	now := s.now()
	s.m.MEPItems.LastModified = &now
	s.record(ctx, ComponentMEPItems, ActionBulkUpdate, map[string]int{"count": s.m.MEPItems.Count()})
}

// AddMEPItem stores item, assigning an id when it has none.
func (s *Store) AddMEPItem(ctx context.Context, item mep.Item) (mep.Item, error) {
	if !item.Type.Valid() {
		return mep.Item{}, fmt.Errorf("add %q: %w: type %q", item.ID, ErrInvalidItem, item.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = string(item.Type) + "-" + ulid.Make().String()
	}
	s.m.MEPItems.Upsert(item)
	now := s.now()
	s.m.MEPItems.LastModified = &now
	s.m.Statistics.MEPItemsAdded++
	s.record(ctx, ComponentMEPItems, ActionAdd, map[string]string{"id": item.ID, "name": item.Name, "type": string(item.Type)})
	return item.Clone(), nil
}

// RemoveMEPItem deletes the saved item with id.
func (s *Store) RemoveMEPItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.m.MEPItems.Remove(id)
	if !ok {
		return fmt.Errorf("remove %q: %w", id, ErrItemNotFound)
	}
	now := s.now()
	s.m.MEPItems.LastModified = &now
	s.record(ctx, ComponentMEPItems, ActionRemove, map[string]string{"id": id, "name": it.Name, "type": string(it.Type)})
	return nil
}

// UpdateMeasurements replaces the saved measurements.
func (s *Store) UpdateMeasurements(ctx context.Context, items []Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Measurement, len(items))
	for i, it := range items {
		if it.ID == "" {
			it.ID = ulid.Make().String()
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		out[i] = it
	}
	s.m.Measurements.Items = out
	s.m.Measurements.LastModified = &now
	s.m.Statistics.MeasurementsTaken = len(out)
	s.record(ctx, ComponentMeasurements, ActionUpdate, map[string]int{"count": len(out)})
}

// UpdateUIState merges patch into the UI state.
func (s *Store) UpdateUIState(ctx context.Context, patch map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(patch))
	for k, v := range patch {
		s.m.UIState[k] = v
		keys = append(keys, k)
	}
	s.record(ctx, ComponentUIState, ActionUpdate, map[string]any{"keys": keys})
}

// UIState returns a copy of the UI state.
func (s *Store) UIState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.m.UIState))
	for k, v := range s.m.UIState {
		out[k] = v
	}
	return out
}

func cloneItems(items []mep.Item) []mep.Item {
	out := make([]mep.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
