// Package tempstate holds session-scoped state: camera, UI flags, the
// rack's in-flight placement and the active MEP items between saves.
package tempstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/store"
)

// Version is the temporary state schema version.
const Version = "1.0"

// DefaultCameraDebounce is the trailing delay before a camera change is
// written.
const DefaultCameraDebounce = 500 * time.Millisecond

// Camera is the persisted viewer state.
type Camera struct {
	Position geom.Vec3 `json:"position"`
	Rotation geom.Vec3 `json:"rotation"`
	Zoom     float64   `json:"zoom"`
	Target   geom.Vec3 `json:"target"`
	ViewMode string    `json:"viewMode"`
}

// UI holds transient interface flags.
type UI struct {
	ActivePanel           string   `json:"activePanel"`
	SelectedObjects       []string `json:"selectedObjects"`
	HoveredObjects        []string `json:"hoveredObjects"`
	TransformMode         string   `json:"transformMode"`
	MeasurementToolActive bool     `json:"measurementToolActive"`
}

// Rack is the rack's session placement. TopClearance is feet.
type Rack struct {
	TemporaryPosition *geom.Vec3 `json:"temporaryPosition,omitempty"`
	IsDragging        bool       `json:"isDragging"`
	TopClearance      *float64   `json:"topClearance,omitempty"`
}

// MEP holds the active, unsaved MEP items.
type MEP struct {
	ActiveItems    mep.Buckets `json:"activeItems"`
	TotalCount     int         `json:"totalCount"`
	SelectedItemID string      `json:"selectedItemId,omitempty"`
	EditingItemID  string      `json:"editingItemId,omitempty"`
}

// Measurements holds an in-progress measurement.
type Measurements struct {
	ActivePoints []geom.Vec3 `json:"activePoints"`
	AxisLock     string      `json:"axisLock,omitempty"`
}

// State is the temporary state document.
type State struct {
	Version      string       `json:"version"`
	SessionID    string       `json:"sessionId"`
	LastUpdated  time.Time    `json:"lastUpdated"`
	Camera       Camera       `json:"camera"`
	UI           UI           `json:"ui"`
	Rack         Rack         `json:"rack"`
	MEP          MEP          `json:"mep"`
	Measurements Measurements `json:"measurements"`
}

func newState(sessionID string, now time.Time) *State {
	st := &State{
		Version:     Version,
		SessionID:   sessionID,
		LastUpdated: now,
		Camera:      Camera{Position: geom.V(10, 8, 10), Zoom: 1, ViewMode: "3D"},
		UI:          UI{SelectedObjects: []string{}, HoveredObjects: []string{}, TransformMode: "translate"},
		Measurements: Measurements{
			ActivePoints: []geom.Vec3{},
		},
	}
	st.normalize()
	return st
}

func (st *State) normalize() {
	st.MEP.ActiveItems.Normalize()
	st.MEP.TotalCount = st.MEP.ActiveItems.Count()
	if st.UI.SelectedObjects == nil {
		st.UI.SelectedObjects = []string{}
	}
	if st.UI.HoveredObjects == nil {
		st.UI.HoveredObjects = []string{}
	}
	if st.Measurements.ActivePoints == nil {
		st.Measurements.ActivePoints = []geom.Vec3{}
	}
}

// Store is the process-wide temporary state store. Camera writes are
// debounced; every other setter writes through.
type Store struct {
	mu       sync.Mutex
	db       store.Store
	st       *State
	now      func() time.Time
	debounce time.Duration
	timer    *time.Timer
	pending  bool
}

// Option configures a Store.
type Option func(*Store)

// WithCameraDebounce overrides DefaultCameraDebounce.
func WithCameraDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the previous temporary state, if any, and stamps a fresh
// session id. A nil db keeps state in memory only.
func Open(ctx context.Context, db store.Store, opts ...Option) *Store {
	s := &Store{
		db:       db,
		debounce: DefaultCameraDebounce,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	sessionID := uuid.NewString()
	s.st = s.load(ctx, sessionID)
	s.st.SessionID = sessionID
	s.st.Rack.IsDragging = false
	s.write(ctx)
	slog.Info("session started", "component", "tempstate", "session_id", sessionID)
	return s
}

func (s *Store) load(ctx context.Context, sessionID string) *State {
	now := s.now()
	if s.db == nil {
		return newState(sessionID, now)
	}
	doc, err := s.db.GetDocument(ctx, store.KeyTemporaryState)
	if errors.Is(err, store.ErrNotFound) {
		return newState(sessionID, now)
	}
	if err != nil {
		slog.Error("load temporary state failed", "component", "tempstate", "action", "load", "error", err)
		return newState(sessionID, now)
	}
	st := newState(sessionID, now)
	if err := json.Unmarshal(doc.Body, st); err != nil {
		slog.Warn("temporary state unreadable, starting fresh", "component", "tempstate", "action", "load", "error", err)
		return newState(sessionID, now)
	}
	st.Version = Version
	st.normalize()
	return st
}

// write persists the state. Callers hold mu.
func (s *Store) write(ctx context.Context) error {
	s.pending = false
	s.st.LastUpdated = s.now()
	if s.db == nil {
		return nil
	}
	data, err := json.Marshal(s.st)
	if err != nil {
		return fmt.Errorf("encode temporary state: %w", err)
	}
	if _, err := s.db.PutDocument(ctx, store.KeyTemporaryState, data); err != nil {
		slog.Error("persist temporary state failed", "component", "tempstate", "action", "persist", "error", err)
		return fmt.Errorf("persist temporary state: %w", err)
	}
	return nil
}

// SessionID returns the current session id.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SessionID
}

// Snapshot returns a deep copy of the state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := json.Marshal(s.st)
	var out State
	_ = json.Unmarshal(data, &out)
	out.normalize()
	return out
}

// UpdateCamera records the camera and schedules a trailing write.
func (s *Store) UpdateCamera(cam Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Camera = cam
	s.pending = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flushTimer)
}

func (s *Store) flushTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		_ = s.write(context.Background())
	}
}

// Flush writes any pending debounced change now.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.pending {
		return nil
	}
	return s.write(ctx)
}

// Close flushes pending writes.
func (s *Store) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// UpdateUI applies fn to the UI flags and persists.
func (s *Store) UpdateUI(ctx context.Context, fn func(*UI)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st.UI)
	s.st.normalize()
	return s.write(ctx)
}

// SetDragging records whether the rack is being dragged.
func (s *Store) SetDragging(ctx context.Context, dragging bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Rack.IsDragging == dragging {
		return nil
	}
	s.st.Rack.IsDragging = dragging
	return s.write(ctx)
}

// SaveRackState stores the rack's temporary position and clearance (feet).
func (s *Store) SaveRackState(ctx context.Context, position geom.Vec3, clearanceFt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := position
	c := clearanceFt
	s.st.Rack.TemporaryPosition = &pos
	s.st.Rack.TopClearance = &c
	s.st.Rack.IsDragging = false
	return s.write(ctx)
}

// ClearRackPosition drops the temporary position after a permanent save.
// The clearance is kept.
func (s *Store) ClearRackPosition(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Rack.TemporaryPosition == nil {
		return nil
	}
	s.st.Rack.TemporaryPosition = nil
	return s.write(ctx)
}

// RackPreservation returns the placement to carry into a rebuild, or nil
// when the session holds none.
func (s *Store) RackPreservation() *rack.Preservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.st.Rack
	if r.TemporaryPosition == nil && r.TopClearance == nil {
		return nil
	}
	p := &rack.Preservation{}
	if r.TemporaryPosition != nil {
		pos := *r.TemporaryPosition
		p.Position = &pos
	}
	if r.TopClearance != nil {
		c := *r.TopClearance
		p.Clearance = &c
	}
	return p
}

// UpsertMEPItems stores several items with a single write. Items of unknown
// type are skipped and returned.
func (s *Store) UpsertMEPItems(ctx context.Context, items []mep.Item) ([]mep.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var skipped []mep.Item
	for _, it := range items {
		if !s.st.MEP.ActiveItems.Upsert(it) {
			skipped = append(skipped, it)
		}
	}
	if len(skipped) == len(items) {
		return skipped, nil
	}
	s.st.normalize()
	return skipped, s.write(ctx)
}

// UpsertMEPItem stores item, replacing the active item with the same base
// id and type, and returns the updated active items.
func (s *Store) UpsertMEPItem(ctx context.Context, item mep.Item) ([]mep.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.st.MEP.ActiveItems.Upsert(item) {
		return s.st.MEP.ActiveItems.All(), fmt.Errorf("upsert %q: unknown mep type %q", item.ID, item.Type)
	}
	s.st.normalize()
	return s.st.MEP.ActiveItems.All(), s.write(ctx)
}

// SetActiveItems replaces the active items, routing each by type into its
// category bucket. Items of unknown type are dropped and returned.
func (s *Store) SetActiveItems(ctx context.Context, items []mep.Item) []mep.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	skipped := s.st.MEP.ActiveItems.Replace(items)
	for _, it := range skipped {
		slog.Warn("mep item with unknown type dropped", "component", "tempstate", "item_id", it.ID, "kind", string(it.Type))
	}
	s.st.normalize()
	_ = s.write(ctx)
	return skipped
}

// RemoveMEPItem deletes the active item with id.
func (s *Store) RemoveMEPItem(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.MEP.ActiveItems.Remove(id); !ok {
		return false
	}
	if s.st.MEP.SelectedItemID == id {
		s.st.MEP.SelectedItemID = ""
	}
	if s.st.MEP.EditingItemID == id {
		s.st.MEP.EditingItemID = ""
	}
	s.st.normalize()
	_ = s.write(ctx)
	return true
}

// ActiveItems returns the active MEP items in kind order.
func (s *Store) ActiveItems() []mep.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.MEP.ActiveItems.All()
}

// SetSelectedItem records the selected MEP item id, or "" for none.
func (s *Store) SetSelectedItem(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.MEP.SelectedItemID == id {
		return
	}
	s.st.MEP.SelectedItemID = id
	_ = s.write(ctx)
}

// SetMeasurement records an in-progress measurement.
func (s *Store) SetMeasurement(ctx context.Context, points []geom.Vec3, axisLock string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Measurements.ActivePoints = append([]geom.Vec3(nil), points...)
	s.st.Measurements.AxisLock = axisLock
	s.st.normalize()
	_ = s.write(ctx)
}
