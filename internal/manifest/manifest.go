// Package manifest holds the durable project record: building shell, saved
// rack configurations, MEP items, measurements, UI state and the bounded
// change history.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/units"
	"github.com/oklog/ulid/v2"
)

// Version is the manifest schema version written by this package.
const Version = "1.0"

// Project describes the project.
type Project struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
}

// BuildingShellParameters are the corridor dimensions. SlabDepth,
// CeilingDepth and WallThickness are inches.
type BuildingShellParameters struct {
	CorridorWidth  units.Length `json:"corridorWidth"`
	CorridorHeight units.Length `json:"corridorHeight"`
	CeilingHeight  units.Length `json:"ceilingHeight"`
	BeamDepth      units.Length `json:"beamDepth"`
	SlabDepth      float64      `json:"slabDepth"`
	CeilingDepth   float64      `json:"ceilingDepth"`
	WallThickness  float64      `json:"wallThickness"`
}

// BuildingContext returns the rack builder's view of the shell.
func (p BuildingShellParameters) BuildingContext() *rack.BuildingContext {
	if p.CorridorHeight.IsZero() {
		return nil
	}
	return &rack.BuildingContext{CorridorHeight: p.CorridorHeight, BeamDepth: p.BeamDepth}
}

// BuildingShell wraps the shell parameters.
type BuildingShell struct {
	Parameters   *BuildingShellParameters `json:"parameters"`
	LastModified *time.Time               `json:"lastModified"`
	Version      int                      `json:"version"`
}

// SavedConfiguration is a named rack configuration with its MEP items.
type SavedConfiguration struct {
	rack.Parameters
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	SavedAt     time.Time  `json:"savedAt"`
	Version     int        `json:"version"`
	LastApplied *time.Time `json:"lastApplied,omitempty"`
	OriginalID  string     `json:"originalId,omitempty"`
	MEPItems    []mep.Item `json:"mepItems"`
}

// Clone returns a deep copy.
func (c SavedConfiguration) Clone() SavedConfiguration {
	out := c
	out.Parameters = c.Parameters.Clone()
	out.MEPItems = make([]mep.Item, len(c.MEPItems))
	for i, it := range c.MEPItems {
		out.MEPItems[i] = it.Clone()
	}
	if c.LastApplied != nil {
		t := *c.LastApplied
		out.LastApplied = &t
	}
	return out
}

// TradeRacks holds the active parameters and the saved configurations.
type TradeRacks struct {
	Active                *rack.Parameters     `json:"active"`
	ActiveConfigurationID string               `json:"activeConfigurationId"`
	Configurations        []SavedConfiguration `json:"configurations"`
	TotalCount            int                  `json:"totalCount"`
	LastModified          *time.Time           `json:"lastModified"`
}

// MEPItems are the saved MEP items by category.
type MEPItems struct {
	mep.Buckets
	TotalCount   int        `json:"totalCount"`
	LastModified *time.Time `json:"lastModified"`
}

// Measurement is a saved point-to-point dimension.
type Measurement struct {
	ID        string    `json:"id"`
	Start     geom.Vec3 `json:"start"`
	End       geom.Vec3 `json:"end"`
	Distance  float64   `json:"distance"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Measurements holds the saved measurements.
type Measurements struct {
	Items        []Measurement `json:"items"`
	TotalCount   int           `json:"totalCount"`
	LastModified *time.Time    `json:"lastModified"`
}

// Statistics are project usage counters.
type Statistics struct {
	ConfigurationsSaved int    `json:"configurationsSaved"`
	MEPItemsAdded       int    `json:"mepItemsAdded"`
	MeasurementsTaken   int    `json:"measurementsTaken"`
	LastSession         string `json:"lastSession"`
}

// Change is one change history entry.
type Change struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Component string          `json:"component"`
	Action    string          `json:"action"`
	Title     string          `json:"title"`
	Details   json.RawMessage `json:"details,omitempty"`
	SessionID string          `json:"sessionId"`
}

// Manifest is the persistent project root. Unknown fields read from
// storage are kept and written back, at any depth: nested objects are
// followed by key and arrays of objects by element "id".
type Manifest struct {
	Version       string         `json:"version"`
	ProjectID     string         `json:"projectId"`
	CreatedAt     time.Time      `json:"createdAt"`
	LastUpdated   time.Time      `json:"lastUpdated"`
	Project       Project        `json:"project"`
	BuildingShell BuildingShell  `json:"buildingShell"`
	TradeRacks    TradeRacks     `json:"tradeRacks"`
	MEPItems      MEPItems       `json:"mepItems"`
	Measurements  Measurements   `json:"measurements"`
	UIState       map[string]any `json:"uiState"`
	Statistics    Statistics     `json:"statistics"`
	ChangeHistory []Change       `json:"changeHistory"`

	unknown unknownFields
}

// unknownFields holds stored keys the typed model does not carry. Values
// are either raw leaves or, for paths leading to deeper unknown keys,
// unknownFields (objects) and unknownList (id-matched array elements).
type unknownFields map[string]any

type unknownList []unknownFields

// New returns the initial template.
func New(now time.Time) *Manifest {
	m := &Manifest{
		Version:     Version,
		ProjectID:   ulid.Make().String(),
		CreatedAt:   now,
		LastUpdated: now,
		Project:     Project{Name: "Untitled Project", Status: "draft", Tags: []string{}},
		BuildingShell: BuildingShell{
			Version: 1,
		},
		TradeRacks: TradeRacks{Configurations: []SavedConfiguration{}},
		Measurements: Measurements{
			Items: []Measurement{},
		},
		UIState: map[string]any{
			"activePanel":             "",
			"isRackPropertiesVisible": false,
			"isMeasurementActive":     false,
			"viewMode":                "3D",
		},
		ChangeHistory: []Change{},
	}
	m.MEPItems.Normalize()
	return m
}

// recount refreshes the derived totals.
func (m *Manifest) recount() {
	m.MEPItems.Normalize()
	m.MEPItems.TotalCount = m.MEPItems.Count()
	m.TradeRacks.TotalCount = len(m.TradeRacks.Configurations)
	m.Measurements.TotalCount = len(m.Measurements.Items)
}

type manifestJSON Manifest

// MarshalJSON writes the manifest with any preserved unknown fields.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal((*manifestJSON)(m))
	if err != nil {
		return nil, err
	}
	if len(m.unknown) == 0 {
		return data, nil
	}
	fields, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	m.unknown.overlay(fields)
	return json.Marshal(fields)
}

func decodeObject(data []byte) (map[string]any, error) {
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// collectUnknown returns the keys of raw that known lacks, following
// shared objects and id-matched array elements.
func collectUnknown(raw, known map[string]any) unknownFields {
	out := unknownFields{}
	for k, rv := range raw {
		kv, ok := known[k]
		if !ok {
			out[k] = rv
			continue
		}
		switch r := rv.(type) {
		case map[string]any:
			if km, ok := kv.(map[string]any); ok {
				if sub := collectUnknown(r, km); len(sub) > 0 {
					out[k] = sub
				}
			}
		case []any:
			if ka, ok := kv.([]any); ok {
				if sub := collectUnknownList(r, ka); len(sub) > 0 {
					out[k] = sub
				}
			}
		}
	}
	return out
}

func collectUnknownList(raw, known []any) unknownList {
	byID := indexByID(known)
	var out unknownList
	for _, e := range raw {
		rm, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id := elementID(rm)
		km, ok := byID[id]
		if id == "" || !ok {
			continue
		}
		if sub := collectUnknown(rm, km); len(sub) > 0 {
			sub["id"] = id
			out = append(out, sub)
		}
	}
	return out
}

// overlay writes u into dst. Paths that no longer exist in dst are dropped.
func (u unknownFields) overlay(dst map[string]any) {
	for k, uv := range u {
		dv, present := dst[k]
		switch v := uv.(type) {
		case unknownFields:
			if d, ok := dv.(map[string]any); ok {
				v.overlay(d)
			}
		case unknownList:
			if d, ok := dv.([]any); ok {
				byID := indexByID(d)
				for _, el := range v {
					if target, ok := byID[elementID(el)]; ok {
						el.overlay(target)
					}
				}
			}
		default:
			if !present {
				dst[k] = uv
			}
		}
	}
}

func indexByID(elems []any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(elems))
	for _, e := range elems {
		if m, ok := e.(map[string]any); ok {
			if id := elementID(m); id != "" {
				out[id] = m
			}
		}
	}
	return out
}

func elementID(m map[string]any) string {
	id, _ := m["id"].(string)
	return id
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	data, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("manifest: clone: %v", err))
	}
	out, _, err := Decode(data, m.LastUpdated)
	if err != nil {
		panic(fmt.Sprintf("manifest: clone: %v", err))
	}
	return out
}

// Decode parses a stored manifest. Missing sections are filled from the
// initial template (recursively into nested objects) and unknown fields are
// preserved. migrated reports whether anything was filled in or
// the version changed.
func Decode(data []byte, now time.Time) (m *Manifest, migrated bool, err error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, false, fmt.Errorf("decode manifest: %w", err)
	}
	if raw == nil {
		return nil, false, fmt.Errorf("decode manifest: not an object")
	}

	tmplData, err := json.Marshal((*manifestJSON)(New(now)))
	if err != nil {
		return nil, false, err
	}
	var tmpl map[string]any
	if err := json.Unmarshal(tmplData, &tmpl); err != nil {
		return nil, false, err
	}
	migrated = fillMissing(raw, tmpl)
	if v, _ := raw["version"].(string); v != Version {
		raw["version"] = Version
		migrated = true
	}

	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, false, err
	}
	m = &Manifest{}
	if err := json.Unmarshal(merged, (*manifestJSON)(m)); err != nil {
		return nil, false, fmt.Errorf("decode manifest: %w", err)
	}

	typed, err := json.Marshal((*manifestJSON)(m))
	if err != nil {
		return nil, false, err
	}
	known, err := decodeObject(typed)
	if err != nil {
		return nil, false, err
	}
	if u := collectUnknown(raw, known); len(u) > 0 {
		m.unknown = u
	}
	if m.UIState == nil {
		m.UIState = map[string]any{}
	}
	m.recount()
	return m, migrated, nil
}

// fillMissing copies keys of tmpl absent from dst, recursing where both
// sides hold objects. A null in dst counts as present.
func fillMissing(dst, tmpl map[string]any) bool {
	changed := false
	for k, tv := range tmpl {
		dv, ok := dst[k]
		if !ok {
			dst[k] = tv
			changed = true
			continue
		}
		dm, dIsMap := dv.(map[string]any)
		tm, tIsMap := tv.(map[string]any)
		if dIsMap && tIsMap && fillMissing(dm, tm) {
			changed = true
		}
	}
	return changed
}
