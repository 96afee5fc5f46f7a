package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/workspace"
)

// Handler implements the API handlers
type Handler struct {
	ws      *workspace.Workspace
	db      store.Store
	bus     *events.Bus
	apiKey  string
	version string
	now     func() time.Time
}

// NewHandler creates a Handler over one workspace. bus must be the
// publisher the workspace was opened with.
func NewHandler(ws *workspace.Workspace, db store.Store, bus *events.Bus, apiKey, version string) *Handler {
	return &Handler{
		ws:      ws,
		db:      db,
		bus:     bus,
		apiKey:  apiKey,
		version: version,
		now:     time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// decodeJSON decodes the request body into v, writing a 400 problem on
// failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string     `json:"status"`
	Version          string     `json:"version"`
	SessionID        string     `json:"sessionId"`
	MEPItems         int        `json:"mepItems"`
	Configurations   int        `json:"configurations"`
	HistoryEntries   int64      `json:"historyEntries"`
	LastCompactionAt *time.Time `json:"lastCompactionAt,omitempty"`
	LastBackupAt     *time.Time `json:"lastBackupAt,omitempty"`
	Subscribers      int        `json:"subscribers"`
	DroppedEvents    uint64     `json:"droppedEvents"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		slog.Error("health stats failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "healthy",
		Version:          h.version,
		SessionID:        h.ws.Session().SessionID(),
		MEPItems:         len(h.ws.Items()),
		Configurations:   len(h.ws.Manifest().Configurations()),
		HistoryEntries:   stats.HistoryEntries,
		LastCompactionAt: stats.LastCompactionAt,
		LastBackupAt:     stats.LastBackupAt,
		Subscribers:      h.bus.Subscribers(),
		DroppedEvents:    h.bus.Dropped(),
	})
}

// GetRack handles GET /api/v1/rack
func (h *Handler) GetRack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Rack())
}

// GetParameters handles GET /api/v1/rack/parameters
func (h *Handler) GetParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Parameters())
}

// UpdateParametersRequest is the body of PUT /rack/parameters. Field names
// the edited parameter for the change history.
type UpdateParametersRequest struct {
	Parameters rack.Parameters `json:"parameters"`
	Field      string          `json:"field,omitempty"`
}

// UpdateParameters handles PUT /api/v1/rack/parameters
func (h *Handler) UpdateParameters(w http.ResponseWriter, r *http.Request) {
	var req UpdateParametersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.ws.UpdateParameters(r.Context(), req.Parameters, req.Field)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClearanceRequest is the body of PUT /rack/clearance.
type ClearanceRequest struct {
	Inches float64 `json:"inches"`
}

// UpdateClearance handles PUT /api/v1/rack/clearance
func (h *Handler) UpdateClearance(w http.ResponseWriter, r *http.Request) {
	var req ClearanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.ws.UpdateClearance(r.Context(), req.Inches)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateBuildingShell handles PUT /api/v1/building-shell
func (h *Handler) UpdateBuildingShell(w http.ResponseWriter, r *http.Request) {
	var req manifest.BuildingShellParameters
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.ws.UpdateBuildingShell(r.Context(), req)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListItems handles GET /api/v1/mep
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Items())
}

// GetItem handles GET /api/v1/mep/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.ws.Item(chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// AddItem handles POST /api/v1/mep
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var item mep.Item
	if !decodeJSON(w, r, &item) {
		return
	}
	added, err := h.ws.AddMEPItem(r.Context(), item)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// UpdateItem handles PATCH /api/v1/mep/{id}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var dims mep.Dimensions
	if !decodeJSON(w, r, &dims) {
		return
	}
	item, err := h.ws.UpdateDimensions(r.Context(), chi.URLParam(r, "id"), dims)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/v1/mep/{id}
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DeleteMEPItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CloneItem handles POST /api/v1/mep/{id}/clone
func (h *Handler) CloneItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.ws.CloneMEPItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}
