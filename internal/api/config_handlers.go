package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/traderack/internal/configio"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/workspace"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ConfigurationList is the body of GET /configurations.
type ConfigurationList struct {
	ActiveID       string                        `json:"activeConfigurationId,omitempty"`
	Configurations []manifest.SavedConfiguration `json:"configurations"`
}

// ListConfigurations handles GET /api/v1/configurations
func (h *Handler) ListConfigurations(w http.ResponseWriter, r *http.Request) {
	m := h.ws.Manifest()
	cfgs := m.Configurations()
	if cfgs == nil {
		cfgs = []manifest.SavedConfiguration{}
	}
	writeJSON(w, http.StatusOK, ConfigurationList{ActiveID: m.ActiveConfigurationID(), Configurations: cfgs})
}

// GetConfiguration handles GET /api/v1/configurations/{id}
func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.ws.Manifest().Configuration(chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SaveRequest is the body of POST /configurations. An empty ID saves a
// new configuration; an existing ID overwrites it.
type SaveRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// SaveConfiguration handles POST /api/v1/configurations
func (h *Handler) SaveConfiguration(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	saved, err := h.ws.SaveConfiguration(r.Context(), req.ID, req.Name)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ApplyConfiguration handles POST /api/v1/configurations/{id}/apply
func (h *Handler) ApplyConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.ws.ApplyConfiguration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ActivateConfiguration handles POST /api/v1/configurations/{id}/activate
func (h *Handler) ActivateConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.ActivateConfiguration(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteConfiguration handles DELETE /api/v1/configurations/{id}
func (h *Handler) DeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DeleteConfiguration(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportConfigurations handles GET /api/v1/configurations/export
func (h *Handler) ExportConfigurations(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	data, err := h.ws.ExportConfigurations(now)
	if err != nil {
		MapError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="traderack-configurations-%s.json"`, now.Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportResponse lists the configurations an import added.
type ImportResponse struct {
	Imported       int                           `json:"imported"`
	Configurations []manifest.SavedConfiguration `json:"configurations"`
}

// ImportConfigurations handles POST /api/v1/configurations/import with an
// export file as the body.
func (h *Handler) ImportConfigurations(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, configio.MaxImportSize+1)
	added, err := h.ws.ImportConfigurations(r.Context(), body)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportResponse{Imported: len(added), Configurations: added})
}

// History handles GET /api/v1/history?limit=N, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	entries, err := h.db.RecentHistory(r.Context(), limit)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// SuggestLayout handles POST /api/v1/layout/suggest. An empty body uses
// the defaults.
func (h *Handler) SuggestLayout(w http.ResponseWriter, r *http.Request) {
	var req workspace.LayoutRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	s, err := h.ws.SuggestLayout(r.Context(), req)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ApplyLayout handles POST /api/v1/layout/apply with a suggestion as the body.
func (h *Handler) ApplyLayout(w http.ResponseWriter, r *http.Request) {
	var s workspace.LayoutSuggestion
	if !decodeJSON(w, r, &s) {
		return
	}
	view, err := h.ws.ApplyLayout(r.Context(), &s)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}
