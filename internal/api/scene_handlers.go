package api

import (
	"net/http"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/interaction"
	"github.com/hyperengineering/traderack/internal/workspace"
)

// PointerResponse is the result of a click or move.
type PointerResponse struct {
	Pick      interaction.PickResult `json:"pick"`
	Selection workspace.Selection    `json:"selection"`
}

// Click handles POST /api/v1/pointer/click with normalized device
// coordinates {x, y} in [-1, 1].
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	var ndc geom.Vec2
	if !decodeJSON(w, r, &ndc) {
		return
	}
	pick := h.ws.Click(r.Context(), ndc)
	writeJSON(w, http.StatusOK, PointerResponse{Pick: pick, Selection: h.ws.Selection()})
}

// Move handles POST /api/v1/pointer/move
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var ndc geom.Vec2
	if !decodeJSON(w, r, &ndc) {
		return
	}
	pick := h.ws.Move(r.Context(), ndc)
	writeJSON(w, http.StatusOK, PointerResponse{Pick: pick, Selection: h.ws.Selection()})
}

// GetSelection handles GET /api/v1/selection
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Selection())
}

// SelectRequest is the body of PUT /selection.
type SelectRequest struct {
	ID string `json:"id"`
}

// Select handles PUT /api/v1/selection
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.ws.Select(r.Context(), req.ID); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ws.Selection())
}

// Deselect handles DELETE /api/v1/selection
func (h *Handler) Deselect(w http.ResponseWriter, r *http.Request) {
	h.ws.Deselect(r.Context())
	writeJSON(w, http.StatusOK, h.ws.Selection())
}

// BeginDrag handles POST /api/v1/drag/start
func (h *Handler) BeginDrag(w http.ResponseWriter, r *http.Request) {
	sel, err := h.ws.BeginDrag(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// DragRequest is the body of POST /drag/update: the gizmo target in
// world meters.
type DragRequest struct {
	Target geom.Vec3 `json:"target"`
}

// DragTo handles POST /api/v1/drag/update
func (h *Handler) DragTo(w http.ResponseWriter, r *http.Request) {
	var req DragRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Target.IsFinite() {
		WriteProblem(w, r, http.StatusBadRequest, "target must be finite")
		return
	}
	sel, err := h.ws.DragTo(req.Target)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// EndDrag handles POST /api/v1/drag/end
func (h *Handler) EndDrag(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.EndDrag(r.Context()))
}

// KeyRequest is the body of POST /keys.
type KeyRequest struct {
	Key string `json:"key"`
}

// KeyResponse reports whether the shortcut was handled.
type KeyResponse struct {
	Handled bool           `json:"handled"`
	View    workspace.View `json:"view"`
}

// Key handles POST /api/v1/keys
func (h *Handler) Key(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	handled := h.ws.Key(req.Key)
	writeJSON(w, http.StatusOK, KeyResponse{Handled: handled, View: h.ws.View()})
}

// GetView handles GET /api/v1/view
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.View())
}

// ViewModeRequest is the body of PUT /view/mode.
type ViewModeRequest struct {
	Mode workspace.ViewMode `json:"mode"`
}

// SetViewMode handles PUT /api/v1/view/mode
func (h *Handler) SetViewMode(w http.ResponseWriter, r *http.Request) {
	var req ViewModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.ws.SetViewMode(req.Mode)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateCamera handles PUT /api/v1/view/camera
func (h *Handler) UpdateCamera(w http.ResponseWriter, r *http.Request) {
	var req workspace.CameraUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.ws.UpdateCamera(req)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}
