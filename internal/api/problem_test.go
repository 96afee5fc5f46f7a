package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperengineering/traderack/internal/configio"
	"github.com/hyperengineering/traderack/internal/layout"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/validation"
	"github.com/hyperengineering/traderack/internal/workspace"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) ProblemWithErrors {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v (body %s)", err, w.Body.String())
	}
	return p
}

func TestWriteProblem_TypesAndTitles(t *testing.T) {
	tests := []struct {
		status int
		typ    string
		title  string
	}{
		{400, "https://traderack.dev/errors/bad-request", "Bad Request"},
		{401, "https://traderack.dev/errors/unauthorized", "Unauthorized"},
		{404, "https://traderack.dev/errors/not-found", "Not Found"},
		{409, "https://traderack.dev/errors/conflict", "Conflict"},
		{413, "https://traderack.dev/errors/too-large", "Request Entity Too Large"},
		{422, "https://traderack.dev/errors/validation-error", "Validation Error"},
		{429, "https://traderack.dev/errors/rate-limit", "Too Many Requests"},
		{500, "https://traderack.dev/errors/internal-error", "Internal Server Error"},
		{503, "https://traderack.dev/errors/service-unavailable", "Service Unavailable"},
		{418, "https://traderack.dev/errors/unknown", "I'm a teapot"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/mep/x", nil)
			WriteProblem(w, r, tt.status, "detail text")

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			p := decodeProblem(t, w)
			if p.Type != tt.typ || p.Title != tt.title {
				t.Errorf("type/title = %q/%q, want %q/%q", p.Type, p.Title, tt.typ, tt.title)
			}
			if p.Detail != "detail text" || p.Instance != "/api/v1/mep/x" || p.Status != tt.status {
				t.Errorf("problem = %+v", p.Problem)
			}
		})
	}
}

func TestWriteProblemWithErrors_422(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/mep", nil)
	errs := []validation.ValidationError{
		{Field: "width", Message: "must be greater than 0"},
		{Field: "type", Message: "is required"},
	}
	WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	p := decodeProblem(t, w)
	if len(p.Errors) != 2 || p.Errors[0].Field != "width" || p.Errors[1].Field != "type" {
		t.Errorf("errors = %+v", p.Errors)
	}
}

func TestMapError(t *testing.T) {
	fieldErrs := []validation.ValidationError{{Field: "name", Message: "is required"}}
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantErrors int
	}{
		{"workspace invalid", &workspace.InvalidError{Errors: fieldErrs}, 422, 1},
		{"wrapped workspace invalid", fmt.Errorf("add item: %w", &workspace.InvalidError{Errors: fieldErrs}), 422, 1},
		{"import invalid", &configio.InvalidError{Errors: fieldErrs}, 422, 1},
		{"import too large", configio.ErrTooLarge, 413, 0},
		{"import malformed", fmt.Errorf("%w: unexpected EOF", configio.ErrInvalidFile), 400, 0},
		{"workspace item missing", workspace.ErrItemNotFound, 404, 0},
		{"manifest item missing", manifest.ErrItemNotFound, 404, 0},
		{"configuration missing", fmt.Errorf("apply: %w", manifest.ErrConfigurationNotFound), 404, 0},
		{"store not found", store.ErrNotFound, 404, 0},
		{"nothing selected", workspace.ErrNothingSelected, 409, 0},
		{"empty layout", fmt.Errorf("suggest layout: %w", layout.ErrNoRects), 409, 0},
		{"bad layout options", fmt.Errorf("suggest layout: %w: population 2", layout.ErrInvalidOptions), 400, 0},
		{"unknown", errors.New("disk on fire"), 500, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			MapError(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			p := decodeProblem(t, w)
			if len(p.Errors) != tt.wantErrors {
				t.Errorf("errors = %+v, want %d", p.Errors, tt.wantErrors)
			}
		})
	}
}

func TestMapError_InternalDetailsHidden(t *testing.T) {
	logBuf := captureLogs(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/rack", nil)
	MapError(w, r, errors.New("sqlite: database disk image is malformed"))

	if strings.Contains(w.Body.String(), "sqlite") {
		t.Errorf("internal error leaked to client: %s", w.Body.String())
	}
	if !strings.Contains(logBuf.String(), "database disk image is malformed") {
		t.Error("internal error was not logged")
	}
}
