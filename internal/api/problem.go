package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/traderack/internal/configio"
	"github.com/hyperengineering/traderack/internal/layout"
	"github.com/hyperengineering/traderack/internal/manifest"
	"github.com/hyperengineering/traderack/internal/store"
	"github.com/hyperengineering/traderack/internal/validation"
	"github.com/hyperengineering/traderack/internal/workspace"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

const problemBase = "https://traderack.dev/errors/"

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusBadRequest:            {problemBase + "bad-request", "Bad Request"},
	http.StatusUnauthorized:          {problemBase + "unauthorized", "Unauthorized"},
	http.StatusNotFound:              {problemBase + "not-found", "Not Found"},
	http.StatusConflict:              {problemBase + "conflict", "Conflict"},
	http.StatusRequestEntityTooLarge: {problemBase + "too-large", "Request Entity Too Large"},
	http.StatusUnprocessableEntity:   {problemBase + "validation-error", "Validation Error"},
	http.StatusTooManyRequests:       {problemBase + "rate-limit", "Too Many Requests"},
	http.StatusInternalServerError:   {problemBase + "internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:    {problemBase + "service-unavailable", "Service Unavailable"},
}

func problemFor(status int) (string, string) {
	if pt, ok := problemTypes[status]; ok {
		return pt.typeURI, pt.title
	}
	return problemBase + "unknown", http.StatusText(status)
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	typeURI, title := problemFor(status)
	writeProblemJSON(w, status, Problem{
		Type:     typeURI,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	status := http.StatusUnprocessableEntity
	typeURI, title := problemFor(status)
	writeProblemJSON(w, status, ProblemWithErrors{
		Problem: Problem{
			Type:     typeURI,
			Title:    title,
			Status:   status,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	})
}

func writeProblemJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *workspace.InvalidError
	var importErr *configio.InvalidError
	switch {
	case errors.As(err, &invalid):
		WriteProblemWithErrors(w, r, "Request contains invalid fields", invalid.Errors)
	case errors.As(err, &importErr):
		WriteProblemWithErrors(w, r, "Configuration file contains invalid fields", importErr.Errors)
	case errors.Is(err, configio.ErrTooLarge):
		WriteProblem(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, configio.ErrInvalidFile),
		errors.Is(err, layout.ErrInvalidOptions):
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, workspace.ErrItemNotFound),
		errors.Is(err, manifest.ErrItemNotFound),
		errors.Is(err, manifest.ErrConfigurationNotFound),
		errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, workspace.ErrNothingSelected),
		errors.Is(err, layout.ErrNoRects):
		WriteProblem(w, r, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "component", "api", "path", r.URL.Path, "error", err)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
