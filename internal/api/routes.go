package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required when an API key is configured)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/events", h.Events)

			r.Route("/rack", func(r chi.Router) {
				r.Get("/", h.GetRack)
				r.Get("/parameters", h.GetParameters)
				r.Put("/parameters", h.UpdateParameters)
				r.Put("/clearance", h.UpdateClearance)
			})
			r.Put("/building-shell", h.UpdateBuildingShell)

			r.Route("/mep", func(r chi.Router) {
				r.Get("/", h.ListItems)
				r.Post("/", h.AddItem)
				r.Get("/{id}", h.GetItem)
				r.Patch("/{id}", h.UpdateItem)
				r.Delete("/{id}", h.DeleteItem)
				r.Post("/{id}/clone", h.CloneItem)
			})

			r.Get("/selection", h.GetSelection)
			r.Put("/selection", h.Select)
			r.Delete("/selection", h.Deselect)
			r.Post("/pointer/click", h.Click)
			r.Post("/pointer/move", h.Move)
			r.Post("/drag/start", h.BeginDrag)
			r.Post("/drag/update", h.DragTo)
			r.Post("/drag/end", h.EndDrag)
			r.Post("/keys", h.Key)

			r.Get("/view", h.GetView)
			r.Put("/view/mode", h.SetViewMode)
			r.Put("/view/camera", h.UpdateCamera)

			r.Route("/configurations", func(r chi.Router) {
				r.Get("/", h.ListConfigurations)
				r.Post("/", h.SaveConfiguration)
				r.Get("/export", h.ExportConfigurations)
				r.Post("/import", h.ImportConfigurations)
				r.Get("/{id}", h.GetConfiguration)
				r.Delete("/{id}", h.DeleteConfiguration)
				r.Post("/{id}/apply", h.ApplyConfiguration)
				r.Post("/{id}/activate", h.ActivateConfiguration)
			})

			r.Get("/history", h.History)

			r.Route("/layout", func(r chi.Router) {
				// The search is CPU bound; a few at a time is plenty.
				r.Use(middleware.Throttle(2))
				r.Post("/suggest", h.SuggestLayout)
				r.Post("/apply", h.ApplyLayout)
			})
		})
	})

	return r
}
