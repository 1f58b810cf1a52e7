package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all channel routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/channels", func(r chi.Router) {
		r.Post("/resolve", h.HandleResolve)
		r.Post("/resolve-bulk", h.HandleResolveBulk)

		// Curation
		r.Get("/unresolved", h.HandleGetUnresolved)
		r.Post("/unresolved/export", h.HandleExportUnresolved)

		// Catalogue
		r.Get("/status", h.HandleGetStatus)
		r.Post("/invalidate", h.HandleInvalidate)
	})
}
