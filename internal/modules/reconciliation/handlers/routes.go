package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all spending routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/spending", func(r chi.Router) {
		r.Post("/classify", h.HandleClassify)
		r.Post("/reconcile", h.HandleReconcile)
	})
}
