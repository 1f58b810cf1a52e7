package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all imputation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/imputations", func(r chi.Router) {
		r.Post("/", h.HandleImpute)
		r.Post("/shares", h.HandleShares)
	})
}
