package connection

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns connections router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// All routes require authentication
	r.Use(authMiddleware)

	r.Get("/", h.List)
	r.Post("/invites", h.CreateInvite)

	// Requests
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.SendRequest)
		r.Get("/", h.ListPending)
		r.Post("/{id}/accept", h.Accept)
		r.Post("/{id}/accept-tier", h.AcceptTierChange)
		r.Post("/{id}/reject", h.Reject)
		r.Delete("/{id}", h.Cancel)
	})

	// Pair operations
	r.Route("/{userId}", func(r chi.Router) {
		r.Get("/", h.GetRelationship)
		r.Delete("/", h.Remove)
		r.Put("/tier", h.ChangeTier)
		r.Post("/block", h.Block)
		r.Delete("/block", h.Unblock)
		r.Get("/mutual", h.Mutual)
	})

	return r
}
