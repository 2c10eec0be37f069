package moment

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns feed, moment and story routes
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// All routes require authentication
	r.Use(authMiddleware)

	r.Get("/feed", h.Feed)
	r.Get("/users/{userId}/moments", h.UserMoments)

	r.Route("/moments", func(r chi.Router) {
		r.Post("/", h.CreateMoment)
		r.Get("/{id}", h.GetMoment)
		r.Delete("/{id}", h.DeleteMoment)
		r.Post("/{id}/unlink", h.UnlinkMoment)
	})

	r.Route("/stories", func(r chi.Router) {
		r.Post("/", h.CreateStory)
		r.Delete("/{id}", h.DeleteStory)
		r.Get("/{id}/moments", h.StoryMoments)
	})

	return r
}
