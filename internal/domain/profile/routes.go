package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns profile router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/{userId}", h.GetView)

	return r
}
