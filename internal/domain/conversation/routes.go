package conversation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns conversation routes
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/{userId}", h.Get)

	return r
}
