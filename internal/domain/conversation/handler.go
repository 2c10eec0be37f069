package conversation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/middleware"
	"github.com/mwork/moments-api/internal/pkg/errorhandler"
	"github.com/mwork/moments-api/internal/pkg/response"
)

// Handler handles conversation HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates conversation handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get handles GET /conversations/{userId}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	otherID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	c, err := h.service.GetConversation(r.Context(), userID, otherID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, ConversationFromEntity(c, userID))
}
