package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/moment"
	"github.com/mwork/moments-api/internal/middleware"
	"github.com/mwork/moments-api/internal/pkg/errorhandler"
	"github.com/mwork/moments-api/internal/pkg/response"
)

// Handler handles profile HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates profile handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetView handles GET /profiles/{userId}?cursor=&limit=&direction=
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}
	req, ok := moment.ParsePageRequest(w, r)
	if !ok {
		return
	}

	viewerID := middleware.GetUserID(r.Context())
	view, err := h.service.GetView(r.Context(), viewerID, targetID, req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	meta := response.Meta{
		Limit:     view.Moments.Limit,
		HasMore:   view.Moments.HasMore,
		Direction: string(view.Moments.Direction),
	}
	if view.Moments.NextCursor != nil {
		meta.NextCursor = view.Moments.NextCursor.Encode()
	}
	response.WithMeta(w, ViewFromEntity(view, viewerID, h.service.MutualPreviewLimit()), meta)
}
