package moment

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/middleware"
	"github.com/mwork/moments-api/internal/pkg/cursor"
	"github.com/mwork/moments-api/internal/pkg/errorhandler"
	"github.com/mwork/moments-api/internal/pkg/response"
	"github.com/mwork/moments-api/internal/pkg/validator"
)

// Handler handles moment, story and feed HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates moment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Feed handles GET /feed?cursor=&limit=&direction=
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	req, ok := ParsePageRequest(w, r)
	if !ok {
		return
	}

	page, err := h.service.Feed(r.Context(), middleware.GetUserID(r.Context()), FeedFilter{}, req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	WritePage(w, page)
}

// UserMoments handles GET /users/{userId}/moments
func (h *Handler) UserMoments(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}
	req, ok := ParsePageRequest(w, r)
	if !ok {
		return
	}

	page, err := h.service.Feed(r.Context(), middleware.GetUserID(r.Context()), FeedFilter{TargetUserID: &targetID}, req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	WritePage(w, page)
}

// CreateMoment handles POST /moments
func (h *Handler) CreateMoment(w http.ResponseWriter, r *http.Request) {
	var req CreateMomentRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	in := CreateMomentInput{
		TaggedUserIDs: parseIDs(req.TaggedUserIDs),
		Caption:       req.Caption,
	}
	if req.Visibility != "" {
		in.Label, _ = visibility.ParseLabel(req.Visibility)
	}
	if req.StoryID != nil {
		id, _ := uuid.Parse(*req.StoryID)
		in.StoryID = &id
	}

	m, err := h.service.CreateMoment(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, MomentFromEntity(m))
}

// GetMoment handles GET /moments/{id}
func (h *Handler) GetMoment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid moment ID")
		return
	}

	m, err := h.service.GetMoment(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, MomentFromEntity(m))
}

// DeleteMoment handles DELETE /moments/{id}
func (h *Handler) DeleteMoment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid moment ID")
		return
	}

	if err := h.service.DeleteMoment(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.NoContent(w)
}

// UnlinkMoment handles POST /moments/{id}/unlink
func (h *Handler) UnlinkMoment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid moment ID")
		return
	}

	m, err := h.service.UnlinkMoment(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, MomentFromEntity(m))
}

// CreateStory handles POST /stories
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req CreateStoryRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}
	label, _ := visibility.ParseLabel(req.Visibility)

	story, err := h.service.CreateStory(r.Context(), middleware.GetUserID(r.Context()), CreateStoryInput{
		Label:     label,
		MemberIDs: parseIDs(req.MemberIDs),
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, StoryFromEntity(story))
}

// DeleteStory handles DELETE /stories/{id}
func (h *Handler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid story ID")
		return
	}

	if err := h.service.DeleteStory(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.NoContent(w)
}

// StoryMoments handles GET /stories/{id}/moments
func (h *Handler) StoryMoments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid story ID")
		return
	}
	req, ok := ParsePageRequest(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListStoryMoments(r.Context(), middleware.GetUserID(r.Context()), id, req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	WritePage(w, page)
}

// ParsePageRequest reads cursor, limit and direction from the query string.
// It writes a 400 and returns false on malformed input.
func ParsePageRequest(w http.ResponseWriter, r *http.Request) (PageRequest, bool) {
	q := r.URL.Query()

	cur, err := cursor.Decode(q.Get("cursor"))
	if err != nil {
		response.BadRequest(w, "Invalid cursor")
		return PageRequest{}, false
	}
	dir, err := cursor.ParseDirection(q.Get("direction"))
	if err != nil {
		response.BadRequest(w, "Invalid direction. Must be: older or newer")
		return PageRequest{}, false
	}

	req := PageRequest{Cursor: cur, Direction: dir}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			response.BadRequest(w, "Invalid limit")
			return PageRequest{}, false
		}
		req.Limit = limit
	}
	return req, true
}

// WritePage sends a moment page with cursor metadata.
func WritePage(w http.ResponseWriter, page *Page) {
	meta := response.Meta{
		Limit:     page.Limit,
		HasMore:   page.HasMore,
		Direction: string(page.Direction),
	}
	if page.NextCursor != nil {
		meta.NextCursor = page.NextCursor.Encode()
	}
	response.WithMeta(w, MomentsFromEntities(page.Items), meta)
}
