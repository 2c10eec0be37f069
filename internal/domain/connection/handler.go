package connection

import (
	"context"
	"errors"
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

// InviteIssuer creates invite tokens for the current user.
type InviteIssuer interface {
	CreateInvite(ctx context.Context, ownerID uuid.UUID) (*Invite, error)
}

// Handler handles connection HTTP requests
type Handler struct {
	service *Service
	invites InviteIssuer
}

// NewHandler creates connection handler
func NewHandler(service *Service, invites InviteIssuer) *Handler {
	return &Handler{
		service: service,
		invites: invites,
	}
}

// SendRequest handles POST /connections/requests
func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var req SendRequestRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	recipientID, _ := uuid.Parse(req.RecipientID)
	userID := middleware.GetUserID(r.Context())

	created, err := h.service.SendConnectRequest(r.Context(), userID, RecipientRef{
		UserID:      recipientID,
		InviteToken: req.InviteToken,
	}, req.Message)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, RequestFromEntity(created))
}

// ListPending handles GET /connections/requests?direction=incoming|outgoing
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	dir := PendingDirection(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = PendingIncoming
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	reqs, err := h.service.ListPendingRequests(r.Context(), userID, dir, limit)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	items := make([]*RequestResponse, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, RequestFromEntity(req))
	}
	response.OK(w, items)
}

// Accept handles POST /connections/requests/{id}/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseIDParam(w, r, "id", "Invalid request ID")
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	conn, mutual, err := h.service.AcceptConnectRequest(r.Context(), userID, requestID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	if mutual == nil {
		mutual = []uuid.UUID{}
	}
	response.OK(w, AcceptResponse{
		Connection: ConnectionFromEntity(conn, userID),
		Mutual:     mutual,
	})
}

// AcceptTierChange handles POST /connections/requests/{id}/accept-tier
func (h *Handler) AcceptTierChange(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseIDParam(w, r, "id", "Invalid request ID")
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	conn, err := h.service.AcceptChangeConnectionTypeRequest(r.Context(), userID, requestID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, ConnectionFromEntity(conn, userID))
}

// Reject handles POST /connections/requests/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseIDParam(w, r, "id", "Invalid request ID")
	if !ok {
		return
	}

	req, err := h.service.RejectRequest(r.Context(), middleware.GetUserID(r.Context()), requestID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, RequestFromEntity(req))
}

// Cancel handles DELETE /connections/requests/{id}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseIDParam(w, r, "id", "Invalid request ID")
	if !ok {
		return
	}

	req, err := h.service.CancelRequest(r.Context(), middleware.GetUserID(r.Context()), requestID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, RequestFromEntity(req))
}

// List handles GET /connections?tier=&cursor=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter

	q := r.URL.Query()
	if raw := q.Get("tier"); raw != "" {
		tier, err := visibility.ParseTier(raw)
		if err != nil || !tier.IsConnected() {
			response.BadRequest(w, "Invalid tier")
			return
		}
		filter.Tier = &tier
	}

	cur, err := cursor.Decode(q.Get("cursor"))
	if err != nil {
		response.BadRequest(w, "Invalid cursor")
		return
	}
	filter.Cursor = cur

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	filter.Limit = limit

	page, err := h.service.ListConnections(r.Context(), middleware.GetUserID(r.Context()), filter)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	items := make([]*ConnectionListItem, 0, len(page.Items))
	for _, it := range page.Items {
		items = append(items, ConnectionListItemFromEntity(it))
	}

	meta := response.Meta{Limit: page.Limit, HasMore: page.HasMore}
	if page.NextCursor != nil {
		meta.NextCursor = page.NextCursor.Encode()
	}
	response.WithMeta(w, items, meta)
}

// CreateInvite handles POST /connections/invites
func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	invite, err := h.invites.CreateInvite(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrInvitesUnavailable) {
			response.Error(w, http.StatusServiceUnavailable, "INVITES_UNAVAILABLE", "Invites are temporarily unavailable")
			return
		}
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, invite)
}

// GetRelationship handles GET /connections/{userId}
func (h *Handler) GetRelationship(w http.ResponseWriter, r *http.Request) {
	otherID, ok := parseIDParam(w, r, "userId", "Invalid user ID")
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	rel, err := h.service.GetRelationship(r.Context(), userID, otherID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, RelationshipFromEntity(rel, userID, otherID, h.service.MutualPreviewLimit()))
}

// ChangeTier handles PUT /connections/{userId}/tier
// Downgrades apply at once; upgrades create a pending request.
func (h *Handler) ChangeTier(w http.ResponseWriter, r *http.Request) {
	otherID, ok := parseIDParam(w, r, "userId", "Invalid user ID")
	if !ok {
		return
	}

	var req ChangeTierRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}
	tier, _ := visibility.ParseTier(req.Tier)

	userID := middleware.GetUserID(r.Context())
	res, err := h.service.ChangeConnectionType(r.Context(), userID, otherID, tier)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	out := ChangeTierResponse{
		Applied:    res.Applied,
		Connection: ConnectionFromEntity(res.Connection, userID),
		Request:    RequestFromEntity(res.Request),
	}
	if res.Applied {
		response.OK(w, out)
		return
	}
	response.JSON(w, http.StatusAccepted, out)
}

// Remove handles DELETE /connections/{userId}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	otherID, ok := parseIDParam(w, r, "userId", "Invalid user ID")
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	conn, err := h.service.RemoveConnection(r.Context(), userID, otherID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, ConnectionFromEntity(conn, userID))
}

// Block handles POST /connections/{userId}/block
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	otherID, ok := parseIDParam(w, r, "userId", "Invalid user ID")
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	conn, err := h.service.BlockUser(r.Context(), userID, otherID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, ConnectionFromEntity(conn, userID))
}

// Unblock handles DELETE /connections/{userId}/block
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	otherID, ok := parseIDParam(w, r, "userId", "Invalid user ID")
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	conn, err := h.service.UnblockUser(r.Context(), userID, otherID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.OK(w, ConnectionFromEntity(conn, userID))
}

// Mutual handles GET /connections/{userId}/mutual
func (h *Handler) Mutual(w http.ResponseWriter, r *http.Request) {
	otherID, ok := parseIDParam(w, r, "userId", "Invalid user ID")
	if !ok {
		return
	}

	mutual, err := h.service.Mutual(r.Context(), middleware.GetUserID(r.Context()), []uuid.UUID{otherID})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	users := mutual[otherID]
	if users == nil {
		users = []uuid.UUID{}
	}
	response.OK(w, MutualResponse{UserID: otherID, Count: len(users), Users: users})
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.BadRequest(w, message)
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit reads ?limit=. Missing means zero, which the service replaces with its default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		response.BadRequest(w, "Invalid limit")
		return 0, false
	}
	return limit, true
}
