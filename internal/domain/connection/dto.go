package connection

import (
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
)

// SendRequestRequest for POST /connections/requests
type SendRequestRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	InviteToken string `json:"invite_token,omitempty" validate:"omitempty,max=128"`
	Message     string `json:"message,omitempty" validate:"max=300"`
}

// ChangeTierRequest for PUT /connections/{userId}/tier
type ChangeTierRequest struct {
	Tier string `json:"tier" validate:"required,tier"`
}

// RequestResponse represents a connection request in API response
type RequestResponse struct {
	ID          uuid.UUID        `json:"id"`
	RequesterID uuid.UUID        `json:"requester_id"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	NewTier     visibility.Tier  `json:"new_tier"`
	OldTier     *visibility.Tier `json:"old_tier,omitempty"`
	Status      RequestStatus    `json:"status"`
	Message     string           `json:"message,omitempty"`
	CreatedAt   string           `json:"created_at"`
	ResolvedAt  *string          `json:"resolved_at,omitempty"`
}

// RequestFromEntity converts entity to response
func RequestFromEntity(r *Request) *RequestResponse {
	if r == nil {
		return nil
	}
	resp := &RequestResponse{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		RecipientID: r.RecipientID,
		NewTier:     r.NewTier,
		OldTier:     r.OldTier,
		Status:      r.Status,
		Message:     r.Message,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.ResolvedAt.Valid {
		s := r.ResolvedAt.Time.Format(time.RFC3339)
		resp.ResolvedAt = &s
	}
	return resp
}

// ConnectionResponse is a connection seen from one side of the pair
type ConnectionResponse struct {
	ID        uuid.UUID       `json:"id"`
	PeerID    uuid.UUID       `json:"peer_id"`
	Tier      visibility.Tier `json:"tier"`
	Status    Status          `json:"status"`
	BlockedBy *uuid.UUID      `json:"blocked_by,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// ConnectionFromEntity converts entity to response for viewerID
func ConnectionFromEntity(c *Connection, viewerID uuid.UUID) *ConnectionResponse {
	if c == nil {
		return nil
	}
	resp := &ConnectionResponse{
		ID:        c.ID,
		PeerID:    c.Other(viewerID),
		Tier:      c.Tier,
		Status:    c.Status,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
	// Only the blocker learns who blocked.
	if c.BlockedBy.Valid && c.BlockedBy.UUID == viewerID {
		id := c.BlockedBy.UUID
		resp.BlockedBy = &id
	}
	return resp
}

// AcceptResponse for POST /connections/requests/{id}/accept
type AcceptResponse struct {
	Connection *ConnectionResponse `json:"connection"`
	Mutual     []uuid.UUID         `json:"mutual"`
}

// ChangeTierResponse for PUT /connections/{userId}/tier
type ChangeTierResponse struct {
	Applied    bool                `json:"applied"`
	Connection *ConnectionResponse `json:"connection,omitempty"`
	Request    *RequestResponse    `json:"request,omitempty"`
}

// ConnectionListItem represents one row of GET /connections
type ConnectionListItem struct {
	ID            uuid.UUID       `json:"id"`
	PeerID        uuid.UUID       `json:"peer_id"`
	Tier          visibility.Tier `json:"tier"`
	MutualCount   int             `json:"mutual_count"`
	MutualPreview []uuid.UUID     `json:"mutual_preview"`
	ConnectedAt   string          `json:"connected_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// ConnectionListItemFromEntity converts a list entry to response
func ConnectionListItemFromEntity(it ConnectionItem) *ConnectionListItem {
	preview := it.MutualPreview
	if preview == nil {
		preview = []uuid.UUID{}
	}
	return &ConnectionListItem{
		ID:            it.ConnectionID,
		PeerID:        it.PeerID,
		Tier:          it.Tier,
		MutualCount:   it.MutualCount,
		MutualPreview: preview,
		ConnectedAt:   it.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     it.UpdatedAt.Format(time.RFC3339),
	}
}

// RelationshipResponse for GET /connections/{userId}
type RelationshipResponse struct {
	UserID          uuid.UUID           `json:"user_id"`
	Tier            visibility.Tier     `json:"tier"`
	Connection      *ConnectionResponse `json:"connection,omitempty"`
	PendingRequest  *RequestResponse    `json:"pending_request,omitempty"`
	PendingTierMove *RequestResponse    `json:"pending_tier_change,omitempty"`
	MutualCount     int                 `json:"mutual_count"`
	MutualPreview   []uuid.UUID         `json:"mutual_preview"`
}

// RelationshipFromEntity converts relationship to response
func RelationshipFromEntity(rel *Relationship, viewerID, otherID uuid.UUID, previewLimit int) *RelationshipResponse {
	preview := Preview(rel.Mutual, previewLimit)
	if preview == nil {
		preview = []uuid.UUID{}
	}
	return &RelationshipResponse{
		UserID:          otherID,
		Tier:            rel.Connection.EffectiveTier(),
		Connection:      ConnectionFromEntity(rel.Connection, viewerID),
		PendingRequest:  RequestFromEntity(rel.PendingRequest),
		PendingTierMove: RequestFromEntity(rel.PendingTierMove),
		MutualCount:     len(rel.Mutual),
		MutualPreview:   preview,
	}
}

// MutualResponse for GET /connections/{userId}/mutual
type MutualResponse struct {
	UserID uuid.UUID   `json:"user_id"`
	Count  int         `json:"count"`
	Users  []uuid.UUID `json:"users"`
}
