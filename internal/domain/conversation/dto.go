package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/connection"
)

// ConversationResponse represents a private conversation in API response
type ConversationResponse struct {
	ID         uuid.UUID                     `json:"id"`
	PeerID     uuid.UUID                     `json:"peer_id"`
	Status     connection.ConversationStatus `json:"status"`
	CanMessage bool                          `json:"can_message"`
	CreatedAt  string                        `json:"created_at"`
	UpdatedAt  string                        `json:"updated_at"`
}

// ConversationFromEntity converts entity to response as seen by viewerID
func ConversationFromEntity(c *Conversation, viewerID uuid.UUID) *ConversationResponse {
	return &ConversationResponse{
		ID:         c.ID,
		PeerID:     c.Other(viewerID),
		Status:     c.Status,
		CanMessage: c.CanMessage(),
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  c.UpdatedAt.Format(time.RFC3339),
	}
}
