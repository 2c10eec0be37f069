package connection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
)

// ConversationStatus is the state a private conversation is moved to.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationBlocked  ConversationStatus = "BLOCKED"
	ConversationInactive ConversationStatus = "INACTIVE"
)

// ConversationSideEffect materializes the private conversation of a pair.
// Failures are logged by the caller and never undo the lifecycle change.
type ConversationSideEffect interface {
	CreateOrUpdatePrivateConversation(ctx context.Context, a, b uuid.UUID, status ConversationStatus) error
}

// InviteResolver validates an invite token issued by ownerID.
// It returns the owner's user id, or ErrInvalidInvite.
type InviteResolver interface {
	ResolveByToken(ctx context.Context, ownerID uuid.UUID, token string) (uuid.UUID, error)
}

// Notifier pushes a JSON payload to every live session of a user.
type Notifier interface {
	SendToUserJSON(userID uuid.UUID, payload any) error
}

// EventType names a realtime connection event.
type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventRequestAccepted   EventType = "request_accepted"
	EventRequestRejected   EventType = "request_rejected"
	EventRequestCanceled   EventType = "request_canceled"
	EventTierChanged       EventType = "tier_changed"
	EventConnectionRemoved EventType = "connection_removed"
)

// Event is the realtime payload sent to the counterpart of a transition.
type Event struct {
	Type      EventType       `json:"type"`
	ActorID   uuid.UUID       `json:"actor_id"`
	RequestID *uuid.UUID      `json:"request_id,omitempty"`
	Tier      visibility.Tier `json:"tier,omitempty"`
	At        time.Time       `json:"at"`
}
