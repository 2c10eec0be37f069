package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/pkg/pairid"
)

// Conversation is the private conversation of a user pair. Its id is the
// canonical pair id, so there is at most one per pair.
type Conversation struct {
	ID        uuid.UUID                     `db:"id"`
	UserLow   uuid.UUID                     `db:"user_low"`
	UserHigh  uuid.UUID                     `db:"user_high"`
	Status    connection.ConversationStatus `db:"status"`
	CreatedAt time.Time                     `db:"created_at"`
	UpdatedAt time.Time                     `db:"updated_at"`
}

// New builds a conversation row for the pair (a, b).
func New(a, b uuid.UUID, status connection.ConversationStatus, now time.Time) *Conversation {
	low, high := pairid.Order(a, b)
	return &Conversation{
		ID:        pairid.New(a, b),
		UserLow:   low,
		UserHigh:  high,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Other returns the other participant
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.UserLow == userID {
		return c.UserHigh
	}
	return c.UserLow
}

// CanMessage reports whether the participants may exchange messages.
func (c *Conversation) CanMessage() bool {
	return c.Status == connection.ConversationActive
}
