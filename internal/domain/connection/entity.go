package connection

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
)

// Status of a connection row
type Status string

const (
	StatusConnected Status = "CONNECTED"
	StatusBlocked   Status = "BLOCKED"
	StatusInactive  Status = "INACTIVE"
)

// RequestStatus of a connection request
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
	RequestCanceled RequestStatus = "CANCELED"
)

// Connection is the single relationship row of an unordered user pair.
// ID is pairid.New(UserLow, UserHigh).
type Connection struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserLow   uuid.UUID       `db:"user_low" json:"user_low"`
	UserHigh  uuid.UUID       `db:"user_high" json:"user_high"`
	Tier      visibility.Tier `db:"tier" json:"tier"`
	Status    Status          `db:"status" json:"status"`
	BlockedBy uuid.NullUUID   `db:"blocked_by" json:"-"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Involves reports whether userID is one of the pair.
func (c *Connection) Involves(userID uuid.UUID) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// Other returns the member of the pair that is not userID.
func (c *Connection) Other(userID uuid.UUID) uuid.UUID {
	if c.UserLow == userID {
		return c.UserHigh
	}
	return c.UserLow
}

// IsConnected reports whether the pair is currently CONNECTED.
func (c *Connection) IsConnected() bool {
	return c != nil && c.Status == StatusConnected
}

// EffectiveTier is the tier visibility decisions use.
// Any non-CONNECTED row counts as NO_RELATION.
func (c *Connection) EffectiveTier() visibility.Tier {
	if !c.IsConnected() {
		return visibility.TierNoRelation
	}
	return c.Tier
}

// Request is a directional proposal to connect or to change tier.
// OldTier is nil for an initial connect request.
type Request struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	PairID      uuid.UUID        `db:"pair_id" json:"-"`
	RequesterID uuid.UUID        `db:"requester_id" json:"requester_id"`
	RecipientID uuid.UUID        `db:"recipient_id" json:"recipient_id"`
	NewTier     visibility.Tier  `db:"new_tier" json:"new_tier"`
	OldTier     *visibility.Tier `db:"old_tier" json:"old_tier,omitempty"`
	Status      RequestStatus    `db:"status" json:"status"`
	Message     string           `db:"message" json:"message,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	ResolvedAt  sql.NullTime     `db:"resolved_at" json:"-"`
}

// IsTierChange reports whether the request changes the tier of an existing connection.
func (r *Request) IsTierChange() bool {
	return r.OldTier != nil
}

// Involves reports whether userID is requester or recipient.
func (r *Request) Involves(userID uuid.UUID) bool {
	return r.RequesterID == userID || r.RecipientID == userID
}

// PendingDirection selects which side of pending requests to list.
type PendingDirection string

const (
	PendingIncoming PendingDirection = "incoming"
	PendingOutgoing PendingDirection = "outgoing"
)

// Peer is one CONNECTED counterpart of a user.
type Peer struct {
	UserID uuid.UUID       `db:"peer_id" json:"user_id"`
	Tier   visibility.Tier `db:"tier" json:"tier"`
}

// Listed is a connection seen from one member, as returned by ListConnections.
type Listed struct {
	ConnectionID uuid.UUID       `db:"id"`
	PeerID       uuid.UUID       `db:"peer_id"`
	Tier         visibility.Tier `db:"tier"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// Relationship is the full state between a viewer and another user.
type Relationship struct {
	Connection      *Connection
	PendingRequest  *Request
	PendingTierMove *Request
	Mutual          []uuid.UUID
}
