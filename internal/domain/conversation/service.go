package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/pkg/logger"
	"github.com/mwork/moments-api/internal/pkg/pairid"
)

// EventConversationUpdated is pushed to both participants on a status change.
const EventConversationUpdated = "conversation_updated"

// Event is the realtime payload of a conversation status change.
type Event struct {
	Type           string                        `json:"type"`
	ConversationID uuid.UUID                     `json:"conversation_id"`
	PeerID         uuid.UUID                     `json:"peer_id"`
	Status         connection.ConversationStatus `json:"status"`
	At             time.Time                     `json:"at"`
}

// Service keeps private conversations in step with the connection lifecycle.
type Service struct {
	repo     Repository
	notifier connection.Notifier
	now      func() time.Time
}

// NewService creates conversation service. notifier may be nil.
func NewService(repo Repository, notifier connection.Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrUpdatePrivateConversation implements connection.ConversationSideEffect.
func (s *Service) CreateOrUpdatePrivateConversation(ctx context.Context, a, b uuid.UUID, status connection.ConversationStatus) error {
	if a == b {
		return invalidArgument(ErrSelfConversation)
	}
	switch status {
	case connection.ConversationActive, connection.ConversationBlocked, connection.ConversationInactive:
	default:
		return invalidArgument(fmt.Errorf("%w: %q", ErrUnknownStatus, status))
	}

	c := New(a, b, status, s.now())
	changed, err := s.repo.Upsert(ctx, c)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	if !changed {
		return nil
	}

	logger.LogDebug(ctx, "Private conversation updated",
		"conversation_id", c.ID.String(), "status", string(status))
	s.notify(ctx, c, c.UserLow)
	s.notify(ctx, c, c.UserHigh)
	return nil
}

// GetConversation returns the private conversation between actor and other.
func (s *Service) GetConversation(ctx context.Context, actorID, otherID uuid.UUID) (*Conversation, error) {
	if actorID == otherID {
		return nil, invalidArgument(ErrSelfConversation)
	}
	c, err := s.repo.FindByID(ctx, pairid.New(actorID, otherID))
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if c == nil {
		return nil, notFound(ErrConversationNotFound)
	}
	return c, nil
}

func (s *Service) notify(ctx context.Context, c *Conversation, userID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	event := Event{
		Type:           EventConversationUpdated,
		ConversationID: c.ID,
		PeerID:         c.Other(userID),
		Status:         c.Status,
		At:             c.UpdatedAt,
	}
	if err := s.notifier.SendToUserJSON(userID, event); err != nil {
		logger.LogWarn(ctx, "Failed to push conversation event",
			"user_id", userID.String(), "error", err.Error())
	}
}
