package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/logger"
	"github.com/mwork/moments-api/internal/pkg/pairid"
)

const maxMessageLength = 300

// RecipientRef identifies the target of a connect request.
// InviteToken is required when sender and recipient share no mutual connection.
type RecipientRef struct {
	UserID      uuid.UUID
	InviteToken string
}

// ChangeResult is the outcome of ChangeConnectionType.
// Upgrades return a pending Request; downgrades are Applied at once.
type ChangeResult struct {
	Connection *Connection
	Request    *Request
	Applied    bool
}

// Options tune list sizes. MutualPreviewLimit is taken as given: 0 shows no
// preview, a negative limit shows every mutual id.
type Options struct {
	ListDefaultLimit   int
	ListMaxLimit       int
	MutualPreviewLimit int
}

func (o Options) withDefaults() Options {
	if o.ListDefaultLimit <= 0 {
		o.ListDefaultLimit = 20
	}
	if o.ListMaxLimit < o.ListDefaultLimit {
		o.ListMaxLimit = 100
	}
	return o
}

// Service runs the connection lifecycle. It is the only writer of
// connection and connection request rows.
type Service struct {
	tx            Transactor
	policy        *visibility.Policy
	limits        *LimitPolicy
	invites       InviteResolver
	conversations ConversationSideEffect
	notifier      Notifier
	opts          Options
	now           func() time.Time
}

// NewService creates connection service. invites, conversations and
// notifier may be nil.
func NewService(tx Transactor, policy *visibility.Policy, invites InviteResolver, conversations ConversationSideEffect, notifier Notifier, opts Options) *Service {
	return &Service{
		tx:            tx,
		policy:        policy,
		limits:        NewLimitPolicy(policy),
		invites:       invites,
		conversations: conversations,
		notifier:      notifier,
		opts:          opts.withDefaults(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SendConnectRequest creates a PENDING FRIEND request from sender to recipient.
func (s *Service) SendConnectRequest(ctx context.Context, senderID uuid.UUID, to RecipientRef, message string) (*Request, error) {
	if senderID == to.UserID {
		return nil, invalidArgument(ErrSelfTarget)
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return nil, invalidArgument(ErrMessageTooLong)
	}

	pairID := pairid.New(senderID, to.UserID)
	var created *Request

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		if err := st.Connections.LockPair(ctx, pairID); err != nil {
			return fmt.Errorf("lock pair: %w", err)
		}

		conn, err := st.Connections.FindByIDForUpdate(ctx, pairID)
		if err != nil {
			return fmt.Errorf("find connection: %w", err)
		}
		if conn != nil {
			switch conn.Status {
			case StatusBlocked:
				return accessDenied(ErrInvalidConnectionRequest)
			case StatusConnected:
				return alreadyExists(ErrAlreadyConnected)
			}
		}

		pending, err := st.Requests.FindPendingBetween(ctx, pairID, false)
		if err != nil {
			return fmt.Errorf("find pending request: %w", err)
		}
		if pending != nil {
			return alreadyExists(ErrRequestAlreadyPending)
		}

		if err := s.establishTrust(ctx, st.Connections, senderID, to); err != nil {
			return err
		}

		if err := s.limits.Check(ctx, st.Connections, senderID, visibility.TierFriend, SideSelf); err != nil {
			return err
		}

		created = &Request{
			ID:          uuid.New(),
			PairID:      pairID,
			RequesterID: senderID,
			RecipientID: to.UserID,
			NewTier:     visibility.TierFriend,
			Status:      RequestPending,
			Message:     message,
			CreatedAt:   s.now(),
		}
		if err := st.Requests.Save(ctx, created); err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, to.UserID, Event{Type: EventRequestReceived, ActorID: senderID, RequestID: &created.ID, Tier: created.NewTier, At: created.CreatedAt})
	return created, nil
}

// establishTrust lets a request through when the pair already shares a
// mutual connection, and otherwise demands a valid invite from the recipient.
func (s *Service) establishTrust(ctx context.Context, store ConnectionStore, senderID uuid.UUID, to RecipientRef) error {
	mutual, err := resolveMutual(ctx, store, senderID, []uuid.UUID{to.UserID})
	if err != nil {
		return err
	}
	if len(mutual[to.UserID]) > 0 {
		return nil
	}

	if to.InviteToken == "" || s.invites == nil {
		return accessDenied(ErrInviteRequired)
	}
	owner, err := s.invites.ResolveByToken(ctx, to.UserID, to.InviteToken)
	if err != nil {
		if errors.Is(err, ErrInvalidInvite) {
			return accessDenied(ErrInvalidInvite)
		}
		return fmt.Errorf("resolve invite: %w", err)
	}
	if owner != to.UserID {
		return accessDenied(ErrInvalidInvite)
	}
	return nil
}

// AcceptConnectRequest connects the pair at FRIEND and returns the connection
// with the mutual connections of actor and requester.
func (s *Service) AcceptConnectRequest(ctx context.Context, actorID, requestID uuid.UUID) (*Connection, []uuid.UUID, error) {
	var (
		conn   *Connection
		req    *Request
		mutual []uuid.UUID
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		req, err = s.lockRequest(ctx, st, requestID, actorID, ErrNotRecipient, func(r *Request) bool { return r.RecipientID == actorID })
		if err != nil {
			return err
		}
		if req.IsTierChange() || req.NewTier != visibility.TierFriend {
			return invalidState(ErrNotInitialRequest)
		}

		conn, err = st.Connections.FindByIDForUpdate(ctx, req.PairID)
		if err != nil {
			return fmt.Errorf("find connection: %w", err)
		}
		if conn.IsConnected() {
			return alreadyExists(ErrAlreadyConnected)
		}

		if err := s.limits.CheckBoth(ctx, st.Connections, actorID, req.RequesterID, visibility.TierFriend); err != nil {
			return err
		}

		now := s.now()
		conn = s.upsertState(conn, req.RequesterID, req.RecipientID, now)
		conn.Tier = visibility.TierFriend
		conn.Status = StatusConnected
		conn.BlockedBy = uuid.NullUUID{}
		if err := st.Connections.Save(ctx, conn); err != nil {
			return fmt.Errorf("save connection: %w", err)
		}

		if err := s.resolve(ctx, st, req, RequestAccepted, now); err != nil {
			return err
		}

		m, err := resolveMutual(ctx, st.Connections, actorID, []uuid.UUID{req.RequesterID})
		if err != nil {
			return err
		}
		mutual = m[req.RequesterID]
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.LogInfo(ctx, "Connection established",
		"connection_id", conn.ID.String(), "requester_id", req.RequesterID.String(), "recipient_id", actorID.String())
	s.syncConversation(ctx, actorID, req.RequesterID, ConversationActive)
	s.notify(ctx, req.RequesterID, Event{Type: EventRequestAccepted, ActorID: actorID, RequestID: &req.ID, Tier: conn.Tier, At: conn.UpdatedAt})
	return conn, mutual, nil
}

// ChangeConnectionType moves a CONNECTED pair to newTier. Upgrades create a
// PENDING request for the other party; downgrades apply immediately.
func (s *Service) ChangeConnectionType(ctx context.Context, requesterID, recipientID uuid.UUID, newTier visibility.Tier) (*ChangeResult, error) {
	if requesterID == recipientID {
		return nil, invalidArgument(ErrSelfTarget)
	}
	if !newTier.IsConnected() {
		return nil, invalidArgument(ErrNotConnectedTier)
	}

	pairID := pairid.New(requesterID, recipientID)
	result := &ChangeResult{}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		if err := st.Connections.LockPair(ctx, pairID); err != nil {
			return fmt.Errorf("lock pair: %w", err)
		}
		conn, err := st.Connections.FindByIDForUpdate(ctx, pairID)
		if err != nil {
			return fmt.Errorf("find connection: %w", err)
		}
		if conn == nil {
			return notFound(ErrConnectionNotFound)
		}
		if !conn.IsConnected() {
			return invalidState(ErrNotConnected)
		}
		if conn.Tier == newTier {
			return invalidArgument(ErrSameTier)
		}
		result.Connection = conn

		now := s.now()
		if s.policy.Compare(newTier, conn.Tier) > 0 {
			if err := s.limits.Check(ctx, st.Connections, requesterID, newTier, SideSelf); err != nil {
				return err
			}
			pending, err := st.Requests.FindPendingBetween(ctx, pairID, true)
			if err != nil {
				return fmt.Errorf("find pending tier change: %w", err)
			}
			if pending != nil {
				return alreadyExists(ErrTierChangeAlreadyPending)
			}

			oldTier := conn.Tier
			result.Request = &Request{
				ID:          uuid.New(),
				PairID:      pairID,
				RequesterID: requesterID,
				RecipientID: recipientID,
				NewTier:     newTier,
				OldTier:     &oldTier,
				Status:      RequestPending,
				CreatedAt:   now,
			}
			if err := st.Requests.Save(ctx, result.Request); err != nil {
				return fmt.Errorf("save request: %w", err)
			}
			return nil
		}

		if err := s.limits.CheckTransition(ctx, st.Connections, requesterID, recipientID, conn.Tier, newTier); err != nil {
			return err
		}
		conn.Tier = newTier
		conn.UpdatedAt = now
		if err := st.Connections.Save(ctx, conn); err != nil {
			return fmt.Errorf("save connection: %w", err)
		}
		result.Applied = true

		pending, err := st.Requests.FindPendingBetween(ctx, pairID, true)
		if err != nil {
			return fmt.Errorf("find pending tier change: %w", err)
		}
		if pending != nil {
			return s.resolve(ctx, st, pending, RequestCanceled, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		s.notify(ctx, recipientID, Event{Type: EventTierChanged, ActorID: requesterID, Tier: newTier, At: result.Connection.UpdatedAt})
	} else {
		s.notify(ctx, recipientID, Event{Type: EventRequestReceived, ActorID: requesterID, RequestID: &result.Request.ID, Tier: newTier, At: result.Request.CreatedAt})
	}
	return result, nil
}

// AcceptChangeConnectionTypeRequest applies a pending tier change.
func (s *Service) AcceptChangeConnectionTypeRequest(ctx context.Context, actorID, requestID uuid.UUID) (*Connection, error) {
	var (
		conn *Connection
		req  *Request
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		req, err = s.lockRequest(ctx, st, requestID, actorID, ErrNotRecipient, func(r *Request) bool { return r.RecipientID == actorID })
		if err != nil {
			return err
		}
		if !req.IsTierChange() {
			return invalidState(ErrNotTierChangeRequest)
		}

		conn, err = st.Connections.FindByIDForUpdate(ctx, req.PairID)
		if err != nil {
			return fmt.Errorf("find connection: %w", err)
		}
		if !conn.IsConnected() || conn.Tier != *req.OldTier {
			return invalidState(ErrStaleTierChange)
		}

		if err := s.limits.CheckBoth(ctx, st.Connections, actorID, req.RequesterID, req.NewTier); err != nil {
			return err
		}

		now := s.now()
		conn.Tier = req.NewTier
		conn.UpdatedAt = now
		if err := st.Connections.Save(ctx, conn); err != nil {
			return fmt.Errorf("save connection: %w", err)
		}
		return s.resolve(ctx, st, req, RequestAccepted, now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, req.RequesterID, Event{Type: EventTierChanged, ActorID: actorID, RequestID: &req.ID, Tier: conn.Tier, At: conn.UpdatedAt})
	return conn, nil
}

// CancelRequest withdraws a pending request. Requester only.
func (s *Service) CancelRequest(ctx context.Context, actorID, requestID uuid.UUID) (*Request, error) {
	req, err := s.closeRequest(ctx, actorID, requestID, RequestCanceled, ErrNotRequester, func(r *Request) bool { return r.RequesterID == actorID })
	if err != nil {
		return nil, err
	}
	s.notify(ctx, req.RecipientID, Event{Type: EventRequestCanceled, ActorID: actorID, RequestID: &req.ID, Tier: req.NewTier, At: req.ResolvedAt.Time})
	return req, nil
}

// RejectRequest declines a pending request. Recipient only.
func (s *Service) RejectRequest(ctx context.Context, actorID, requestID uuid.UUID) (*Request, error) {
	req, err := s.closeRequest(ctx, actorID, requestID, RequestRejected, ErrNotRecipient, func(r *Request) bool { return r.RecipientID == actorID })
	if err != nil {
		return nil, err
	}
	s.notify(ctx, req.RequesterID, Event{Type: EventRequestRejected, ActorID: actorID, RequestID: &req.ID, Tier: req.NewTier, At: req.ResolvedAt.Time})
	return req, nil
}

func (s *Service) closeRequest(ctx context.Context, actorID, requestID uuid.UUID, status RequestStatus, denied error, allowed func(*Request) bool) (*Request, error) {
	var req *Request
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		req, err = s.lockRequest(ctx, st, requestID, actorID, denied, allowed)
		if err != nil {
			return err
		}
		return s.resolve(ctx, st, req, status, s.now())
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// BlockUser cancels every pending request of the pair and marks it BLOCKED.
func (s *Service) BlockUser(ctx context.Context, actorID, targetID uuid.UUID) (*Connection, error) {
	if actorID == targetID {
		return nil, invalidArgument(ErrSelfTarget)
	}

	pairID := pairid.New(actorID, targetID)
	var conn *Connection

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		if err := st.Connections.LockPair(ctx, pairID); err != nil {
			return fmt.Errorf("lock pair: %w", err)
		}
		var err error
		conn, err = st.Connections.FindByIDForUpdate(ctx, pairID)
		if err != nil {
			return fmt.Errorf("find connection: %w", err)
		}
		if conn != nil && conn.Status == StatusBlocked {
			return invalidState(ErrAlreadyBlocked)
		}

		now := s.now()
		if _, err := st.Requests.CancelPendingBetween(ctx, pairID, now); err != nil {
			return fmt.Errorf("cancel pending requests: %w", err)
		}

		conn = s.upsertState(conn, actorID, targetID, now)
		conn.Tier = visibility.TierNoRelation
		conn.Status = StatusBlocked
		conn.BlockedBy = uuid.NullUUID{UUID: actorID, Valid: true}
		if err := st.Connections.Save(ctx, conn); err != nil {
			return fmt.Errorf("save connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogInfo(ctx, "User blocked", "actor_id", actorID.String(), "target_id", targetID.String())
	s.syncConversation(ctx, actorID, targetID, ConversationBlocked)
	return conn, nil
}

// UnblockUser lifts a block. Only the user who blocked may unblock; the pair
// ends up INACTIVE and has to reconnect through a new request.
func (s *Service) UnblockUser(ctx context.Context, actorID, targetID uuid.UUID) (*Connection, error) {
	if actorID == targetID {
		return nil, invalidArgument(ErrSelfTarget)
	}

	pairID := pairid.New(actorID, targetID)
	var conn *Connection

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		if err := st.Connections.LockPair(ctx, pairID); err != nil {
			return fmt.Errorf("lock pair: %w", err)
		}
		var err error
		conn, err = st.Connections.FindByIDForUpdate(ctx, pairID)
		if err != nil {
			return fmt.Errorf("find connection: %w", err)
		}
		if conn == nil || conn.Status != StatusBlocked {
			return invalidState(ErrNotBlocked)
		}
		if !conn.BlockedBy.Valid || conn.BlockedBy.UUID != actorID {
			return accessDenied(ErrNotBlocker)
		}

		conn.Status = StatusInactive
		conn.Tier = visibility.TierNoRelation
		conn.BlockedBy = uuid.NullUUID{}
		conn.UpdatedAt = s.now()
		if err := st.Connections.Save(ctx, conn); err != nil {
			return fmt.Errorf("save connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncConversation(ctx, actorID, targetID, ConversationInactive)
	return conn, nil
}

// RemoveConnection ends a connection and cancels the pair's pending requests.
func (s *Service) RemoveConnection(ctx context.Context, actorID, targetID uuid.UUID) (*Connection, error) {
	if actorID == targetID {
		return nil, invalidArgument(ErrSelfTarget)
	}

	pairID := pairid.New(actorID, targetID)
	var conn *Connection

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		if err := st.Connections.LockPair(ctx, pairID); err != nil {
			return fmt.Errorf("lock pair: %w", err)
		}
		var err error
		conn, err = st.Connections.FindByIDForUpdate(ctx, pairID)
		if err != nil {
			return fmt.Errorf("find connection: %w", err)
		}
		if conn == nil {
			return notFound(ErrConnectionNotFound)
		}
		if conn.Status == StatusInactive || conn.Status == StatusBlocked {
			return invalidState(ErrNotConnected)
		}

		now := s.now()
		if _, err := st.Requests.CancelPendingBetween(ctx, pairID, now); err != nil {
			return fmt.Errorf("cancel pending requests: %w", err)
		}

		conn.Tier = visibility.TierNoRelation
		conn.Status = StatusInactive
		conn.UpdatedAt = now
		if err := st.Connections.Save(ctx, conn); err != nil {
			return fmt.Errorf("save connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncConversation(ctx, actorID, targetID, ConversationInactive)
	s.notify(ctx, targetID, Event{Type: EventConnectionRemoved, ActorID: actorID, At: conn.UpdatedAt})
	return conn, nil
}

// lockRequest loads a request, serializes on its pair, re-reads it under a row
// lock and checks that it is PENDING and that the actor may resolve it.
func (s *Service) lockRequest(ctx context.Context, st Stores, requestID, actorID uuid.UUID, denied error, allowed func(*Request) bool) (*Request, error) {
	req, err := st.Requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	if req == nil {
		return nil, notFound(ErrRequestNotFound)
	}
	if !allowed(req) {
		return nil, accessDenied(denied)
	}

	if err := st.Connections.LockPair(ctx, req.PairID); err != nil {
		return nil, fmt.Errorf("lock pair: %w", err)
	}
	req, err = st.Requests.FindByIDForUpdate(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("lock request: %w", err)
	}
	if req == nil {
		return nil, notFound(ErrRequestNotFound)
	}
	if req.Status != RequestPending {
		return nil, invalidState(ErrRequestNotPending)
	}
	return req, nil
}

func (s *Service) resolve(ctx context.Context, st Stores, req *Request, status RequestStatus, at time.Time) error {
	req.Status = status
	req.ResolvedAt = sql.NullTime{Time: at, Valid: true}
	if err := st.Requests.Save(ctx, req); err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	return nil
}

// upsertState returns conn stamped with now, or a new row for the pair.
func (s *Service) upsertState(conn *Connection, a, b uuid.UUID, now time.Time) *Connection {
	if conn == nil {
		low, high := pairid.Order(a, b)
		conn = &Connection{
			ID:        pairid.New(a, b),
			UserLow:   low,
			UserHigh:  high,
			CreatedAt: now,
		}
	}
	conn.UpdatedAt = now
	return conn
}

func (s *Service) syncConversation(ctx context.Context, a, b uuid.UUID, status ConversationStatus) {
	if s.conversations == nil {
		return
	}
	if err := s.conversations.CreateOrUpdatePrivateConversation(ctx, a, b, status); err != nil {
		logger.LogError(ctx, err, "Failed to sync private conversation",
			"user_a", a.String(), "user_b", b.String(), "status", string(status))
	}
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, event Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendToUserJSON(userID, event); err != nil {
		logger.LogWarn(ctx, "Failed to push connection event",
			"user_id", userID.String(), "event", string(event.Type), "error", err.Error())
	}
}
