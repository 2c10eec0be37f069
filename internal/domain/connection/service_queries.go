package connection

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/cursor"
	"github.com/mwork/moments-api/internal/pkg/pairid"
)

// ConnectionItem is one entry of a connection list page.
type ConnectionItem struct {
	Listed
	MutualCount   int
	MutualPreview []uuid.UUID
}

// ConnectionPage is a keyset page of connections, newest change first.
type ConnectionPage struct {
	Items      []ConnectionItem
	Limit      int
	NextCursor *cursor.Cursor
	HasMore    bool
}

// GetRelationship returns everything the viewer may know about the pair.
func (s *Service) GetRelationship(ctx context.Context, viewerID, otherID uuid.UUID) (*Relationship, error) {
	if viewerID == otherID {
		return nil, invalidArgument(ErrSelfTarget)
	}

	st := s.tx.Stores()
	pairID := pairid.New(viewerID, otherID)

	conn, err := st.Connections.FindByID(ctx, pairID)
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	initial, err := st.Requests.FindPendingBetween(ctx, pairID, false)
	if err != nil {
		return nil, fmt.Errorf("find pending request: %w", err)
	}
	change, err := st.Requests.FindPendingBetween(ctx, pairID, true)
	if err != nil {
		return nil, fmt.Errorf("find pending tier change: %w", err)
	}
	mutual, err := resolveMutual(ctx, st.Connections, viewerID, []uuid.UUID{otherID})
	if err != nil {
		return nil, err
	}

	return &Relationship{
		Connection:      conn,
		PendingRequest:  initial,
		PendingTierMove: change,
		Mutual:          mutual[otherID],
	}, nil
}

// ListConnections pages through userID's CONNECTED connections with mutual previews.
func (s *Service) ListConnections(ctx context.Context, userID uuid.UUID, filter ListFilter) (*ConnectionPage, error) {
	if filter.Tier != nil && !filter.Tier.IsConnected() {
		return nil, invalidArgument(ErrNotConnectedTier)
	}
	limit := cursor.ClampLimit(filter.Limit, s.opts.ListDefaultLimit, s.opts.ListMaxLimit)
	filter.Limit = limit + 1

	st := s.tx.Stores()
	rows, err := st.Connections.ListConnections(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	page := &ConnectionPage{Items: make([]ConnectionItem, 0, limit), Limit: limit}
	if len(rows) > limit {
		rows = rows[:limit]
		page.HasMore = true
	}
	if len(rows) == 0 {
		return page, nil
	}

	peerIDs := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		peerIDs[i] = row.PeerID
	}
	mutual, err := resolveMutual(ctx, st.Connections, userID, peerIDs)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		m := mutual[row.PeerID]
		page.Items = append(page.Items, ConnectionItem{
			Listed:        row,
			MutualCount:   len(m),
			MutualPreview: Preview(m, s.opts.MutualPreviewLimit),
		})
	}
	if page.HasMore {
		last := rows[len(rows)-1]
		page.NextCursor = cursor.Of(last.UpdatedAt, last.ConnectionID)
	}
	return page, nil
}

// ListPendingRequests returns the user's pending requests, newest first.
func (s *Service) ListPendingRequests(ctx context.Context, userID uuid.UUID, dir PendingDirection, limit int) ([]*Request, error) {
	if dir != PendingIncoming && dir != PendingOutgoing {
		return nil, invalidArgument(fmt.Errorf("unknown direction %q", dir))
	}
	limit = cursor.ClampLimit(limit, s.opts.ListDefaultLimit, s.opts.ListMaxLimit)
	reqs, err := s.tx.Stores().Requests.ListPending(ctx, userID, dir, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return reqs, nil
}

// Mutual returns, for every target, the users CONNECTED to both viewer and target.
func (s *Service) Mutual(ctx context.Context, viewerID uuid.UUID, targetIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return resolveMutual(ctx, s.tx.Stores().Connections, viewerID, targetIDs)
}

// MutualPreviewLimit is the number of mutual users shown next to a profile.
func (s *Service) MutualPreviewLimit() int {
	return s.opts.MutualPreviewLimit
}

// ListPeers returns userID's CONNECTED counterparts with their tiers.
func (s *Service) ListPeers(ctx context.Context, userID uuid.UUID) ([]Peer, error) {
	peers, err := s.tx.Stores().Connections.ListPeers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return peers, nil
}

// TierBetween returns the effective tier of a pair: NO_RELATION unless CONNECTED.
func (s *Service) TierBetween(ctx context.Context, a, b uuid.UUID) (visibility.Tier, error) {
	if a == b {
		return visibility.TierNoRelation, nil
	}
	conn, err := s.tx.Stores().Connections.FindByID(ctx, pairid.New(a, b))
	if err != nil {
		return visibility.TierNoRelation, fmt.Errorf("find connection: %w", err)
	}
	return conn.EffectiveTier(), nil
}
