package profile

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/domain/moment"
)

// RelationshipReader is the slice of the connection service a profile needs.
type RelationshipReader interface {
	GetRelationship(ctx context.Context, viewerID, otherID uuid.UUID) (*connection.Relationship, error)
	MutualPreviewLimit() int
}

// FeedReader reads a visibility-scoped moment page.
type FeedReader interface {
	Feed(ctx context.Context, viewerID uuid.UUID, filter moment.FeedFilter, req moment.PageRequest) (*moment.Page, error)
}

// PresenceChecker reports which users have a live session.
type PresenceChecker interface {
	OnlineUsers(ctx context.Context, userIDs []uuid.UUID) []uuid.UUID
}

// View is one user's profile as seen by a viewer.
type View struct {
	UserID       uuid.UUID
	Self         bool
	Online       bool
	Relationship *connection.Relationship
	Moments      *moment.Page
}

// Service assembles profile views
type Service struct {
	relations RelationshipReader
	feed      FeedReader
	presence  PresenceChecker
}

// NewService creates profile service. presence may be nil.
func NewService(relations RelationshipReader, feed FeedReader, presence PresenceChecker) *Service {
	return &Service{relations: relations, feed: feed, presence: presence}
}

// GetView loads the relationship and the first moment page of targetID
// concurrently, then presence when the pair is connected. Any failed read
// fails the view.
func (s *Service) GetView(ctx context.Context, viewerID, targetID uuid.UUID, req moment.PageRequest) (*View, error) {
	view := &View{UserID: targetID, Self: viewerID == targetID}

	g, gctx := errgroup.WithContext(ctx)

	if !view.Self {
		g.Go(func() error {
			rel, err := s.relations.GetRelationship(gctx, viewerID, targetID)
			if err != nil {
				return err
			}
			view.Relationship = rel
			return nil
		})
	}

	g.Go(func() error {
		page, err := s.feed.Feed(gctx, viewerID, moment.FeedFilter{TargetUserID: &targetID}, req)
		if err != nil {
			return err
		}
		view.Moments = page
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.presence != nil && view.sharesPresence() {
		view.Online = len(s.presence.OnlineUsers(ctx, []uuid.UUID{targetID})) > 0
	}
	return view, nil
}

// sharesPresence reports whether the viewer may see the target's presence:
// only on their own profile or a CONNECTED peer's.
func (v *View) sharesPresence() bool {
	if v.Self {
		return true
	}
	return v.Relationship != nil && v.Relationship.Connection.IsConnected()
}

// MutualPreviewLimit is the number of mutual ids shown on a profile.
func (s *Service) MutualPreviewLimit() int {
	return s.relations.MutualPreviewLimit()
}
