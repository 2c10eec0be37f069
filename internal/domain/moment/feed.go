package moment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/pkg/cursor"
)

// FeedFilter selects which feed to read. A nil TargetUserID is the home
// feed; the viewer's own id is their own feed; any other id narrows the
// feed to that user.
type FeedFilter struct {
	TargetUserID *uuid.UUID
}

// PageRequest is the client side of a keyset page.
type PageRequest struct {
	Cursor    *cursor.Cursor
	Limit     int
	Direction cursor.Direction
}

// Page is one keyset page of moments.
type Page struct {
	Items      []*Moment
	NextCursor *cursor.Cursor
	HasMore    bool
	Limit      int
	Direction  cursor.Direction
}

// Feed returns a page of moments the viewer may see. Every eligible story
// contributes exactly one item, its latest contribution.
func (s *Service) Feed(ctx context.Context, viewerID uuid.UUID, filter FeedFilter, req PageRequest) (*Page, error) {
	scope, err := s.ScopeFor(ctx, viewerID, filter)
	if err != nil {
		return nil, err
	}

	st := s.tx.Store()
	heads, err := st.FindLatestPerStory(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("find story heads: %w", err)
	}

	q, limit := s.pageQuery(req)
	rows, err := st.FindByCursor(ctx, scope, heads, q)
	if err != nil {
		return nil, fmt.Errorf("find moments: %w", err)
	}
	return buildPage(rows, limit, q.Direction), nil
}

// ListStoryMoments pages through every live contribution of a story the
// viewer is eligible to see.
func (s *Service) ListStoryMoments(ctx context.Context, viewerID, storyID uuid.UUID, req PageRequest) (*Page, error) {
	st := s.tx.Store()
	story, err := st.GetStory(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	if story == nil || story.IsDeleted() {
		return nil, notFound(ErrStoryNotFound)
	}

	scope, err := s.ScopeFor(ctx, viewerID, FeedFilter{TargetUserID: &story.OwnerID})
	if err != nil {
		return nil, err
	}
	if !scope.StoryEligible(story) {
		// Hidden stories are reported as missing.
		return nil, notFound(ErrStoryNotFound)
	}

	q, limit := s.pageQuery(req)
	rows, err := st.FindStoryMoments(ctx, storyID, q)
	if err != nil {
		return nil, fmt.Errorf("find story moments: %w", err)
	}
	return buildPage(rows, limit, q.Direction), nil
}

// GetMoment returns a single moment if the viewer may see it.
func (s *Service) GetMoment(ctx context.Context, viewerID, momentID uuid.UUID) (*Moment, error) {
	st := s.tx.Store()
	m, err := st.GetMoment(ctx, momentID)
	if err != nil {
		return nil, fmt.Errorf("get moment: %w", err)
	}
	if m == nil || m.IsDeleted() {
		return nil, notFound(ErrMomentNotFound)
	}
	if m.OwnerID == viewerID {
		return m, nil
	}

	if m.IsStandalone() {
		tier, err := s.relations.TierBetween(ctx, viewerID, m.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("find tier: %w", err)
		}
		if !tier.IsConnected() || !s.policy.CanView(m.Subject(), viewerID, tier) {
			return nil, notFound(ErrMomentNotFound)
		}
		return m, nil
	}

	story, err := st.GetStory(ctx, m.StoryID.UUID)
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	if story == nil {
		return nil, notFound(ErrMomentNotFound)
	}
	scope, err := s.ScopeFor(ctx, viewerID, FeedFilter{TargetUserID: &story.OwnerID})
	if err != nil {
		return nil, err
	}
	if !scope.StoryEligible(story) {
		return nil, notFound(ErrMomentNotFound)
	}
	return m, nil
}

// ScopeFor resolves the owners, peers and label grants a feed read runs with.
func (s *Service) ScopeFor(ctx context.Context, viewerID uuid.UUID, filter FeedFilter) (Scope, error) {
	scope := Scope{ViewerID: viewerID}

	switch {
	case filter.TargetUserID == nil:
		peers, err := s.relations.ListPeers(ctx, viewerID)
		if err != nil {
			return Scope{}, fmt.Errorf("list peers: %w", err)
		}
		for _, p := range peers {
			scope.Peers = append(scope.Peers, p.UserID)
			for _, label := range s.policy.AllowedLabels(p.Tier) {
				scope.Grants = append(scope.Grants, Grant{OwnerID: p.UserID, Label: label})
			}
		}

	case *filter.TargetUserID == viewerID:
		scope.Owners = []uuid.UUID{viewerID}

	default:
		target := *filter.TargetUserID
		scope.Owners = []uuid.UUID{target, viewerID}
		tier, err := s.relations.TierBetween(ctx, viewerID, target)
		if err != nil {
			return Scope{}, fmt.Errorf("find tier: %w", err)
		}
		if tier.IsConnected() {
			scope.Peers = []uuid.UUID{target}
			for _, label := range s.policy.AllowedLabels(tier) {
				scope.Grants = append(scope.Grants, Grant{OwnerID: target, Label: label})
			}
		}
	}
	return scope, nil
}

// pageQuery over-fetches by one so the page can tell whether more rows exist.
func (s *Service) pageQuery(req PageRequest) (PageQuery, int) {
	limit := cursor.ClampLimit(req.Limit, s.opts.DefaultLimit, s.opts.MaxLimit)
	dir := req.Direction
	if dir != cursor.Newer {
		dir = cursor.Older
	}
	return PageQuery{Cursor: req.Cursor, Direction: dir, Limit: limit + 1}, limit
}

func buildPage(rows []*Moment, limit int, dir cursor.Direction) *Page {
	page := &Page{Items: rows, Limit: limit, Direction: dir}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
	}
	if page.Items == nil {
		page.Items = []*Moment{}
	}
	// The cursor is set even on the last page so NEWER readers can resume.
	if n := len(page.Items); n > 0 {
		last := page.Items[n-1]
		page.NextCursor = cursor.Of(last.CreatedAt, last.ID)
	}
	return page
}
