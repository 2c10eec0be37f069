package moment

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/domain/visibility"
)

const (
	maxCaptionLength = 2000
	maxTaggedUsers   = 50
)

// RelationshipReader exposes the connection graph to the feed.
type RelationshipReader interface {
	ListPeers(ctx context.Context, userID uuid.UUID) ([]connection.Peer, error)
	TierBetween(ctx context.Context, a, b uuid.UUID) (visibility.Tier, error)
}

// Options tunes paging.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 20
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 100
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	return o
}

// Service handles moment and story business logic
type Service struct {
	tx        Transactor
	relations RelationshipReader
	policy    *visibility.Policy
	opts      Options
	now       func() time.Time
}

// NewService creates moment service
func NewService(tx Transactor, relations RelationshipReader, policy *visibility.Policy, opts Options) *Service {
	if policy == nil {
		policy = visibility.NewPolicy(nil)
	}
	return &Service{
		tx:        tx,
		relations: relations,
		policy:    policy,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// CreateStoryInput is the payload of CreateStory.
type CreateStoryInput struct {
	Label     visibility.Label
	MemberIDs []uuid.UUID
}

// CreateStory opens a story. Members must be CONNECTED to the owner.
func (s *Service) CreateStory(ctx context.Context, ownerID uuid.UUID, in CreateStoryInput) (*Story, error) {
	if _, err := visibility.ParseLabel(string(in.Label)); err != nil {
		return nil, invalidArgument(err)
	}

	members := make([]uuid.UUID, 0, len(in.MemberIDs))
	for _, id := range in.MemberIDs {
		if id == ownerID || containsID(members, id) {
			continue
		}
		tier, err := s.relations.TierBetween(ctx, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("check member: %w", err)
		}
		if !tier.IsConnected() {
			return nil, invalidArgument(ErrMemberNotConnected)
		}
		members = append(members, id)
	}

	story := &Story{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		MemberIDs: members,
		Label:     in.Label,
		CreatedAt: s.now(),
	}
	if err := s.tx.Store().CreateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}
	return story, nil
}

// DeleteStory soft deletes a story. Its moments stop surfacing unless unlinked.
func (s *Service) DeleteStory(ctx context.Context, actorID, storyID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, st ContentStore) error {
		story, err := st.GetStoryForUpdate(ctx, storyID)
		if err != nil {
			return fmt.Errorf("get story: %w", err)
		}
		if story == nil || story.IsDeleted() {
			return notFound(ErrStoryNotFound)
		}
		if story.OwnerID != actorID {
			return accessDenied(ErrNotStoryOwner)
		}
		if err := st.SoftDeleteStory(ctx, storyID, s.now()); err != nil {
			return fmt.Errorf("delete story: %w", err)
		}
		return nil
	})
}

// CreateMomentInput is the payload of CreateMoment.
// Label is ignored when StoryID is set; the moment inherits the story's label.
type CreateMomentInput struct {
	Label         visibility.Label
	StoryID       *uuid.UUID
	TaggedUserIDs []uuid.UUID
	Caption       string
}

// CreateMoment posts a moment, advancing the story pointer when it joins a story.
func (s *Service) CreateMoment(ctx context.Context, ownerID uuid.UUID, in CreateMomentInput) (*Moment, error) {
	if utf8.RuneCountInString(in.Caption) > maxCaptionLength {
		return nil, invalidArgument(ErrCaptionTooLong)
	}
	if len(in.TaggedUserIDs) > maxTaggedUsers {
		return nil, invalidArgument(ErrTooManyTags)
	}
	if in.StoryID == nil {
		if in.Label == "" {
			return nil, invalidArgument(ErrLabelRequired)
		}
		if _, err := visibility.ParseLabel(string(in.Label)); err != nil {
			return nil, invalidArgument(err)
		}
	}

	m := &Moment{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		Label:         in.Label,
		TaggedUserIDs: dedupe(in.TaggedUserIDs, ownerID),
		Caption:       in.Caption,
		CreatedAt:     s.now(),
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st ContentStore) error {
		var story *Story
		if in.StoryID != nil {
			var err error
			story, err = st.GetStoryForUpdate(ctx, *in.StoryID)
			if err != nil {
				return fmt.Errorf("get story: %w", err)
			}
			if story == nil {
				return notFound(ErrStoryNotFound)
			}
			if story.IsDeleted() {
				return invalidState(ErrStoryDeleted)
			}
			if !story.CanContribute(ownerID) {
				return accessDenied(ErrNotStoryMember)
			}
			if story.OwnerID != ownerID {
				tier, err := s.relations.TierBetween(ctx, ownerID, story.OwnerID)
				if err != nil {
					return fmt.Errorf("check member: %w", err)
				}
				if !tier.IsConnected() {
					return accessDenied(ErrMemberNotConnected)
				}
			}
			m.StoryID = uuid.NullUUID{UUID: story.ID, Valid: true}
			m.Label = story.Label
		}

		if err := st.CreateMoment(ctx, m); err != nil {
			return fmt.Errorf("create moment: %w", err)
		}
		if story != nil {
			story.advance(m)
			if err := st.SetStoryHead(ctx, story); err != nil {
				return fmt.Errorf("advance story: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMoment soft deletes a moment and repoints its story when it was the head.
func (s *Service) DeleteMoment(ctx context.Context, actorID, momentID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, st ContentStore) error {
		m, err := s.lockOwnMoment(ctx, st, actorID, momentID)
		if err != nil {
			return err
		}
		if err := st.SoftDeleteMoment(ctx, m.ID, s.now()); err != nil {
			return fmt.Errorf("delete moment: %w", err)
		}
		if m.IsStandalone() {
			return nil
		}
		return s.repointStory(ctx, st, m.StoryID.UUID, m.ID)
	})
}

// UnlinkMoment detaches a moment from its story. It keeps the inherited
// label and surfaces as a standalone moment from then on.
func (s *Service) UnlinkMoment(ctx context.Context, actorID, momentID uuid.UUID) (*Moment, error) {
	var m *Moment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st ContentStore) error {
		var err error
		m, err = s.lockOwnMoment(ctx, st, actorID, momentID)
		if err != nil {
			return err
		}
		if m.IsStandalone() {
			return invalidState(ErrNotInStory)
		}
		storyID := m.StoryID.UUID
		if err := st.UnlinkMoment(ctx, m.ID); err != nil {
			return fmt.Errorf("unlink moment: %w", err)
		}
		m.StoryID = uuid.NullUUID{}
		return s.repointStory(ctx, st, storyID, m.ID)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) lockOwnMoment(ctx context.Context, st ContentStore, actorID, momentID uuid.UUID) (*Moment, error) {
	m, err := st.GetMomentForUpdate(ctx, momentID)
	if err != nil {
		return nil, fmt.Errorf("get moment: %w", err)
	}
	if m == nil || m.IsDeleted() {
		return nil, notFound(ErrMomentNotFound)
	}
	if m.OwnerID != actorID {
		return nil, accessDenied(ErrNotMomentOwner)
	}
	return m, nil
}

// repointStory recomputes the story head after removed left the story.
func (s *Service) repointStory(ctx context.Context, st ContentStore, storyID, removed uuid.UUID) error {
	story, err := st.GetStoryForUpdate(ctx, storyID)
	if err != nil {
		return fmt.Errorf("get story: %w", err)
	}
	if story == nil || !story.LatestContributionID.Valid || story.LatestContributionID.UUID != removed {
		return nil
	}
	head, err := st.LatestInStory(ctx, storyID)
	if err != nil {
		return fmt.Errorf("find story head: %w", err)
	}
	story.resetHead(head)
	if err := st.SetStoryHead(ctx, story); err != nil {
		return fmt.Errorf("repoint story: %w", err)
	}
	return nil
}

func dedupe(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == skip || id == uuid.Nil || containsID(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
