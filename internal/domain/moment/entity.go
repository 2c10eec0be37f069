package moment

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/database"
)

// Moment is a single piece of content, posted on its own or into a story.
type Moment struct {
	ID            uuid.UUID          `db:"id"`
	OwnerID       uuid.UUID          `db:"owner_id"`
	StoryID       uuid.NullUUID      `db:"story_id"`
	Label         visibility.Label   `db:"visibility"`
	TaggedUserIDs database.UUIDArray `db:"tagged_user_ids"`
	Caption       string             `db:"caption"`
	CreatedAt     time.Time          `db:"created_at"`
	DeletedAt     sql.NullTime       `db:"deleted_at"`
}

// IsStandalone reports whether the moment is not part of a story.
func (m *Moment) IsStandalone() bool {
	return !m.StoryID.Valid
}

// IsDeleted reports whether the moment was soft deleted.
func (m *Moment) IsDeleted() bool {
	return m.DeletedAt.Valid
}

// Subject returns the visibility projection of the moment.
func (m *Moment) Subject() visibility.Subject {
	return visibility.Subject{OwnerID: m.OwnerID, Label: m.Label, TaggedUserIDs: m.TaggedUserIDs}
}

// Story groups moments from its owner and members under one label.
// The feed shows only its latest contribution.
type Story struct {
	ID                   uuid.UUID          `db:"id"`
	OwnerID              uuid.UUID          `db:"owner_id"`
	MemberIDs            database.UUIDArray `db:"member_ids"`
	Label                visibility.Label   `db:"visibility"`
	LatestContributionID uuid.NullUUID      `db:"latest_contribution_id"`
	LatestContributionAt sql.NullTime       `db:"latest_contribution_at"`
	CreatedAt            time.Time          `db:"created_at"`
	DeletedAt            sql.NullTime       `db:"deleted_at"`
}

// IsDeleted reports whether the story was soft deleted.
func (s *Story) IsDeleted() bool {
	return s.DeletedAt.Valid
}

// CanContribute reports whether userID may post into the story.
func (s *Story) CanContribute(userID uuid.UUID) bool {
	return s.OwnerID == userID || s.MemberIDs.Contains(userID)
}

// advance moves the latest-contribution pointer to m.
func (s *Story) advance(m *Moment) {
	s.LatestContributionID = uuid.NullUUID{UUID: m.ID, Valid: true}
	s.LatestContributionAt = sql.NullTime{Time: m.CreatedAt, Valid: true}
}

// resetHead points the story at head, or clears the pointer when head is nil.
func (s *Story) resetHead(head *Moment) {
	if head == nil {
		s.LatestContributionID = uuid.NullUUID{}
		s.LatestContributionAt = sql.NullTime{}
		return
	}
	s.advance(head)
}
