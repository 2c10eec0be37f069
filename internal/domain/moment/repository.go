package moment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/pkg/cursor"
)

// PageQuery is a keyset window. Limit is the number of rows to fetch.
type PageQuery struct {
	Cursor    *cursor.Cursor
	Direction cursor.Direction
	Limit     int
}

// ContentStore is the moment and story persistence the feed depends on.
type ContentStore interface {
	// FindLatestPerStory returns the latest-contribution id of every story
	// eligible under scope.
	FindLatestPerStory(ctx context.Context, scope Scope) ([]uuid.UUID, error)
	// FindByCursor returns visible standalone moments and the given story
	// heads, ordered by (created_at, id) in page.Direction.
	FindByCursor(ctx context.Context, scope Scope, storyHeads []uuid.UUID, page PageQuery) ([]*Moment, error)
	FindStoryMoments(ctx context.Context, storyID uuid.UUID, page PageQuery) ([]*Moment, error)

	GetMoment(ctx context.Context, id uuid.UUID) (*Moment, error)
	GetMomentForUpdate(ctx context.Context, id uuid.UUID) (*Moment, error)
	GetStory(ctx context.Context, id uuid.UUID) (*Story, error)
	GetStoryForUpdate(ctx context.Context, id uuid.UUID) (*Story, error)
	// LatestInStory returns the newest live moment of a story, or nil.
	LatestInStory(ctx context.Context, storyID uuid.UUID) (*Moment, error)

	CreateMoment(ctx context.Context, m *Moment) error
	CreateStory(ctx context.Context, s *Story) error
	SetStoryHead(ctx context.Context, s *Story) error
	SoftDeleteMoment(ctx context.Context, id uuid.UUID, at time.Time) error
	SoftDeleteStory(ctx context.Context, id uuid.UUID, at time.Time) error
	UnlinkMoment(ctx context.Context, id uuid.UUID) error
}

// Transactor runs a unit of work against a transactional ContentStore.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s ContentStore) error) error
	Store() ContentStore
}
