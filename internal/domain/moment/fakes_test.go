package moment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/cursor"
	"github.com/mwork/moments-api/internal/pkg/pairid"
)

// memStore keeps moments and stories in memory. Reads evaluate the same
// predicates the SQL queries encode.
type memStore struct {
	mu      sync.Mutex
	moments map[uuid.UUID]Moment
	stories map[uuid.UUID]Story
}

func newMemStore() *memStore {
	return &memStore{moments: map[uuid.UUID]Moment{}, stories: map[uuid.UUID]Story{}}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, s ContentStore) error) error {
	m.mu.Lock()
	moments := make(map[uuid.UUID]Moment, len(m.moments))
	for k, v := range m.moments {
		moments[k] = v
	}
	stories := make(map[uuid.UUID]Story, len(m.stories))
	for k, v := range m.stories {
		stories[k] = v
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.moments, m.stories = moments, stories
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Store() ContentStore { return m }

func (m *memStore) FindLatestPerStory(_ context.Context, scope Scope) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for _, st := range m.stories {
		st := st
		if st.LatestContributionID.Valid && scope.StoryEligible(&st) {
			out = append(out, st.LatestContributionID.UUID)
		}
	}
	return out, nil
}

func (m *memStore) FindByCursor(_ context.Context, scope Scope, heads []uuid.UUID, page PageQuery) ([]*Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*Moment
	for _, mo := range m.moments {
		mo := mo
		if mo.IsDeleted() {
			continue
		}
		if !containsID(heads, mo.ID) && !scope.StandaloneVisible(&mo) {
			continue
		}
		if !page.Cursor.After(page.Direction, mo.CreatedAt, mo.ID) {
			continue
		}
		rows = append(rows, &mo)
	}
	return window(rows, page), nil
}

func (m *memStore) FindStoryMoments(_ context.Context, storyID uuid.UUID, page PageQuery) ([]*Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*Moment
	for _, mo := range m.moments {
		mo := mo
		if mo.IsDeleted() || mo.StoryID.UUID != storyID || !mo.StoryID.Valid {
			continue
		}
		if !page.Cursor.After(page.Direction, mo.CreatedAt, mo.ID) {
			continue
		}
		rows = append(rows, &mo)
	}
	return window(rows, page), nil
}

func window(rows []*Moment, page PageQuery) []*Moment {
	sort.Slice(rows, func(i, j int) bool {
		c := cursor.Compare(rows[i].CreatedAt, rows[i].ID, rows[j].CreatedAt, rows[j].ID)
		if page.Direction == cursor.Newer {
			return c < 0
		}
		return c > 0
	})
	if len(rows) > page.Limit {
		rows = rows[:page.Limit]
	}
	return rows
}

func (m *memStore) GetMoment(_ context.Context, id uuid.UUID) (*Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.moments[id]
	if !ok {
		return nil, nil
	}
	return &mo, nil
}

func (m *memStore) GetMomentForUpdate(ctx context.Context, id uuid.UUID) (*Moment, error) {
	return m.GetMoment(ctx, id)
}

func (m *memStore) GetStory(_ context.Context, id uuid.UUID) (*Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stories[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memStore) GetStoryForUpdate(ctx context.Context, id uuid.UUID) (*Story, error) {
	return m.GetStory(ctx, id)
}

func (m *memStore) LatestInStory(_ context.Context, storyID uuid.UUID) (*Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var head *Moment
	for _, mo := range m.moments {
		mo := mo
		if mo.IsDeleted() || !mo.StoryID.Valid || mo.StoryID.UUID != storyID {
			continue
		}
		if head == nil || cursor.Compare(mo.CreatedAt, mo.ID, head.CreatedAt, head.ID) > 0 {
			head = &mo
		}
	}
	return head, nil
}

func (m *memStore) CreateMoment(_ context.Context, mo *Moment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moments[mo.ID] = *mo
	return nil
}

func (m *memStore) CreateStory(_ context.Context, s *Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories[s.ID] = *s
	return nil
}

func (m *memStore) SetStoryHead(_ context.Context, s *Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stories[s.ID]
	st.LatestContributionID = s.LatestContributionID
	st.LatestContributionAt = s.LatestContributionAt
	m.stories[s.ID] = st
	return nil
}

func (m *memStore) SoftDeleteMoment(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo := m.moments[id]
	mo.DeletedAt.Time, mo.DeletedAt.Valid = at, true
	m.moments[id] = mo
	return nil
}

func (m *memStore) SoftDeleteStory(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stories[id]
	st.DeletedAt.Time, st.DeletedAt.Valid = at, true
	m.stories[id] = st
	return nil
}

func (m *memStore) UnlinkMoment(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo := m.moments[id]
	mo.StoryID = uuid.NullUUID{}
	m.moments[id] = mo
	return nil
}

func (m *memStore) story(id uuid.UUID) Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stories[id]
}

// graph stands in for the connection service. Pair ids are one-way, so
// the users are kept separately for ListPeers.
type graph struct {
	tiers map[uuid.UUID]visibility.Tier
	users []uuid.UUID
}

func newGraph(users ...uuid.UUID) *graph {
	return &graph{tiers: map[uuid.UUID]visibility.Tier{}, users: users}
}

func (g *graph) link(a, b uuid.UUID, tier visibility.Tier) {
	g.tiers[pairid.New(a, b)] = tier
}

// unlink drops the pair, as a removed connection reads.
func (g *graph) unlink(a, b uuid.UUID) {
	delete(g.tiers, pairid.New(a, b))
}

func (g *graph) TierBetween(_ context.Context, a, b uuid.UUID) (visibility.Tier, error) {
	if a == b {
		return visibility.TierNoRelation, nil
	}
	if t, ok := g.tiers[pairid.New(a, b)]; ok {
		return t, nil
	}
	return visibility.TierNoRelation, nil
}

func (g *graph) ListPeers(ctx context.Context, userID uuid.UUID) ([]connection.Peer, error) {
	var out []connection.Peer
	for _, u := range g.users {
		if u == userID {
			continue
		}
		if t, _ := g.TierBetween(ctx, userID, u); t.IsConnected() {
			out = append(out, connection.Peer{UserID: u, Tier: t})
		}
	}
	return out, nil
}
