package connection

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/cursor"
	"github.com/mwork/moments-api/internal/pkg/pairid"
)

// memDB is an in-memory stand-in for Postgres. WithinTx serializes units of
// work and restores the previous state when fn fails.
type memDB struct {
	mu    sync.Mutex
	conns map[uuid.UUID]Connection
	reqs  map[uuid.UUID]Request

	failCount error
}

func newMemDB() *memDB {
	return &memDB{conns: map[uuid.UUID]Connection{}, reqs: map[uuid.UUID]Request{}}
}

func (m *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := make(map[uuid.UUID]Connection, len(m.conns))
	for k, v := range m.conns {
		conns[k] = v
	}
	reqs := make(map[uuid.UUID]Request, len(m.reqs))
	for k, v := range m.reqs {
		reqs[k] = v
	}

	if err := fn(ctx, m.Stores()); err != nil {
		m.conns, m.reqs = conns, reqs
		return err
	}
	return nil
}

func (m *memDB) Stores() Stores {
	return Stores{Connections: memConnections{m}, Requests: memRequests{m}}
}

// seed stores a connection row directly.
func (m *memDB) seed(a, b uuid.UUID, tier visibility.Tier, status Status, updatedAt time.Time) Connection {
	low, high := pairid.Order(a, b)
	c := Connection{
		ID:        pairid.New(a, b),
		UserLow:   low,
		UserHigh:  high,
		Tier:      tier,
		Status:    status,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	m.conns[c.ID] = c
	return c
}

func (m *memDB) conn(a, b uuid.UUID) *Connection {
	c, ok := m.conns[pairid.New(a, b)]
	if !ok {
		return nil
	}
	return &c
}

func (m *memDB) req(id uuid.UUID) *Request {
	r, ok := m.reqs[id]
	if !ok {
		return nil
	}
	return &r
}

type memConnections struct{ m *memDB }

func (s memConnections) FindByID(_ context.Context, id uuid.UUID) (*Connection, error) {
	c, ok := s.m.conns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s memConnections) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return s.FindByID(ctx, id)
}

func (s memConnections) LockPair(context.Context, uuid.UUID) error { return nil }

func (s memConnections) Save(_ context.Context, c *Connection) error {
	if prev, ok := s.m.conns[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	s.m.conns[c.ID] = *c
	return nil
}

func (s memConnections) CountConnected(_ context.Context, userID uuid.UUID, tiers []visibility.Tier) (int, error) {
	if s.m.failCount != nil {
		return 0, s.m.failCount
	}
	n := 0
	for _, c := range s.m.conns {
		if c.Status != StatusConnected || !c.Involves(userID) {
			continue
		}
		for _, t := range tiers {
			if c.Tier == t {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s memConnections) ListPeers(_ context.Context, userID uuid.UUID) ([]Peer, error) {
	var peers []Peer
	for _, c := range s.m.conns {
		if c.Status == StatusConnected && c.Involves(userID) {
			peers = append(peers, Peer{UserID: c.Other(userID), Tier: c.Tier})
		}
	}
	return peers, nil
}

func (s memConnections) ListConnections(_ context.Context, userID uuid.UUID, filter ListFilter) ([]Listed, error) {
	var rows []Listed
	for _, c := range s.m.conns {
		if c.Status != StatusConnected || !c.Involves(userID) {
			continue
		}
		if filter.Tier != nil && c.Tier != *filter.Tier {
			continue
		}
		if !filter.Cursor.After(cursor.Older, c.UpdatedAt, c.ID) {
			continue
		}
		rows = append(rows, Listed{ConnectionID: c.ID, PeerID: c.Other(userID), Tier: c.Tier, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt})
	}
	sort.Slice(rows, func(i, j int) bool {
		return cursor.Compare(rows[i].UpdatedAt, rows[i].ConnectionID, rows[j].UpdatedAt, rows[j].ConnectionID) > 0
	})
	if len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

func (s memConnections) peerSet(userID uuid.UUID) map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	for _, c := range s.m.conns {
		if c.Status == StatusConnected && c.Involves(userID) {
			out[c.Other(userID)] = true
		}
	}
	return out
}

func (s memConnections) FindMutual(_ context.Context, viewerID uuid.UUID, targetIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	viewerPeers := s.peerSet(viewerID)
	out := make(map[uuid.UUID][]uuid.UUID, len(targetIDs))
	for _, target := range targetIDs {
		mutual := []uuid.UUID{}
		for p := range s.peerSet(target) {
			if viewerPeers[p] && p != viewerID && p != target {
				mutual = append(mutual, p)
			}
		}
		sort.Slice(mutual, func(i, j int) bool { return bytes.Compare(mutual[i][:], mutual[j][:]) < 0 })
		out[target] = mutual
	}
	return out, nil
}

type memRequests struct{ m *memDB }

func (s memRequests) FindByID(_ context.Context, id uuid.UUID) (*Request, error) {
	r, ok := s.m.reqs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s memRequests) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.FindByID(ctx, id)
}

func (s memRequests) FindPendingBetween(_ context.Context, pairID uuid.UUID, tierChange bool) (*Request, error) {
	for _, r := range s.m.reqs {
		if r.PairID == pairID && r.Status == RequestPending && r.IsTierChange() == tierChange {
			return &r, nil
		}
	}
	return nil, nil
}

func (s memRequests) Save(_ context.Context, r *Request) error {
	if r.Status == RequestPending {
		for id, other := range s.m.reqs {
			if id != r.ID && other.PairID == r.PairID && other.Status == RequestPending && other.IsTierChange() == r.IsTierChange() {
				return alreadyExists(ErrConcurrentRequestConflict)
			}
		}
	}
	s.m.reqs[r.ID] = *r
	return nil
}

func (s memRequests) CancelPendingBetween(_ context.Context, pairID uuid.UUID, at time.Time) (int, error) {
	n := 0
	for id, r := range s.m.reqs {
		if r.PairID == pairID && r.Status == RequestPending {
			r.Status = RequestCanceled
			r.ResolvedAt.Time, r.ResolvedAt.Valid = at, true
			s.m.reqs[id] = r
			n++
		}
	}
	return n, nil
}

func (s memRequests) ListPending(_ context.Context, userID uuid.UUID, dir PendingDirection, limit int) ([]*Request, error) {
	var out []*Request
	for _, r := range s.m.reqs {
		r := r
		if r.Status != RequestPending {
			continue
		}
		if (dir == PendingIncoming && r.RecipientID == userID) || (dir == PendingOutgoing && r.RequesterID == userID) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeInvites map[string]uuid.UUID

func (f fakeInvites) ResolveByToken(_ context.Context, ownerID uuid.UUID, token string) (uuid.UUID, error) {
	owner, ok := f[token]
	if !ok || owner != ownerID {
		return uuid.Nil, ErrInvalidInvite
	}
	return owner, nil
}

type conversationCall struct {
	Low, High uuid.UUID
	Status    ConversationStatus
}

type fakeConversations struct {
	mu    sync.Mutex
	calls []conversationCall
	err   error
}

func (f *fakeConversations) CreateOrUpdatePrivateConversation(_ context.Context, a, b uuid.UUID, status ConversationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	low, high := pairid.Order(a, b)
	f.calls = append(f.calls, conversationCall{Low: low, High: high, Status: status})
	return f.err
}

func (f *fakeConversations) last() conversationCall {
	if len(f.calls) == 0 {
		return conversationCall{}
	}
	return f.calls[len(f.calls)-1]
}

type sentEvent struct {
	To    uuid.UUID
	Event Event
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeNotifier) SendToUserJSON(userID uuid.UUID, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{To: userID, Event: payload.(Event)})
	return nil
}

func (f *fakeNotifier) typesFor(userID uuid.UUID) []EventType {
	var out []EventType
	for _, s := range f.sent {
		if s.To == userID {
			out = append(out, s.Event.Type)
		}
	}
	return out
}
