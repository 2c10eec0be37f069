package conversation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/middleware"
	"github.com/mwork/moments-api/internal/pkg/errorhandler"
	"github.com/mwork/moments-api/internal/pkg/pairid"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]Conversation
	err  error
}

func newMemRepo() *memRepo { return &memRepo{rows: map[uuid.UUID]Conversation{}} }

func (m *memRepo) Upsert(_ context.Context, c *Conversation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if cur, ok := m.rows[c.ID]; ok {
		if cur.Status == c.Status {
			return false, nil
		}
		c.CreatedAt = cur.CreatedAt
	}
	m.rows[c.ID] = *c
	return true, nil
}

func (m *memRepo) FindByID(_ context.Context, id uuid.UUID) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type sent struct {
	userID uuid.UUID
	event  Event
}

type recorder struct {
	mu     sync.Mutex
	events []sent
}

func (r *recorder) SendToUserJSON(userID uuid.UUID, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{userID: userID, event: payload.(Event)})
	return nil
}

func newTestService(repo Repository, notifier connection.Notifier) *Service {
	svc := NewService(repo, notifier)
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func TestCreateOrUpdatePrivateConversation(t *testing.T) {
	repo, rec := newMemRepo(), &recorder{}
	svc := newTestService(repo, rec)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, svc.CreateOrUpdatePrivateConversation(ctx, a, b, connection.ConversationActive))
	c, err := svc.GetConversation(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, pairid.New(a, b), c.ID)
	assert.True(t, c.CanMessage())
	created := c.CreatedAt

	require.Len(t, rec.events, 2)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, []uuid.UUID{rec.events[0].userID, rec.events[1].userID})
	for _, s := range rec.events {
		assert.Equal(t, EventConversationUpdated, s.event.Type)
		assert.NotEqual(t, s.userID, s.event.PeerID)
	}

	// Same status again is a no-op.
	require.NoError(t, svc.CreateOrUpdatePrivateConversation(ctx, b, a, connection.ConversationActive))
	assert.Len(t, rec.events, 2)

	require.NoError(t, svc.CreateOrUpdatePrivateConversation(ctx, b, a, connection.ConversationBlocked))
	c, err = svc.GetConversation(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, connection.ConversationBlocked, c.Status)
	assert.False(t, c.CanMessage())
	assert.Equal(t, created, c.CreatedAt)
	assert.Len(t, rec.events, 4)
}

func TestCreateOrUpdateRejectsBadInput(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	a := uuid.New()

	err := svc.CreateOrUpdatePrivateConversation(context.Background(), a, a, connection.ConversationActive)
	assert.ErrorIs(t, err, ErrSelfConversation)

	err = svc.CreateOrUpdatePrivateConversation(context.Background(), a, uuid.New(), "ARCHIVED")
	assert.ErrorIs(t, err, ErrUnknownStatus)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errorhandler.KindInvalidArgument, typed.ErrorKind())
}

func TestCreateOrUpdateWrapsStoreErrors(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("connection reset")
	svc := newTestService(repo, nil)

	err := svc.CreateOrUpdatePrivateConversation(context.Background(), uuid.New(), uuid.New(), connection.ConversationInactive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert conversation")
}

func TestGetConversationNotFound(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)

	_, err := svc.GetConversation(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestHandlerGet(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)
	a, b := uuid.New(), uuid.New()
	require.NoError(t, svc.CreateOrUpdatePrivateConversation(context.Background(), a, b, connection.ConversationActive))

	asUser := func(id uuid.UUID) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), id)))
			})
		}
	}

	w := httptest.NewRecorder()
	NewHandler(svc).Routes(asUser(a)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+b.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"peer_id":"`+b.String()+`"`)
	assert.Contains(t, w.Body.String(), `"can_message":true`)

	w = httptest.NewRecorder()
	NewHandler(svc).Routes(asUser(a)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	NewHandler(svc).Routes(asUser(a)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+a.String(), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	NewHandler(svc).Routes(asUser(a)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
