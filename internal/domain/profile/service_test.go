package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/domain/moment"
	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/middleware"
	"github.com/mwork/moments-api/internal/pkg/cursor"
)

type fakeRelations struct {
	rel   *connection.Relationship
	err   error
	calls int
}

func (f *fakeRelations) GetRelationship(_ context.Context, _, _ uuid.UUID) (*connection.Relationship, error) {
	f.calls++
	return f.rel, f.err
}

func (f *fakeRelations) MutualPreviewLimit() int { return 2 }

type fakeFeed struct {
	page   *moment.Page
	err    error
	filter moment.FeedFilter
}

func (f *fakeFeed) Feed(ctx context.Context, _ uuid.UUID, filter moment.FeedFilter, _ moment.PageRequest) (*moment.Page, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type onlineSet map[uuid.UUID]bool

func (o onlineSet) OnlineUsers(_ context.Context, ids []uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range ids {
		if o[id] {
			out = append(out, id)
		}
	}
	return out
}

func TestGetViewAssemblesParts(t *testing.T) {
	viewer, target := uuid.New(), uuid.New()
	m := &moment.Moment{ID: uuid.New(), OwnerID: target, Label: visibility.LabelFriends, CreatedAt: time.Now()}
	rel := &connection.Relationship{
		Connection: &connection.Connection{Tier: visibility.TierFriend, Status: connection.StatusConnected},
		Mutual:     []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
	}
	relations := &fakeRelations{rel: rel}
	feed := &fakeFeed{page: &moment.Page{Items: []*moment.Moment{m}, Limit: 20, Direction: cursor.Older}}

	svc := NewService(relations, feed, onlineSet{target: true})
	view, err := svc.GetView(context.Background(), viewer, target, moment.PageRequest{})
	require.NoError(t, err)

	assert.False(t, view.Self)
	assert.True(t, view.Online)
	assert.Same(t, rel, view.Relationship)
	require.Len(t, view.Moments.Items, 1)
	require.NotNil(t, feed.filter.TargetUserID)
	assert.Equal(t, target, *feed.filter.TargetUserID)

	resp := ViewFromEntity(view, viewer, svc.MutualPreviewLimit())
	require.NotNil(t, resp.Relationship)
	assert.Equal(t, visibility.TierFriend, resp.Relationship.Tier)
	assert.Equal(t, 3, resp.Relationship.MutualCount)
	assert.Len(t, resp.Relationship.MutualPreview, 2)
}

func TestGetViewOfSelfSkipsRelationship(t *testing.T) {
	me := uuid.New()
	relations := &fakeRelations{err: errors.New("must not be called")}
	svc := NewService(relations, &fakeFeed{page: &moment.Page{}}, nil)

	view, err := svc.GetView(context.Background(), me, me, moment.PageRequest{})
	require.NoError(t, err)
	assert.True(t, view.Self)
	assert.False(t, view.Online)
	assert.Nil(t, view.Relationship)
	assert.Zero(t, relations.calls)
}

func TestGetViewHidesPresenceOutsideConnections(t *testing.T) {
	viewer, target := uuid.New(), uuid.New()
	online := onlineSet{target: true, viewer: true}
	feed := &fakeFeed{page: &moment.Page{}}

	cases := map[string]*connection.Relationship{
		"stranger": {},
		"blocked": {Connection: &connection.Connection{
			Tier:      visibility.TierNoRelation,
			Status:    connection.StatusBlocked,
			BlockedBy: uuid.NullUUID{UUID: target, Valid: true},
		}},
		"removed": {Connection: &connection.Connection{Tier: visibility.TierNoRelation, Status: connection.StatusInactive}},
	}
	for name, rel := range cases {
		svc := NewService(&fakeRelations{rel: rel}, feed, online)
		view, err := svc.GetView(context.Background(), viewer, target, moment.PageRequest{})
		require.NoError(t, err, name)
		assert.False(t, view.Online, name)
	}

	self, err := NewService(&fakeRelations{}, feed, online).GetView(context.Background(), viewer, viewer, moment.PageRequest{})
	require.NoError(t, err)
	assert.True(t, self.Online)
}

func TestGetViewFailsWhenAnyPartFails(t *testing.T) {
	boom := errors.New("feed down")
	svc := NewService(&fakeRelations{rel: &connection.Relationship{}}, &fakeFeed{err: boom}, nil)

	_, err := svc.GetView(context.Background(), uuid.New(), uuid.New(), moment.PageRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestHandlerGetView(t *testing.T) {
	viewer, target := uuid.New(), uuid.New()
	next := cursor.Of(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), uuid.New())
	feed := &fakeFeed{page: &moment.Page{Limit: 5, HasMore: true, NextCursor: next, Direction: cursor.Older}}
	svc := NewService(&fakeRelations{rel: &connection.Relationship{}}, feed, onlineSet{})

	auth := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), viewer)))
		})
	}
	router := NewHandler(svc).Routes(auth)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+target.String()+"?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Data ViewResponse `json:"data"`
		Meta struct {
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, target, body.Data.UserID)
	require.NotNil(t, body.Data.Relationship)
	assert.Equal(t, visibility.TierNoRelation, body.Data.Relationship.Tier)
	assert.Empty(t, body.Data.Moments)
	assert.True(t, body.Meta.HasMore)
	assert.Equal(t, next.Encode(), body.Meta.NextCursor)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+target.String()+"?direction=up", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
