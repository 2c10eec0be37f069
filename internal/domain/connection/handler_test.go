package connection

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/middleware"
)

type fakeIssuer struct {
	err error
}

func (f fakeIssuer) CreateInvite(_ context.Context, ownerID uuid.UUID) (*Invite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Invite{Token: "tok-" + ownerID.String(), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// asUser authenticates every request as the user named in X-Test-User.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-Test-User"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), id)))
	})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta *struct {
		Limit      int    `json:"limit"`
		HasMore    bool   `json:"has_more"`
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
}

func newTestRouter(h *harness, issuer InviteIssuer) http.Handler {
	return NewHandler(h.svc, issuer).Routes(asUser)
}

func do(t *testing.T, router http.Handler, method, path string, user uuid.UUID, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Test-User", user.String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func TestHandlerSendAndAccept(t *testing.T) {
	h := newHarness(t, nil)
	router := newTestRouter(h, fakeIssuer{})
	a, b := uuid.New(), uuid.New()
	ref := h.invite(b)

	body := `{"recipient_id":"` + b.String() + `","invite_token":"` + ref.InviteToken + `","message":"hey"}`
	w, env := do(t, router, http.MethodPost, "/requests", a, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created RequestResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, RequestPending, created.Status)
	assert.Equal(t, "hey", created.Message)

	w, env = do(t, router, http.MethodGet, "/requests?direction=incoming", b, "")
	require.Equal(t, http.StatusOK, w.Code)
	var pending []RequestResponse
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)

	w, _ = do(t, router, http.MethodPost, "/requests/"+created.ID.String()+"/accept", a, "")
	assert.Equal(t, http.StatusForbidden, w.Code, "requester cannot accept")

	w, env = do(t, router, http.MethodPost, "/requests/"+created.ID.String()+"/accept", b, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted AcceptResponse
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, a, accepted.Connection.PeerID)
	assert.Equal(t, visibility.TierFriend, accepted.Connection.Tier)
	assert.NotNil(t, accepted.Mutual)

	w, env = do(t, router, http.MethodGet, "/"+b.String(), a, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rel RelationshipResponse
	require.NoError(t, json.Unmarshal(env.Data, &rel))
	assert.Equal(t, visibility.TierFriend, rel.Tier)
	assert.Nil(t, rel.PendingRequest)
}

func TestHandlerSendValidation(t *testing.T) {
	h := newHarness(t, nil)
	router := newTestRouter(h, fakeIssuer{})
	a := uuid.New()

	w, _ := do(t, router, http.MethodPost, "/requests", a, `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(t, router, http.MethodPost, "/requests", a, `{"recipient_id":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Details, "recipient_id")

	w, env = do(t, router, http.MethodPost, "/requests", a, `{"recipient_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusForbidden, w.Code, "no mutual and no invite")
	assert.Equal(t, "ACCESS_DENIED", env.Error.Code)

	w, env = do(t, router, http.MethodPost, "/requests", a, `{"recipient_id":"`+a.String()+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", env.Error.Code)
}

func TestHandlerLimitExceededCarriesDetails(t *testing.T) {
	h := newHarness(t, tableWith(visibility.TierFriend, 1))
	router := newTestRouter(h, fakeIssuer{})
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	h.connect(t, a, b)

	ref := h.invite(c)
	w, env := do(t, router, http.MethodPost, "/requests", a,
		`{"recipient_id":"`+c.String()+`","invite_token":"`+ref.InviteToken+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	require.NotNil(t, env.Error)
	assert.Equal(t, "LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, "SELF", env.Error.Details["side"])
	assert.Equal(t, "1", env.Error.Details["limit"])
	assert.Equal(t, "1", env.Error.Details["current"])
}

func TestHandlerChangeTier(t *testing.T) {
	h := newHarness(t, nil)
	router := newTestRouter(h, fakeIssuer{})
	a, b := uuid.New(), uuid.New()
	h.connect(t, a, b)

	w, _ := do(t, router, http.MethodPut, "/"+b.String()+"/tier", a, `{"tier":"BEST"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, env := do(t, router, http.MethodPut, "/"+b.String()+"/tier", a, `{"tier":"close_friend"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var res ChangeTierResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.Applied)
	require.NotNil(t, res.Request)
	assert.Equal(t, visibility.TierCloseFriend, res.Request.NewTier)

	w, env = do(t, router, http.MethodPost, "/requests/"+res.Request.ID.String()+"/accept-tier", b, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conn ConnectionResponse
	require.NoError(t, json.Unmarshal(env.Data, &conn))
	assert.Equal(t, visibility.TierCloseFriend, conn.Tier)

	w, env = do(t, router, http.MethodPut, "/"+a.String()+"/tier", b, `{"tier":"FRIEND"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Applied)
	assert.Equal(t, visibility.TierFriend, res.Connection.Tier)
}

func TestHandlerListConnectionsPages(t *testing.T) {
	h := newHarness(t, nil)
	router := newTestRouter(h, fakeIssuer{})
	me := uuid.New()
	for i := 0; i < 3; i++ {
		h.connect(t, me, uuid.New())
	}

	w, env := do(t, router, http.MethodGet, "/?limit=2", me, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, env.Meta)
	assert.True(t, env.Meta.HasMore)
	assert.Equal(t, 2, env.Meta.Limit)
	require.NotEmpty(t, env.Meta.NextCursor)

	var first []ConnectionListItem
	require.NoError(t, json.Unmarshal(env.Data, &first))
	require.Len(t, first, 2)

	w, env = do(t, router, http.MethodGet, "/?limit=2&cursor="+env.Meta.NextCursor, me, "")
	require.Equal(t, http.StatusOK, w.Code)
	var second []ConnectionListItem
	require.NoError(t, json.Unmarshal(env.Data, &second))
	require.Len(t, second, 1)
	assert.False(t, env.Meta.HasMore)
	assert.NotContains(t, []uuid.UUID{first[0].PeerID, first[1].PeerID}, second[0].PeerID)

	w, _ = do(t, router, http.MethodGet, "/?cursor=not-a-cursor", me, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodGet, "/?tier=NO_RELATION", me, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerBlockAndUnblock(t *testing.T) {
	h := newHarness(t, nil)
	router := newTestRouter(h, fakeIssuer{})
	a, b := uuid.New(), uuid.New()
	h.connect(t, a, b)

	w, env := do(t, router, http.MethodPost, "/"+b.String()+"/block", a, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conn ConnectionResponse
	require.NoError(t, json.Unmarshal(env.Data, &conn))
	assert.Equal(t, StatusBlocked, conn.Status)
	require.NotNil(t, conn.BlockedBy)
	assert.Equal(t, a, *conn.BlockedBy)

	w, _ = do(t, router, http.MethodDelete, "/"+a.String()+"/block", b, "")
	assert.Equal(t, http.StatusForbidden, w.Code, "only the blocker may unblock")

	w, _ = do(t, router, http.MethodDelete, "/"+b.String()+"/block", a, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodPost, "/not-a-uuid/block", a, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerCreateInvite(t *testing.T) {
	h := newHarness(t, nil)
	me := uuid.New()

	w, env := do(t, newTestRouter(h, fakeIssuer{}), http.MethodPost, "/invites", me, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var inv Invite
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	assert.Equal(t, "tok-"+me.String(), inv.Token)

	w, env = do(t, newTestRouter(h, fakeIssuer{err: ErrInvitesUnavailable}), http.MethodPost, "/invites", me, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "INVITES_UNAVAILABLE", env.Error.Code)
}
