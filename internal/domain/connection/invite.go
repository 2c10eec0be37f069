package connection

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/mwork/moments-api/internal/pkg/database"
)

var ErrInvitesUnavailable = errors.New("invites are unavailable")

// Invite is a time-limited token that lets strangers send a connect request.
type Invite struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InviteStore keeps invites in Redis under the blake2b hash of the token,
// so a leaked keyspace does not leak usable tokens.
type InviteStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

// NewInviteStore creates invite store. rdb may be nil, which disables invites.
func NewInviteStore(rdb redis.Cmdable, ttl time.Duration) *InviteStore {
	return &InviteStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// CreateInvite issues a new invite owned by ownerID.
func (s *InviteStore) CreateInvite(ctx context.Context, ownerID uuid.UUID) (*Invite, error) {
	if s.rdb == nil {
		return nil, ErrInvitesUnavailable
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.rdb.Set(ctx, inviteKey(token), ownerID.String(), s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store invite: %w", err)
	}
	return &Invite{Token: token, ExpiresAt: s.now().Add(s.ttl).UTC()}, nil
}

// ResolveByToken implements InviteResolver.
func (s *InviteStore) ResolveByToken(ctx context.Context, ownerID uuid.UUID, token string) (uuid.UUID, error) {
	if s.rdb == nil {
		return uuid.Nil, ErrInvalidInvite
	}

	val, err := s.rdb.Get(ctx, inviteKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrInvalidInvite
		}
		return uuid.Nil, fmt.Errorf("get invite: %w", err)
	}

	owner, err := uuid.Parse(val)
	if err != nil || owner != ownerID {
		return uuid.Nil, ErrInvalidInvite
	}
	return owner, nil
}

func inviteKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return database.Key("invite", hex.EncodeToString(sum[:]))
}
