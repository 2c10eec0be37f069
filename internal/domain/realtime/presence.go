package realtime

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "ws:presence:user:"

// presenceStore keeps one lease per (user, instance). A user is online while
// any of their leases is unexpired.
type presenceStore interface {
	Refresh(ctx context.Context, instanceID string, userIDs []uuid.UUID, expiresAt time.Time) error
	Release(ctx context.Context, instanceID string, userID uuid.UUID) error
	Online(ctx context.Context, userIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error)
}

func presenceKey(userID uuid.UUID) string {
	return presenceKeyPrefix + userID.String()
}

// redisPresence stores leases in a sorted set per user. Members are instance
// ids scored by lease expiry in unix seconds.
type redisPresence struct {
	client *redis.Client
}

func (p redisPresence) Refresh(ctx context.Context, instanceID string, userIDs []uuid.UUID, expiresAt time.Time) error {
	stale := "(" + strconv.FormatInt(expiresAt.Add(-presenceTTL).Unix(), 10)

	pipe := p.client.Pipeline()
	for _, id := range userIDs {
		key := presenceKey(id)
		pipe.ZRemRangeByScore(ctx, key, "-inf", stale)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.Unix()), Member: instanceID})
		pipe.Expire(ctx, key, presenceTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p redisPresence) Release(ctx context.Context, instanceID string, userID uuid.UUID) error {
	return p.client.ZRem(ctx, presenceKey(userID), instanceID).Err()
}

func (p redisPresence) Online(ctx context.Context, userIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	online := make([]uuid.UUID, 0)
	if len(userIDs) == 0 {
		return online, nil
	}

	from := strconv.FormatInt(now.Unix(), 10)
	pipe := p.client.Pipeline()
	counts := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		counts[i] = pipe.ZCount(ctx, presenceKey(id), from, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	for i, id := range userIDs {
		if counts[i].Val() > 0 {
			online = append(online, id)
		}
	}
	return online, nil
}
