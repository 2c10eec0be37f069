package connection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/cursor"
)

// ConnectionStore persists connection rows.
type ConnectionStore interface {
	ConnectedCounter

	FindByID(ctx context.Context, id uuid.UUID) (*Connection, error)
	// FindByIDForUpdate locks the row until the transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Connection, error)
	// LockPair serializes lifecycle operations on a pair, including first-time creation.
	LockPair(ctx context.Context, pairID uuid.UUID) error
	// Save inserts or updates by id. CreatedAt is kept on update.
	Save(ctx context.Context, c *Connection) error

	ListPeers(ctx context.Context, userID uuid.UUID) ([]Peer, error)
	ListConnections(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Listed, error)
	// FindMutual returns, per target, users CONNECTED to both viewer and target.
	FindMutual(ctx context.Context, viewerID uuid.UUID, targetIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
}

// RequestStore persists connection requests.
type RequestStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Request, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	// FindPendingBetween returns the pending request of the given kind for a pair.
	FindPendingBetween(ctx context.Context, pairID uuid.UUID, tierChange bool) (*Request, error)
	Save(ctx context.Context, r *Request) error
	// CancelPendingBetween cancels every pending request of the pair.
	CancelPendingBetween(ctx context.Context, pairID uuid.UUID, at time.Time) (int, error)
	ListPending(ctx context.Context, userID uuid.UUID, dir PendingDirection, limit int) ([]*Request, error)
}

// Stores groups the stores bound to one unit of work.
type Stores struct {
	Connections ConnectionStore
	Requests    RequestStore
}

// Transactor runs fn in a transaction, committing when fn returns nil.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
	// Stores returns stores bound to the pool, for reads outside a transaction.
	Stores() Stores
}

// ListFilter narrows ListConnections. Cursor keys are (updated_at, id).
type ListFilter struct {
	Tier   *visibility.Tier
	Cursor *cursor.Cursor
	Limit  int
}
