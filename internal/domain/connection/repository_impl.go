package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/database"
)

const (
	connectionColumns = `id, user_low, user_high, tier, status, blocked_by, created_at, updated_at`
	requestColumns    = `id, pair_id, requester_id, recipient_id, new_tier, old_tier, status, message, created_at, resolved_at`

	sqlStateUniqueViolation = "23505"
)

// sqlTransactor implements Transactor over a sqlx pool.
type sqlTransactor struct {
	db *sqlx.DB
}

// NewTransactor creates a Transactor backed by Postgres.
func NewTransactor(db *sqlx.DB) Transactor {
	return &sqlTransactor{db: db}
}

func (t *sqlTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, storesOn(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *sqlTransactor) Stores() Stores {
	return storesOn(t.db)
}

func storesOn(ext sqlx.ExtContext) Stores {
	return Stores{
		Connections: &connectionRepository{db: ext},
		Requests:    &requestRepository{db: ext},
	}
}

type connectionRepository struct {
	db sqlx.ExtContext
}

// NewConnectionRepository creates a pool-bound connection store.
func NewConnectionRepository(db *sqlx.DB) ConnectionStore {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return r.find(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id)
}

func (r *connectionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return r.find(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1 FOR UPDATE`, id)
}

func (r *connectionRepository) find(ctx context.Context, query string, id uuid.UUID) (*Connection, error) {
	var c Connection
	if err := sqlx.GetContext(ctx, r.db, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *connectionRepository) LockPair(ctx context.Context, pairID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, pairID.String())
	return err
}

func (r *connectionRepository) Save(ctx context.Context, c *Connection) error {
	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			blocked_by = EXCLUDED.blocked_by,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		c.ID, c.UserLow, c.UserHigh, c.Tier, c.Status, c.BlockedBy, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.CreatedAt)
}

func (r *connectionRepository) CountConnected(ctx context.Context, userID uuid.UUID, tiers []visibility.Tier) (int, error) {
	query := `
		SELECT COUNT(*) FROM connections
		WHERE (user_low = $1 OR user_high = $1)
		  AND status = 'CONNECTED'
		  AND tier = ANY($2)
	`
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, query, userID, pq.Array(tierStrings(tiers)))
	return count, err
}

func (r *connectionRepository) ListPeers(ctx context.Context, userID uuid.UUID) ([]Peer, error) {
	query := `
		SELECT CASE WHEN user_low = $1 THEN user_high ELSE user_low END AS peer_id, tier
		FROM connections
		WHERE (user_low = $1 OR user_high = $1) AND status = 'CONNECTED'
	`
	var peers []Peer
	if err := sqlx.SelectContext(ctx, r.db, &peers, query, userID); err != nil {
		return nil, err
	}
	return peers, nil
}

func (r *connectionRepository) ListConnections(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Listed, error) {
	query := `
		SELECT id,
		       CASE WHEN user_low = $1 THEN user_high ELSE user_low END AS peer_id,
		       tier, created_at, updated_at
		FROM connections
		WHERE (user_low = $1 OR user_high = $1)
		  AND status = 'CONNECTED'
		  AND ($2::text IS NULL OR tier = $2)
		  AND ($3::timestamptz IS NULL OR (updated_at, id) < ($3, $4::uuid))
		ORDER BY updated_at DESC, id DESC
		LIMIT $5
	`
	var tier sql.NullString
	if filter.Tier != nil {
		tier = sql.NullString{String: string(*filter.Tier), Valid: true}
	}
	var at sql.NullTime
	var id uuid.NullUUID
	if filter.Cursor != nil {
		at = sql.NullTime{Time: filter.Cursor.At, Valid: true}
		id = uuid.NullUUID{UUID: filter.Cursor.ID, Valid: true}
	}

	var rows []Listed
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, userID, tier, at, id, filter.Limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *connectionRepository) FindMutual(ctx context.Context, viewerID uuid.UUID, targetIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(targetIDs))
	for _, id := range targetIDs {
		out[id] = []uuid.UUID{}
	}
	if len(targetIDs) == 0 {
		return out, nil
	}

	query := `
		WITH viewer_peers AS (
			SELECT CASE WHEN user_low = $1 THEN user_high ELSE user_low END AS peer_id
			FROM connections
			WHERE (user_low = $1 OR user_high = $1) AND status = 'CONNECTED'
		),
		target_peers AS (
			SELECT user_low AS target_id, user_high AS peer_id FROM connections
			WHERE user_low = ANY($2::uuid[]) AND status = 'CONNECTED'
			UNION ALL
			SELECT user_high AS target_id, user_low AS peer_id FROM connections
			WHERE user_high = ANY($2::uuid[]) AND status = 'CONNECTED'
		)
		SELECT tp.target_id, tp.peer_id
		FROM target_peers tp
		JOIN viewer_peers vp ON vp.peer_id = tp.peer_id
		WHERE tp.peer_id <> $1 AND tp.peer_id <> tp.target_id
		ORDER BY tp.target_id, tp.peer_id
	`
	rows, err := r.db.QueryxContext(ctx, query, viewerID, pq.Array(database.UUIDStrings(targetIDs)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var targetID, mutualID uuid.UUID
		if err := rows.Scan(&targetID, &mutualID); err != nil {
			return nil, err
		}
		out[targetID] = append(out[targetID], mutualID)
	}
	return out, rows.Err()
}

type requestRepository struct {
	db sqlx.ExtContext
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.find(ctx, `SELECT `+requestColumns+` FROM connection_requests WHERE id = $1`, id)
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.find(ctx, `SELECT `+requestColumns+` FROM connection_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *requestRepository) FindPendingBetween(ctx context.Context, pairID uuid.UUID, tierChange bool) (*Request, error) {
	query := `
		SELECT ` + requestColumns + ` FROM connection_requests
		WHERE pair_id = $1 AND status = 'PENDING' AND (old_tier IS NOT NULL) = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.find(ctx, query, pairID, tierChange)
}

func (r *requestRepository) find(ctx context.Context, query string, args ...interface{}) (*Request, error) {
	var req Request
	if err := sqlx.GetContext(ctx, r.db, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) Save(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO connection_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			resolved_at = EXCLUDED.resolved_at
	`
	var oldTier sql.NullString
	if req.OldTier != nil {
		oldTier = sql.NullString{String: string(*req.OldTier), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.PairID, req.RequesterID, req.RecipientID, req.NewTier, oldTier,
		req.Status, req.Message, req.CreatedAt, req.ResolvedAt,
	)
	return mapRequestWriteError(err)
}

func (r *requestRepository) CancelPendingBetween(ctx context.Context, pairID uuid.UUID, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE connection_requests SET status = 'CANCELED', resolved_at = $2
		WHERE pair_id = $1 AND status = 'PENDING'
	`, pairID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *requestRepository) ListPending(ctx context.Context, userID uuid.UUID, dir PendingDirection, limit int) ([]*Request, error) {
	query := `
		SELECT ` + requestColumns + ` FROM connection_requests
		WHERE recipient_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	if dir == PendingOutgoing {
		query = `
		SELECT ` + requestColumns + ` FROM connection_requests
		WHERE requester_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	}

	var reqs []*Request
	if err := sqlx.SelectContext(ctx, r.db, &reqs, query, userID, limit); err != nil {
		return nil, err
	}
	return reqs, nil
}

// mapRequestWriteError turns a hit on the pending-request unique index into
// the AlreadyExists error a concurrent duplicate would have produced.
func mapRequestWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == sqlStateUniqueViolation {
		return alreadyExists(fmt.Errorf("%w: %w", ErrConcurrentRequestConflict, err))
	}
	return err
}

func tierStrings(tiers []visibility.Tier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = string(t)
	}
	return out
}
