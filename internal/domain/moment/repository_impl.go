package moment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mwork/moments-api/internal/pkg/cursor"
	"github.com/mwork/moments-api/internal/pkg/database"
)

const (
	momentColumns = `id, owner_id, story_id, visibility, tagged_user_ids, caption, created_at, deleted_at`
	storyColumns  = `id, owner_id, member_ids, visibility, latest_contribution_id, latest_contribution_at, created_at, deleted_at`
)

// Feed queries. $1 viewer, $2/$3 grant owners and labels, $4 owner filter
// (empty = any), $5 peers, $6 story heads, $7/$8 cursor, $9 limit.
const feedPredicate = `
	WITH grants AS (
		SELECT * FROM unnest($2::uuid[], $3::text[]) AS g(owner_id, label)
	)
	SELECT ` + momentColumns + ` FROM moments m
	WHERE m.deleted_at IS NULL
	  AND (
		m.id = ANY($6::uuid[])
		OR (
			m.story_id IS NULL
			AND (cardinality($4::uuid[]) = 0 OR m.owner_id = ANY($4::uuid[]))
			AND (
				m.owner_id = $1
				OR (
					m.owner_id = ANY($5::uuid[])
					AND (
						$1 = ANY(m.tagged_user_ids)
						OR EXISTS (SELECT 1 FROM grants g WHERE g.owner_id = m.owner_id AND g.label = m.visibility)
					)
				)
			)
		)
	  )
`

const (
	feedOlderQuery = feedPredicate + `
	  AND ($7::timestamptz IS NULL OR (m.created_at, m.id) < ($7, $8::uuid))
	ORDER BY m.created_at DESC, m.id DESC
	LIMIT $9`

	feedNewerQuery = feedPredicate + `
	  AND ($7::timestamptz IS NULL OR (m.created_at, m.id) > ($7, $8::uuid))
	ORDER BY m.created_at ASC, m.id ASC
	LIMIT $9`
)

const (
	storyMomentsOlderQuery = `
	SELECT ` + momentColumns + ` FROM moments
	WHERE story_id = $1 AND deleted_at IS NULL
	  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3::uuid))
	ORDER BY created_at DESC, id DESC
	LIMIT $4`

	storyMomentsNewerQuery = `
	SELECT ` + momentColumns + ` FROM moments
	WHERE story_id = $1 AND deleted_at IS NULL
	  AND ($2::timestamptz IS NULL OR (created_at, id) > ($2, $3::uuid))
	ORDER BY created_at ASC, id ASC
	LIMIT $4`
)

type sqlTransactor struct {
	db *sqlx.DB
}

// NewTransactor creates a Transactor backed by Postgres.
func NewTransactor(db *sqlx.DB) Transactor {
	return &sqlTransactor{db: db}
}

func (t *sqlTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s ContentStore) error) error {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &repository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *sqlTransactor) Store() ContentStore {
	return &repository{db: t.db}
}

type repository struct {
	db sqlx.ExtContext
}

func (r *repository) FindLatestPerStory(ctx context.Context, scope Scope) ([]uuid.UUID, error) {
	query := `
		WITH grants AS (
			SELECT * FROM unnest($2::uuid[], $3::text[]) AS g(owner_id, label)
		)
		SELECT s.latest_contribution_id FROM stories s
		WHERE s.deleted_at IS NULL
		  AND s.latest_contribution_id IS NOT NULL
		  AND (cardinality($4::uuid[]) = 0 OR s.owner_id = ANY($4::uuid[]))
		  AND (
			s.owner_id = $1
			OR ($1 = ANY(s.member_ids) AND s.owner_id = ANY($5::uuid[]))
			OR EXISTS (SELECT 1 FROM grants g WHERE g.owner_id = s.owner_id AND g.label = s.visibility)
		  )
	`
	var ids []uuid.UUID
	err := sqlx.SelectContext(ctx, r.db, &ids, query,
		scope.ViewerID,
		pq.Array(database.UUIDStrings(scope.grantOwners())),
		pq.Array(scope.grantLabels()),
		pq.Array(database.UUIDStrings(scope.Owners)),
		pq.Array(database.UUIDStrings(scope.Peers)),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) FindByCursor(ctx context.Context, scope Scope, storyHeads []uuid.UUID, page PageQuery) ([]*Moment, error) {
	query := feedOlderQuery
	if page.Direction == cursor.Newer {
		query = feedNewerQuery
	}
	at, id := cursorArgs(page.Cursor)

	var moments []*Moment
	err := sqlx.SelectContext(ctx, r.db, &moments, query,
		scope.ViewerID,
		pq.Array(database.UUIDStrings(scope.grantOwners())),
		pq.Array(scope.grantLabels()),
		pq.Array(database.UUIDStrings(scope.Owners)),
		pq.Array(database.UUIDStrings(scope.Peers)),
		pq.Array(database.UUIDStrings(storyHeads)),
		at, id, page.Limit,
	)
	if err != nil {
		return nil, err
	}
	return moments, nil
}

func (r *repository) FindStoryMoments(ctx context.Context, storyID uuid.UUID, page PageQuery) ([]*Moment, error) {
	query := storyMomentsOlderQuery
	if page.Direction == cursor.Newer {
		query = storyMomentsNewerQuery
	}
	at, id := cursorArgs(page.Cursor)

	var moments []*Moment
	if err := sqlx.SelectContext(ctx, r.db, &moments, query, storyID, at, id, page.Limit); err != nil {
		return nil, err
	}
	return moments, nil
}

func (r *repository) GetMoment(ctx context.Context, id uuid.UUID) (*Moment, error) {
	return r.getMoment(ctx, `SELECT `+momentColumns+` FROM moments WHERE id = $1`, id)
}

func (r *repository) GetMomentForUpdate(ctx context.Context, id uuid.UUID) (*Moment, error) {
	return r.getMoment(ctx, `SELECT `+momentColumns+` FROM moments WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) LatestInStory(ctx context.Context, storyID uuid.UUID) (*Moment, error) {
	return r.getMoment(ctx, `
		SELECT `+momentColumns+` FROM moments
		WHERE story_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, storyID)
}

func (r *repository) getMoment(ctx context.Context, query string, arg uuid.UUID) (*Moment, error) {
	var m Moment
	if err := sqlx.GetContext(ctx, r.db, &m, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *repository) GetStory(ctx context.Context, id uuid.UUID) (*Story, error) {
	return r.getStory(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)
}

func (r *repository) GetStoryForUpdate(ctx context.Context, id uuid.UUID) (*Story, error) {
	return r.getStory(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) getStory(ctx context.Context, query string, id uuid.UUID) (*Story, error) {
	var s Story
	if err := sqlx.GetContext(ctx, r.db, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) CreateMoment(ctx context.Context, m *Moment) error {
	query := `
		INSERT INTO moments (` + momentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.OwnerID, m.StoryID, m.Label, m.TaggedUserIDs, m.Caption, m.CreatedAt, m.DeletedAt,
	)
	return err
}

func (r *repository) CreateStory(ctx context.Context, s *Story) error {
	query := `
		INSERT INTO stories (` + storyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.OwnerID, s.MemberIDs, s.Label, s.LatestContributionID, s.LatestContributionAt, s.CreatedAt, s.DeletedAt,
	)
	return err
}

func (r *repository) SetStoryHead(ctx context.Context, s *Story) error {
	query := `
		UPDATE stories SET latest_contribution_id = $2, latest_contribution_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.LatestContributionID, s.LatestContributionAt)
	return err
}

func (r *repository) SoftDeleteMoment(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE moments SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	return err
}

func (r *repository) SoftDeleteStory(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE stories SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	return err
}

func (r *repository) UnlinkMoment(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE moments SET story_id = NULL WHERE id = $1`, id)
	return err
}

func cursorArgs(c *cursor.Cursor) (sql.NullTime, uuid.NullUUID) {
	if c == nil {
		return sql.NullTime{}, uuid.NullUUID{}
	}
	return sql.NullTime{Time: c.At, Valid: true}, uuid.NullUUID{UUID: c.ID, Valid: true}
}
