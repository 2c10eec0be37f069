package conversation

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines private conversation data access
type Repository interface {
	// Upsert creates the row or moves it to c.Status. changed is false when
	// the row already had that status, in which case c is left untouched.
	Upsert(ctx context.Context, c *Conversation) (changed bool, err error)
	FindByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates conversation repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, c *Conversation) (bool, error) {
	query := `
		INSERT INTO private_conversations (id, user_low, user_high, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		WHERE private_conversations.status IS DISTINCT FROM EXCLUDED.status
		RETURNING created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		c.ID, c.UserLow, c.UserHigh, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `
		SELECT id, user_low, user_high, status, created_at, updated_at
		FROM private_conversations WHERE id = $1
	`
	var c Conversation
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
