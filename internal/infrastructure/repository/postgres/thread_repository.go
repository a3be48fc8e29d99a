package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

type ThreadRepository struct {
	db *sql.DB
}

func NewThreadRepository(db *sql.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) Create(ctx context.Context, thread *domain.Thread) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO threads (id, user_id, title, category, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, thread.ID, thread.UserID, thread.Title, thread.Category, thread.CreatedAt, thread.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*domain.Thread, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, title, category, created_at, updated_at
FROM threads
WHERE id = $1
`, id)

	var thread domain.Thread
	err := row.Scan(
		&thread.ID,
		&thread.UserID,
		&thread.Title,
		&thread.Category,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	return &thread, nil
}

func (r *ThreadRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]domain.Thread, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, title, category, created_at, updated_at
FROM threads
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Thread, 0, limit)
	for rows.Next() {
		var thread domain.Thread
		if err := rows.Scan(
			&thread.ID,
			&thread.UserID,
			&thread.Title,
			&thread.Category,
			&thread.CreatedAt,
			&thread.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		out = append(out, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return out, nil
}

// Touch bumps updated_at so the thread surfaces in recency-ordered lists.
func (r *ThreadRepository) Touch(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE threads
SET updated_at = $2
WHERE id = $1
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch thread rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("thread %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
