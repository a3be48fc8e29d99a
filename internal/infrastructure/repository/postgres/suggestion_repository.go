package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

type SuggestionRepository struct {
	db *sql.DB
}

func NewSuggestionRepository(db *sql.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

func (r *SuggestionRepository) Insert(ctx context.Context, s *domain.ThreadSuggestion) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO thread_suggestions (id, user_id, based_on_thread, suggestion_type, title, description, category, opening_message, relevance, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		s.ID, s.UserID, s.BasedOnThread, s.Type, s.Title, s.Description, s.Category,
		s.OpeningMessage, s.Relevance, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

func (r *SuggestionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ThreadSuggestion, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, based_on_thread, suggestion_type, title, description, category, opening_message, relevance, created_at
FROM thread_suggestions
WHERE user_id = $1
ORDER BY relevance DESC, created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ThreadSuggestion, 0, limit)
	for rows.Next() {
		var s domain.ThreadSuggestion
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.BasedOnThread,
			&s.Type,
			&s.Title,
			&s.Description,
			&s.Category,
			&s.OpeningMessage,
			&s.Relevance,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return out, nil
}
