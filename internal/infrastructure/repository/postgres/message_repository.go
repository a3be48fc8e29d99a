package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// messageColumns is the canonical select list; scanMessage depends on
// this exact order.
const messageColumns = `id, thread_id, sender, content,
	confidence, processing_ms, rag_enabled, rag_sources, was_summarized, fallback_used, COALESCE(model, ''),
	is_helpful, COALESCE(user_feedback, ''),
	is_selected_for_qa, qa_status, qa_score, COALESCE(qa_feedback, ''), qa_tags, COALESCE(qa_reviewer, ''), qa_reviewed_at,
	created_at`

func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	ragSources, err := jsonStrings(msg.Generation.RAGSources)
	if err != nil {
		return fmt.Errorf("marshal rag sources: %w", err)
	}
	qaTags, err := jsonStrings(msg.QATags)
	if err != nil {
		return fmt.Errorf("marshal qa tags: %w", err)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO messages (
	id, thread_id, sender, content,
	confidence, processing_ms, rag_enabled, rag_sources, was_summarized, fallback_used, model,
	is_helpful, user_feedback,
	is_selected_for_qa, qa_status, qa_score, qa_feedback, qa_tags, qa_reviewer, qa_reviewed_at,
	created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`,
		msg.ID, msg.ThreadID, string(msg.Sender), msg.Content,
		msg.Generation.Confidence, msg.Generation.ProcessingMS, msg.Generation.RAGEnabled, ragSources,
		msg.Generation.WasSummarized, msg.Generation.FallbackUsed, nullableString(msg.Generation.Model),
		msg.IsHelpful, nullableString(msg.UserFeedback),
		msg.IsSelectedForQA, string(msg.QAStatus), msg.QAScore, nullableString(msg.QAFeedback), qaTags,
		nullableString(msg.QAReviewer), msg.QAReviewedAt,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE id = $1
`, id)

	msg, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return msg, nil
}

func (r *MessageRepository) ListRecentByThread(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE thread_id = $1
ORDER BY created_at DESC
LIMIT $2
`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MessageRepository) SetUserFeedback(ctx context.Context, id string, isHelpful bool, feedback string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE messages
SET is_helpful = $2, user_feedback = $3
WHERE id = $1
`, id, isHelpful, nullableString(feedback))
	if err != nil {
		return fmt.Errorf("update message feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("message feedback rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *MessageRepository) ListQACandidates(ctx context.Context, sel domain.QASelection) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE sender = $1
  AND char_length(content) >= $2
  AND ($3::boolean OR NOT is_selected_for_qa)
ORDER BY created_at ASC
`, string(sel.Sender), sel.MinLength, sel.Force)
	if err != nil {
		return nil, fmt.Errorf("list qa candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan qa candidate: %w", err)
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qa candidates: %w", err)
	}
	return out, nil
}

// MarkSelectedForQA flips a message into the review queue. Without force
// the update is conditional on the message not being selected yet, so two
// overlapping sampling runs cannot both claim it. Force re-selection
// clears any previous review.
func (r *MessageRepository) MarkSelectedForQA(ctx context.Context, id string, force bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE messages
SET is_selected_for_qa = TRUE,
	qa_status = $2,
	qa_score = NULL,
	qa_feedback = NULL,
	qa_tags = '[]'::jsonb,
	qa_reviewer = NULL,
	qa_reviewed_at = NULL
WHERE id = $1 AND ($3::boolean OR NOT is_selected_for_qa)
`, id, string(domain.QAPending), force)
	if err != nil {
		return false, fmt.Errorf("mark selected for qa: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark selected rows affected: %w", err)
	}
	return affected > 0, nil
}

// StartReview moves PENDING to IN_REVIEW for exactly one caller.
func (r *MessageRepository) StartReview(ctx context.Context, id, reviewer string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE messages
SET qa_status = $2, qa_reviewer = $3
WHERE id = $1 AND is_selected_for_qa AND qa_status = $4
`, id, string(domain.QAInReview), nullableString(reviewer), string(domain.QAPending))
	if err != nil {
		return false, fmt.Errorf("start review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("start review rows affected: %w", err)
	}
	return affected > 0, nil
}

// CompleteReview persists the review atomically, guarded on the message
// still being reviewable. Concurrent completions race on the guard and
// exactly one wins.
func (r *MessageRepository) CompleteReview(ctx context.Context, id string, review domain.QAReview) (*domain.Message, bool, error) {
	qaTags, err := jsonStrings(review.Tags)
	if err != nil {
		return nil, false, fmt.Errorf("marshal review tags: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE messages
SET qa_status = $2, qa_score = $3, qa_feedback = $4, qa_tags = $5, qa_reviewer = $6, qa_reviewed_at = $7
WHERE id = $1 AND is_selected_for_qa AND qa_status IN ($8, $9)
RETURNING `+messageColumns+`
`,
		id, string(review.Status), review.Score, nullableString(review.Feedback), qaTags,
		nullableString(review.Reviewer), time.Now().UTC(),
		string(domain.QAPending), string(domain.QAInReview),
	)

	msg, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("complete review: %w", err)
	}
	return msg, true, nil
}

func (r *MessageRepository) CountByQAStatus(ctx context.Context) (map[domain.QAStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT qa_status, COUNT(*)
FROM messages
WHERE is_selected_for_qa
GROUP BY qa_status
`)
	if err != nil {
		return nil, fmt.Errorf("count by qa status: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.QAStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan qa status count: %w", err)
		}
		out[domain.QAStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qa status counts: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) ReviewedScores(ctx context.Context) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT qa_score
FROM messages
WHERE is_selected_for_qa AND qa_score IS NOT NULL AND qa_status IN ($1, $2, $3)
`, string(domain.QAApproved), string(domain.QARejected), string(domain.QANeedsRevision))
	if err != nil {
		return nil, fmt.Errorf("list reviewed scores: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("scan reviewed score: %w", err)
		}
		out = append(out, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviewed scores: %w", err)
	}
	return out, nil
}

// scanMessage reads one row in messageColumns order. Works for both
// sql.Row and sql.Rows scan functions.
func scanMessage(scan func(dest ...any) error) (*domain.Message, error) {
	var (
		msg           domain.Message
		sender        string
		ragSourcesRaw []byte
		qaTagsRaw     []byte
		isHelpful     sql.NullBool
		qaStatus      string
		qaScore       sql.NullFloat64
		reviewedAt    sql.NullTime
	)

	err := scan(
		&msg.ID, &msg.ThreadID, &sender, &msg.Content,
		&msg.Generation.Confidence, &msg.Generation.ProcessingMS, &msg.Generation.RAGEnabled, &ragSourcesRaw,
		&msg.Generation.WasSummarized, &msg.Generation.FallbackUsed, &msg.Generation.Model,
		&isHelpful, &msg.UserFeedback,
		&msg.IsSelectedForQA, &qaStatus, &qaScore, &msg.QAFeedback, &qaTagsRaw, &msg.QAReviewer, &reviewedAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Sender = domain.Sender(sender)
	msg.QAStatus = domain.QAStatus(qaStatus)
	if err := json.Unmarshal(ragSourcesRaw, &msg.Generation.RAGSources); err != nil {
		return nil, fmt.Errorf("unmarshal rag sources: %w", err)
	}
	if err := json.Unmarshal(qaTagsRaw, &msg.QATags); err != nil {
		return nil, fmt.Errorf("unmarshal qa tags: %w", err)
	}
	if isHelpful.Valid {
		v := isHelpful.Bool
		msg.IsHelpful = &v
	}
	if qaScore.Valid {
		v := qaScore.Float64
		msg.QAScore = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		msg.QAReviewedAt = &v
	}
	return &msg, nil
}
