package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/core/ports"
)

type QAConfig struct {
	DefaultCount     int
	MinContentLength int
}

func (c QAConfig) normalized() QAConfig {
	if c.DefaultCount <= 0 {
		c.DefaultCount = 10
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = 20
	}
	return c
}

// QAUseCase samples messages for audit and drives the review state
// machine. The random source is injected so sampling is reproducible
// under test.
type QAUseCase struct {
	messages ports.MessageStore
	cfg      QAConfig

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewQAUseCase(messages ports.MessageStore, rng *rand.Rand, cfg QAConfig) *QAUseCase {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &QAUseCase{
		messages: messages,
		cfg:      cfg.normalized(),
		rng:      rng,
	}
}

// SelectForQA draws an unweighted random sample from the eligible pool
// and claims each pick with a conditional update. A pick claimed by a
// concurrent sampler is skipped, never double-selected.
func (uc *QAUseCase) SelectForQA(ctx context.Context, sel domain.QASelection) ([]domain.Message, error) {
	if sel.Count <= 0 {
		sel.Count = uc.cfg.DefaultCount
	}
	if sel.Sender == "" {
		sel.Sender = domain.SenderAI
	}
	if sel.MinLength <= 0 {
		sel.MinLength = uc.cfg.MinContentLength
	}

	candidates, err := uc.messages.ListQACandidates(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("list qa candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "select for qa", errors.New("no eligible messages"))
	}

	want := sel.Count
	if want > len(candidates) {
		want = len(candidates)
	}

	selected := make([]domain.Message, 0, want)
	for _, idx := range uc.perm(len(candidates)) {
		if len(selected) == want {
			break
		}
		msg := candidates[idx]
		claimed, err := uc.messages.MarkSelectedForQA(ctx, msg.ID, sel.Force)
		if err != nil {
			return nil, fmt.Errorf("mark selected for qa: %w", err)
		}
		if !claimed {
			continue
		}
		applySelection(&msg)
		selected = append(selected, msg)
	}

	if len(selected) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "select for qa", errors.New("all candidates were claimed concurrently"))
	}
	return selected, nil
}

// StartReview moves a PENDING message into IN_REVIEW for this reviewer.
func (uc *QAUseCase) StartReview(ctx context.Context, messageID, reviewer string) (*domain.Message, error) {
	if reviewer == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start review", errors.New("reviewer must not be blank"))
	}

	moved, err := uc.messages.StartReview(ctx, messageID, reviewer)
	if err != nil {
		return nil, fmt.Errorf("start review: %w", err)
	}
	if !moved {
		existing, err := uc.messages.GetByID(ctx, messageID)
		if err != nil {
			return nil, err
		}
		return nil, domain.WrapError(
			domain.ErrConflict,
			"start review",
			fmt.Errorf("message %s has qa_status %q, want %q", messageID, existing.QAStatus, domain.QAPending),
		)
	}

	msg, err := uc.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("reload message: %w", err)
	}
	return msg, nil
}

// CompleteReview validates and lands a review atomically. Validation
// failures and lost races leave the message untouched.
func (uc *QAUseCase) CompleteReview(ctx context.Context, messageID string, review domain.QAReview) (*domain.Message, error) {
	if review.Score < domain.QAScoreMin || review.Score > domain.QAScoreMax {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"complete review",
			fmt.Errorf("score %.2f outside [%.1f, %.1f]", review.Score, domain.QAScoreMin, domain.QAScoreMax),
		)
	}
	if !review.Status.Terminal() {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"complete review",
			fmt.Errorf("status %q is not a terminal review status", review.Status),
		)
	}

	msg, landed, err := uc.messages.CompleteReview(ctx, messageID, review)
	if err != nil {
		return nil, fmt.Errorf("complete review: %w", err)
	}
	if !landed {
		existing, err := uc.messages.GetByID(ctx, messageID)
		if err != nil {
			return nil, err
		}
		cause := fmt.Errorf("message %s already reviewed as %q", messageID, existing.QAStatus)
		if !existing.IsSelectedForQA {
			cause = fmt.Errorf("message %s was never selected for qa", messageID)
		}
		return nil, domain.WrapError(domain.ErrConflict, "complete review", cause)
	}
	return msg, nil
}

// Summary aggregates the review queue. Mean and grades cover completed
// reviews only; with zero reviews HasData is false and the mean is 0.
func (uc *QAUseCase) Summary(ctx context.Context) (domain.QASummary, error) {
	counts, err := uc.messages.CountByQAStatus(ctx)
	if err != nil {
		return domain.QASummary{}, fmt.Errorf("count by qa status: %w", err)
	}
	scores, err := uc.messages.ReviewedScores(ctx)
	if err != nil {
		return domain.QASummary{}, fmt.Errorf("list reviewed scores: %w", err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	grades := make(map[domain.Grade]int)
	sum := 0.0
	for _, score := range scores {
		sum += score
		grades[domain.GradeForScore(score)]++
	}

	summary := domain.QASummary{
		TotalSelected:     total,
		CountByStatus:     counts,
		ReviewedCount:     len(scores),
		GradeDistribution: grades,
		GeneratedAt:       time.Now().UTC(),
	}
	if len(scores) > 0 {
		summary.MeanScore = sum / float64(len(scores))
		summary.HasData = true
	}
	return summary, nil
}

func (uc *QAUseCase) perm(n int) []int {
	uc.rngMu.Lock()
	defer uc.rngMu.Unlock()
	return uc.rng.Perm(n)
}

// applySelection mirrors the conditional update on the local copy so the
// caller sees the post-selection state without a reload.
func applySelection(msg *domain.Message) {
	msg.IsSelectedForQA = true
	msg.QAStatus = domain.QAPending
	msg.QAScore = nil
	msg.QAFeedback = ""
	msg.QATags = nil
	msg.QAReviewer = ""
	msg.QAReviewedAt = nil
}
