package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/core/ports"
)

type suggestionTemplate struct {
	Type           string
	Title          string
	Description    string
	Category       string
	OpeningMessage string
	FollowUp       bool
}

// suggestionCatalog is the fixed pool Generate draws from. Follow-up
// templates are only eligible when the user has at least one thread.
var suggestionCatalog = []suggestionTemplate{
	{
		Type:           "daily_checkin",
		Title:          "Daily check-in",
		Description:    "A short check-in on how today is going, mood and energy included.",
		Category:       "wellbeing",
		OpeningMessage: "I'd like to check in about my day.",
	},
	{
		Type:           "coping_skill",
		Title:          "Practice a coping skill",
		Description:    "Walk through a grounding or breathing exercise for stressful moments.",
		Category:       "stress",
		OpeningMessage: "Can you guide me through a quick exercise to settle my nerves?",
	},
	{
		Type:           "sleep_hygiene",
		Title:          "Wind-down routine",
		Description:    "Build an evening routine that makes falling asleep easier.",
		Category:       "sleep",
		OpeningMessage: "I want to improve how I wind down before bed.",
	},
	{
		Type:           "gratitude",
		Title:          "Gratitude moment",
		Description:    "Name a few things that went well recently, however small.",
		Category:       "gratitude",
		OpeningMessage: "Help me think of a few things I'm grateful for today.",
	},
	{
		Type:           "movement",
		Title:          "Gentle movement",
		Description:    "Pick an easy way to move your body that fits your energy today.",
		Category:       "activity",
		OpeningMessage: "What's a gentle way I could get moving today?",
	},
	{
		Type:           "follow_up",
		Title:          "Follow up on our last conversation",
		Description:    "Revisit what you talked about last time and see how things developed.",
		Category:       "general",
		OpeningMessage: "I'd like to follow up on what we discussed last time.",
		FollowUp:       true,
	},
}

// SuggestionUseCase generates conversation starters for a user. The
// random source is injected so generation is reproducible under test.
type SuggestionUseCase struct {
	suggestions ports.SuggestionStore
	threads     ports.ThreadStore

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewSuggestionUseCase(suggestions ports.SuggestionStore, threads ports.ThreadStore, rng *rand.Rand) *SuggestionUseCase {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SuggestionUseCase{
		suggestions: suggestions,
		threads:     threads,
		rng:         rng,
	}
}

func (uc *SuggestionUseCase) Generate(ctx context.Context, userID string, count int) ([]domain.ThreadSuggestion, error) {
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate suggestions", errors.New("user id must not be blank"))
	}
	if count <= 0 {
		count = 3
	}
	if count > len(suggestionCatalog) {
		count = len(suggestionCatalog)
	}

	basedOn := ""
	recent, err := uc.threads.ListRecentByUser(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("load recent thread: %w", err)
	}
	if len(recent) > 0 {
		basedOn = recent[0].ID
	}

	order, relevance := uc.draw(count)

	out := make([]domain.ThreadSuggestion, 0, count)
	for _, idx := range order {
		if len(out) == count {
			break
		}
		tpl := suggestionCatalog[idx]
		if tpl.FollowUp && basedOn == "" {
			continue
		}

		s := domain.ThreadSuggestion{
			ID:             uuid.NewString(),
			UserID:         userID,
			Type:           tpl.Type,
			Title:          tpl.Title,
			Description:    tpl.Description,
			Category:       tpl.Category,
			OpeningMessage: tpl.OpeningMessage,
			Relevance:      relevance[len(out)],
			CreatedAt:      time.Now().UTC(),
		}
		if tpl.FollowUp {
			s.BasedOnThread = basedOn
		}
		if err := uc.suggestions.Insert(ctx, &s); err != nil {
			return nil, fmt.Errorf("insert suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (uc *SuggestionUseCase) List(ctx context.Context, userID string, limit int) ([]domain.ThreadSuggestion, error) {
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list suggestions", errors.New("user id must not be blank"))
	}
	if limit <= 0 {
		limit = 10
	}
	out, err := uc.suggestions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return out, nil
}

// draw produces the template visit order and one relevance value per
// slot in a single locked section, keeping output stable for a seeded
// source.
func (uc *SuggestionUseCase) draw(count int) ([]int, []float64) {
	uc.rngMu.Lock()
	defer uc.rngMu.Unlock()

	order := uc.rng.Perm(len(suggestionCatalog))
	relevance := make([]float64, count)
	for i := range relevance {
		relevance[i] = 0.5 + uc.rng.Float64()*0.5
	}
	return order, relevance
}
