package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/core/ports"
)

// fallbackReply is substituted when the completion service cannot
// produce a usable answer. The turn is still recorded and answered.
const fallbackReply = "I'm sorry, I'm having trouble putting together a good answer right now. " +
	"Could you give me a moment and try again?"

// defaultConfidence is recorded when the model reports no confidence of
// its own.
const defaultConfidence = 0.9

type ConversationConfig struct {
	RAGEnabled    bool
	TopK          int
	HistoryWindow int
}

func (c ConversationConfig) normalized() ConversationConfig {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	return c
}

// ConversationUseCase drives a conversation turn end to end: context
// assembly, completion, length budget, persistence.
type ConversationUseCase struct {
	threads       ports.ThreadStore
	messages      ports.MessageStore
	knowledge     ports.KnowledgeService
	completion    ports.CompletionClient
	personalities ports.PersonalityProvider
	cfg           ConversationConfig

	threadLocks *keyedMutex
}

func NewConversationUseCase(
	threads ports.ThreadStore,
	messages ports.MessageStore,
	knowledge ports.KnowledgeService,
	completion ports.CompletionClient,
	personalities ports.PersonalityProvider,
	cfg ConversationConfig,
) *ConversationUseCase {
	return &ConversationUseCase{
		threads:       threads,
		messages:      messages,
		knowledge:     knowledge,
		completion:    completion,
		personalities: personalities,
		cfg:           cfg.normalized(),
		threadLocks:   newKeyedMutex(),
	}
}

func (uc *ConversationUseCase) CreateThread(ctx context.Context, userID, title, category string) (*domain.Thread, string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "create thread", errors.New("user id must not be blank"))
	}
	if strings.TrimSpace(title) == "" {
		title = "New conversation"
	}
	if strings.TrimSpace(category) == "" {
		category = "general"
	}

	now := time.Now().UTC()
	thread := &domain.Thread{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.threads.Create(ctx, thread); err != nil {
		return nil, "", fmt.Errorf("create thread: %w", err)
	}

	greeting := ""
	if persona, err := uc.personalities.Default(); err == nil {
		greeting = persona.Greeting
	} else {
		slog.Warn("thread_greeting_degraded", "error", err)
	}
	return thread, greeting, nil
}

// Respond runs one conversation turn. Turns on the same thread are
// serialized; the user message is persisted before generation so it
// survives any downstream failure.
func (uc *ConversationUseCase) Respond(ctx context.Context, threadID, userText string) (*domain.Message, error) {
	start := time.Now()

	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "respond", errors.New("message content must not be blank"))
	}

	unlock := uc.threadLocks.lock(threadID)
	defer unlock()

	thread, err := uc.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}

	persona, err := uc.personalities.Default()
	if err != nil {
		return nil, fmt.Errorf("load personality: %w", err)
	}

	userMsg := &domain.Message{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		Sender:    domain.SenderUser,
		Content:   userText,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.messages.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := uc.loadHistory(ctx, thread.ID)
	if err != nil {
		return nil, err
	}

	contextBlock, ragSources := uc.retrieveContext(ctx, userText)

	content, meta, err := uc.generate(ctx, history, persona, contextBlock)
	if err != nil {
		return nil, err
	}

	content, meta.WasSummarized = uc.enforceWordBudget(ctx, content, persona.MaxResponseWords)

	meta.RAGEnabled = uc.cfg.RAGEnabled
	meta.RAGSources = ragSources
	meta.ProcessingMS = time.Since(start).Milliseconds()

	aiMsg := &domain.Message{
		ID:         uuid.NewString(),
		ThreadID:   thread.ID,
		Sender:     domain.SenderAI,
		Content:    content,
		Generation: meta,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.messages.Append(ctx, aiMsg); err != nil {
		return nil, fmt.Errorf("persist ai message: %w", err)
	}

	if err := uc.threads.Touch(ctx, thread.ID); err != nil {
		slog.Warn("thread_touch_failed", "thread_id", thread.ID, "error", err)
	}
	return aiMsg, nil
}

func (uc *ConversationUseCase) ListMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	if _, err := uc.threads.GetByID(ctx, threadID); err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	msgs, err := uc.messages.ListRecentByThread(ctx, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (uc *ConversationUseCase) RecordFeedback(ctx context.Context, messageID string, isHelpful bool, feedback string) error {
	if err := uc.messages.SetUserFeedback(ctx, messageID, isHelpful, feedback); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// loadHistory returns the recency window in chronological order. The
// just-persisted user message is the final entry.
func (uc *ConversationUseCase) loadHistory(ctx context.Context, threadID string) ([]domain.ChatMessage, error) {
	msgs, err := uc.messages.ListRecentByThread(ctx, threadID, uc.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, domain.ChatMessage{
			Role:    domain.RoleForSender(m.Sender),
			Content: m.Content,
		})
	}
	return history, nil
}

// retrieveContext runs retrieval when RAG is on. Any retrieval problem
// degrades to answering without context.
func (uc *ConversationUseCase) retrieveContext(ctx context.Context, userText string) (string, []string) {
	sources := []string{}
	if !uc.cfg.RAGEnabled {
		return "", sources
	}

	hits, err := uc.knowledge.Search(ctx, userText, uc.cfg.TopK)
	if err != nil {
		slog.Warn("respond_rag_degraded", "error", err)
		return "", sources
	}
	if len(hits) == 0 {
		return "", sources
	}

	return buildContextBlock(hits), sourceTitles(hits)
}

func (uc *ConversationUseCase) generate(
	ctx context.Context,
	history []domain.ChatMessage,
	persona domain.PersonalityConfig,
	contextBlock string,
) (string, domain.GenerationMetadata, error) {
	systemPrompt := persona.SystemPrompt
	if contextBlock != "" {
		systemPrompt = systemPrompt + "\n\n" + contextBlock
	}

	result, err := uc.completion.Chat(ctx, domain.ChatRequest{
		Messages:     history,
		SystemPrompt: systemPrompt,
		Temperature:  persona.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", domain.GenerationMetadata{}, fmt.Errorf("chat completion: %w", err)
		}
		slog.Warn("respond_fallback", "error", err)
		return fallbackReply, domain.GenerationMetadata{FallbackUsed: true, Confidence: 0}, nil
	}

	content := strings.TrimSpace(result.Content)
	if content == "" {
		slog.Warn("respond_fallback", "error", "empty completion content")
		return fallbackReply, domain.GenerationMetadata{FallbackUsed: true, Confidence: 0}, nil
	}

	confidence := result.Confidence
	if confidence < 0 {
		confidence = defaultConfidence
	}
	return content, domain.GenerationMetadata{Confidence: confidence, Model: result.Model}, nil
}

// enforceWordBudget keeps the reply within the personality's word
// budget. Over-budget replies are summarized; if the model is still
// non-compliant the summary is truncated at a word boundary. Reports
// whether the original reply was shortened.
func (uc *ConversationUseCase) enforceWordBudget(ctx context.Context, text string, budget int) (string, bool) {
	if budget <= 0 {
		return text, false
	}
	words := strings.Fields(text)
	if len(words) <= budget {
		return text, false
	}

	summary, err := uc.completion.Summarize(ctx, text, budget)
	if err != nil {
		slog.Warn("summarize_degraded", "error", err)
	} else if s := strings.TrimSpace(summary); s != "" {
		words = strings.Fields(s)
		if len(words) <= budget {
			return s, true
		}
	}
	return strings.Join(words[:budget], " "), true
}

func buildContextBlock(hits []domain.RetrievalHit) string {
	var b strings.Builder
	b.WriteString("Relevant knowledge base context:\n")
	for i, hit := range hits {
		title := hit.DocumentTitle
		if title == "" {
			title = hit.DocumentID
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, title, hit.Content)
	}
	b.WriteString("\nUse this context when it helps answer the user. Ignore it when it is not relevant.")
	return b.String()
}

// sourceTitles lists the distinct document titles behind the hits,
// first-seen order preserved.
func sourceTitles(hits []domain.RetrievalHit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		title := hit.DocumentTitle
		if title == "" {
			title = hit.DocumentID
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, title)
	}
	return out
}
