package ports

import (
	"context"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

// KnowledgeService is the inbound contract of the RAG retriever.
type KnowledgeService interface {
	Search(ctx context.Context, query string, topK int) ([]domain.RetrievalHit, error)
	AddDocuments(ctx context.Context, docs []domain.DocumentInput) (domain.IngestReport, error)
	AddDocumentFromFile(ctx context.Context, path, title string, metadata map[string]string) (domain.IngestOutcome, error)
	ResetCollection(ctx context.Context) error
	GetCollectionStats(ctx context.Context) (domain.CollectionStats, error)
}

// ConversationService is the inbound contract of the response
// orchestrator and thread glue.
type ConversationService interface {
	CreateThread(ctx context.Context, userID, title, category string) (*domain.Thread, string, error)
	Respond(ctx context.Context, threadID, userText string) (*domain.Message, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error)
	RecordFeedback(ctx context.Context, messageID string, isHelpful bool, feedback string) error
}

// QAService is the inbound contract of the QA sampler and reviewer.
type QAService interface {
	SelectForQA(ctx context.Context, sel domain.QASelection) ([]domain.Message, error)
	StartReview(ctx context.Context, messageID, reviewer string) (*domain.Message, error)
	CompleteReview(ctx context.Context, messageID string, review domain.QAReview) (*domain.Message, error)
	Summary(ctx context.Context) (domain.QASummary, error)
}

// SuggestionService generates and lists thread suggestions.
type SuggestionService interface {
	Generate(ctx context.Context, userID string, count int) ([]domain.ThreadSuggestion, error)
	List(ctx context.Context, userID string, limit int) ([]domain.ThreadSuggestion, error)
}
