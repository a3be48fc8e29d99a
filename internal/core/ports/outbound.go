package ports

import (
	"context"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

// Chunker splits raw text into bounded, overlapping spans.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CompletionClient talks to the external language model.
type CompletionClient interface {
	Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResult, error)
	Summarize(ctx context.Context, text string, maxWords int) (string, error)
}

// VectorIndex stores chunk vectors and serves similarity queries.
// Query results are ordered by non-increasing score; ties resolve
// deterministically. Reset is atomic with respect to concurrent queries.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) (int, error)
	Query(ctx context.Context, vector []float32, topK int) ([]domain.RetrievalHit, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// DocumentLedger tracks ingested documents and their chunk counts.
type DocumentLedger interface {
	Create(ctx context.Context, doc *domain.Document) error
	MarkReady(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id string, reason string) error
	CountReady(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

// ThreadStore persists conversation threads.
type ThreadStore interface {
	Create(ctx context.Context, thread *domain.Thread) error
	GetByID(ctx context.Context, id string) (*domain.Thread, error)
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]domain.Thread, error)
	Touch(ctx context.Context, id string) error
}

// MessageStore persists messages and their QA state. MarkSelectedForQA
// and CompleteReview are conditional updates: they report false when the
// guard does not hold, which is how concurrent samplers and reviewers
// are kept from clobbering each other.
type MessageStore interface {
	Append(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListRecentByThread(ctx context.Context, threadID string, limit int) ([]domain.Message, error)
	SetUserFeedback(ctx context.Context, id string, isHelpful bool, feedback string) error

	ListQACandidates(ctx context.Context, sel domain.QASelection) ([]domain.Message, error)
	MarkSelectedForQA(ctx context.Context, id string, force bool) (bool, error)
	StartReview(ctx context.Context, id, reviewer string) (bool, error)
	CompleteReview(ctx context.Context, id string, review domain.QAReview) (*domain.Message, bool, error)
	CountByQAStatus(ctx context.Context) (map[domain.QAStatus]int, error)
	ReviewedScores(ctx context.Context) ([]float64, error)
}

// SuggestionStore persists generated thread suggestions.
type SuggestionStore interface {
	Insert(ctx context.Context, s *domain.ThreadSuggestion) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ThreadSuggestion, error)
}

// PersonalityProvider resolves personality configurations. Default
// returns the single active default config.
type PersonalityProvider interface {
	Default() (domain.PersonalityConfig, error)
	ByName(name string) (domain.PersonalityConfig, error)
}

// IngestQueue carries file-ingestion jobs from the API to the worker.
type IngestQueue interface {
	PublishIngestJob(ctx context.Context, job IngestJob) error
	SubscribeIngestJobs(ctx context.Context, handler func(context.Context, IngestJob) error) error
}

// IngestJob is the queue payload for asynchronous file ingestion.
type IngestJob struct {
	Path     string            `json:"path"`
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	QueuedAt int64             `json:"queued_at,omitempty"`
}

// TextExtractor pulls plain text out of a source file.
type TextExtractor interface {
	Supports(path string) bool
	Extract(ctx context.Context, path string) (string, error)
}
