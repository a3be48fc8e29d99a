package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/core/ports"
)

const maxIngestBatch = 100

// KnowledgeConfig carries the static collection facts reported by stats
// and the retrieval defaults.
type KnowledgeConfig struct {
	CollectionName string
	EmbeddingModel string
	ChunkSize      int
	DefaultTopK    int
	MaxTopK        int
}

func (c KnowledgeConfig) normalized() KnowledgeConfig {
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 5
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = 50
	}
	return c
}

type KnowledgeUseCase struct {
	ledger    ports.DocumentLedger
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	extractor ports.TextExtractor
	cfg       KnowledgeConfig
}

func NewKnowledgeUseCase(
	ledger ports.DocumentLedger,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	extractor ports.TextExtractor,
	cfg KnowledgeConfig,
) *KnowledgeUseCase {
	return &KnowledgeUseCase{
		ledger:    ledger,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		extractor: extractor,
		cfg:       cfg.normalized(),
	}
}

// Search returns the top-k hits for a query. Retrieval degradation is
// not an error: an unreachable embedder or index yields an empty result
// so callers can answer without context.
func (uc *KnowledgeUseCase) Search(ctx context.Context, query string, topK int) ([]domain.RetrievalHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search knowledge", errors.New("query must not be blank"))
	}
	if topK <= 0 {
		topK = uc.cfg.DefaultTopK
	}
	if topK > uc.cfg.MaxTopK {
		topK = uc.cfg.MaxTopK
	}

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Warn("search_degraded", "stage", "embed", "error", err)
		return []domain.RetrievalHit{}, nil
	}

	hits, err := uc.index.Query(ctx, vector, topK)
	if err != nil {
		slog.Warn("search_degraded", "stage", "index_query", "error", err)
		return []domain.RetrievalHit{}, nil
	}
	if hits == nil {
		hits = []domain.RetrievalHit{}
	}
	return hits, nil
}

func (uc *KnowledgeUseCase) AddDocuments(ctx context.Context, docs []domain.DocumentInput) (domain.IngestReport, error) {
	if len(docs) == 0 {
		return domain.IngestReport{}, domain.WrapError(domain.ErrInvalidInput, "add documents", errors.New("empty document batch"))
	}
	if len(docs) > maxIngestBatch {
		return domain.IngestReport{}, domain.WrapError(
			domain.ErrInvalidInput,
			"add documents",
			fmt.Errorf("batch size %d exceeds limit %d", len(docs), maxIngestBatch),
		)
	}

	report := domain.IngestReport{Outcomes: make([]domain.IngestOutcome, 0, len(docs))}
	for _, doc := range docs {
		outcome, err := uc.ingestOne(ctx, doc)
		if err != nil && outcome.Error == "" {
			outcome.Error = err.Error()
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func (uc *KnowledgeUseCase) AddDocumentFromFile(ctx context.Context, path, title string, metadata map[string]string) (domain.IngestOutcome, error) {
	if !uc.extractor.Supports(path) {
		return domain.IngestOutcome{Title: title}, domain.WrapError(
			domain.ErrInvalidInput,
			"add document from file",
			fmt.Errorf("unsupported file type: %s", filepath.Ext(path)),
		)
	}

	text, err := uc.extractor.Extract(ctx, path)
	if err != nil {
		return domain.IngestOutcome{Title: title}, fmt.Errorf("extract file text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.IngestOutcome{Title: title}, domain.WrapError(
			domain.ErrInvalidInput,
			"add document from file",
			errors.New("file contains no extractable text"),
		)
	}

	if strings.TrimSpace(title) == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	outcome, err := uc.ingestOne(ctx, domain.DocumentInput{
		Title:    title,
		Content:  text,
		Source:   path,
		Metadata: metadata,
	})
	if err != nil {
		if outcome.Error == "" {
			outcome.Error = err.Error()
		}
		return outcome, err
	}
	return outcome, nil
}

func (uc *KnowledgeUseCase) ResetCollection(ctx context.Context) error {
	if err := uc.index.Reset(ctx); err != nil {
		return fmt.Errorf("reset vector index: %w", err)
	}
	if err := uc.ledger.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear document ledger: %w", err)
	}
	return nil
}

func (uc *KnowledgeUseCase) GetCollectionStats(ctx context.Context) (domain.CollectionStats, error) {
	documents, err := uc.ledger.CountReady(ctx)
	if err != nil {
		return domain.CollectionStats{}, fmt.Errorf("count ready documents: %w", err)
	}
	chunks, err := uc.index.Count(ctx)
	if err != nil {
		return domain.CollectionStats{}, fmt.Errorf("count indexed chunks: %w", err)
	}
	return domain.CollectionStats{
		DocumentCount:  documents,
		ChunkCount:     chunks,
		CollectionName: uc.cfg.CollectionName,
		EmbeddingModel: uc.cfg.EmbeddingModel,
		ChunkSize:      uc.cfg.ChunkSize,
	}, nil
}

// ingestOne runs the chunk/embed/index pipeline for a single document.
// Failures after ledger creation mark the ledger row failed so the
// document is visible with its error instead of vanishing.
func (uc *KnowledgeUseCase) ingestOne(ctx context.Context, input domain.DocumentInput) (domain.IngestOutcome, error) {
	outcome := domain.IngestOutcome{Title: input.Title}

	if strings.TrimSpace(input.Title) == "" {
		return outcome, domain.WrapError(domain.ErrInvalidInput, "ingest document", errors.New("title must not be blank"))
	}
	if strings.TrimSpace(input.Content) == "" {
		return outcome, domain.WrapError(domain.ErrInvalidInput, "ingest document", errors.New("content must not be blank"))
	}

	doc := &domain.Document{
		ID:        uuid.NewString(),
		Title:     input.Title,
		Source:    input.Source,
		Status:    domain.DocumentPending,
		Metadata:  input.Metadata,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := uc.ledger.Create(ctx, doc); err != nil {
		return outcome, fmt.Errorf("create ledger entry: %w", err)
	}
	outcome.DocumentID = doc.ID

	chunks, err := uc.buildChunks(doc, input)
	if err != nil {
		return outcome, uc.failIngest(ctx, doc.ID, err)
	}

	embedded, err := uc.embedChunks(ctx, chunks)
	if err != nil {
		return outcome, uc.failIngest(ctx, doc.ID, err)
	}

	stored, err := uc.index.Upsert(ctx, embedded)
	if err != nil {
		err = fmt.Errorf("index chunks: %w", err)
		return outcome, uc.failIngest(ctx, doc.ID, err)
	}

	if err := uc.ledger.MarkReady(ctx, doc.ID, stored); err != nil {
		return outcome, fmt.Errorf("mark document ready: %w", err)
	}

	outcome.Chunks = stored
	outcome.Ingested = true
	return outcome, nil
}

func (uc *KnowledgeUseCase) buildChunks(doc *domain.Document, input domain.DocumentInput) ([]domain.Chunk, error) {
	spans := uc.chunker.Split(input.Content)
	if len(spans) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	chunks := make([]domain.Chunk, 0, len(spans))
	for i, span := range spans {
		chunks = append(chunks, domain.Chunk{
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Index:         i,
			Text:          span,
			Metadata:      input.Metadata,
		})
	}
	return chunks, nil
}

func (uc *KnowledgeUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error) {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	embedded := make([]domain.EmbeddedChunk, 0, len(chunks))
	for i, chunk := range chunks {
		embedded = append(embedded, domain.EmbeddedChunk{Chunk: chunk, Vector: vectors[i]})
	}
	return embedded, nil
}

func (uc *KnowledgeUseCase) failIngest(ctx context.Context, documentID string, cause error) error {
	if markErr := uc.ledger.MarkFailed(ctx, documentID, cause.Error()); markErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", cause, markErr)
	}
	return cause
}
