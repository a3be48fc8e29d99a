package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aurawell/companion-backend/internal/config"
	"github.com/aurawell/companion-backend/internal/core/ports"
	"github.com/aurawell/companion-backend/internal/core/usecase"
	"github.com/aurawell/companion-backend/internal/infrastructure/chunking"
	"github.com/aurawell/companion-backend/internal/infrastructure/extractor"
	"github.com/aurawell/companion-backend/internal/infrastructure/llm/ollama"
	"github.com/aurawell/companion-backend/internal/infrastructure/personality"
	"github.com/aurawell/companion-backend/internal/infrastructure/queue/nats"
	"github.com/aurawell/companion-backend/internal/infrastructure/repository/postgres"
	"github.com/aurawell/companion-backend/internal/infrastructure/resilience"
	"github.com/aurawell/companion-backend/internal/infrastructure/vector/memstore"
	"github.com/aurawell/companion-backend/internal/infrastructure/vector/qdrant"
)

// App holds the wired object graph shared by the API and the worker.
type App struct {
	Config config.Config

	Knowledge    ports.KnowledgeService
	Conversation ports.ConversationService
	QA           ports.QAService
	Suggestions  ports.SuggestionService

	Queue      ports.IngestQueue
	Extractors ports.TextExtractor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	ledger := postgres.NewDocumentRepository(db)
	threads := postgres.NewThreadRepository(db)
	messages := postgres.NewMessageRepository(db)
	suggestions := postgres.NewSuggestionRepository(db)

	executor := resilience.NewExecutor(resilienceConfig(cfg))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ingest queue: %w", err)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, ollama.Options{
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	completion := ollama.NewCompletion(ollamaClient)

	index := newVectorIndex(cfg)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractors := extractor.NewRegistry()

	personalities, err := personality.Load(cfg.PersonalitiesPath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load personalities: %w", err)
	}

	knowledgeUC := usecase.NewKnowledgeUseCase(ledger, chunker, embedder, index, extractors, usecase.KnowledgeConfig{
		CollectionName: cfg.QdrantCollection,
		EmbeddingModel: cfg.OllamaEmbedModel,
		ChunkSize:      cfg.ChunkSize,
		DefaultTopK:    cfg.RAGTopK,
	})
	conversationUC := usecase.NewConversationUseCase(threads, messages, knowledgeUC, completion, personalities, usecase.ConversationConfig{
		RAGEnabled:    cfg.RAGEnabled,
		TopK:          cfg.RAGTopK,
		HistoryWindow: cfg.HistoryWindow,
	})
	qaUC := usecase.NewQAUseCase(messages, nil, usecase.QAConfig{
		DefaultCount:     cfg.QADefaultCount,
		MinContentLength: cfg.QAMinContentLength,
	})
	suggestionUC := usecase.NewSuggestionUseCase(suggestions, threads, nil)

	return &App{
		Config: cfg,

		Knowledge:    knowledgeUC,
		Conversation: conversationUC,
		QA:           qaUC,
		Suggestions:  suggestionUC,

		Queue:      queue,
		Extractors: extractors,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newVectorIndex(cfg config.Config) ports.VectorIndex {
	if cfg.VectorBackend == "memory" {
		return memstore.New()
	}
	return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerOpenTimeout:  time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second,
	}
}
