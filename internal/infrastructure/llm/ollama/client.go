package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/infrastructure/resilience"
)

// NoConfidence marks a completion whose model reported no confidence
// score; callers substitute their own default.
const NoConfidence = -1.0

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string) *Client {
	return NewWithOptions(baseURL, chatModel, embedModel, Options{})
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(baseURL, chatModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classifyOllamaError)
}

// Embedder converts batches of texts into fixed-dimension vectors.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, wrapUnavailable(domain.ErrEmbeddingUnavailable, "embed texts", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed texts",
			fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts)),
		)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Completion sends structured conversations to the chat endpoint.
type Completion struct {
	client *Client
}

func NewCompletion(client *Client) *Completion {
	return &Completion{client: client}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat forwards the conversation with message order preserved verbatim.
// The system prompt, when present, becomes the leading system message.
func (g *Completion) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResult, error) {
	messages := make([]wireMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, wireMessage{Role: string(domain.RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	request := map[string]any{
		"model":    g.client.chatModel,
		"messages": messages,
		"stream":   false,
	}
	if req.Temperature > 0 {
		request["options"] = map[string]any{"temperature": req.Temperature}
	}

	var response struct {
		Model   string `json:"model"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	err := g.client.execute(ctx, "ollama.chat", func(callCtx context.Context) error {
		return g.client.postJSON(callCtx, "/api/chat", request, &response, "chat")
	})
	if err != nil {
		return domain.ChatResult{}, wrapUnavailable(domain.ErrCompletionUnavailable, "chat completion", err)
	}

	return domain.ChatResult{
		Content:    strings.TrimSpace(response.Message.Content),
		Confidence: NoConfidence,
		Model:      response.Model,
	}, nil
}

// Summarize asks the model to compress text to at most maxWords words.
// The cap is advisory for the model; callers enforce it independently.
func (g *Completion) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	result, err := g.Chat(ctx, domain.ChatRequest{
		SystemPrompt: buildSummarizePrompt(maxWords),
		Messages: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: text},
		},
		Temperature: summarizeTemperature,
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
