package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/core/ports"
	"github.com/aurawell/companion-backend/internal/observability/metrics"
)

type knowledgeFake struct {
	hits      []domain.RetrievalHit
	report    domain.IngestReport
	stats     domain.CollectionStats
	err       error
	lastQuery string
	lastTopK  int
}

func (f *knowledgeFake) Search(_ context.Context, query string, topK int) ([]domain.RetrievalHit, error) {
	f.lastQuery, f.lastTopK = query, topK
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *knowledgeFake) AddDocuments(_ context.Context, _ []domain.DocumentInput) (domain.IngestReport, error) {
	if f.err != nil {
		return domain.IngestReport{}, f.err
	}
	return f.report, nil
}

func (f *knowledgeFake) AddDocumentFromFile(_ context.Context, _, _ string, _ map[string]string) (domain.IngestOutcome, error) {
	return domain.IngestOutcome{}, f.err
}

func (f *knowledgeFake) ResetCollection(context.Context) error { return f.err }

func (f *knowledgeFake) GetCollectionStats(context.Context) (domain.CollectionStats, error) {
	return f.stats, f.err
}

type conversationFake struct {
	thread       *domain.Thread
	greeting     string
	message      *domain.Message
	messages     []domain.Message
	err          error
	lastThreadID string
	lastContent  string
	lastHelpful  bool
	lastFeedback string
}

func (f *conversationFake) CreateThread(_ context.Context, userID, title, category string) (*domain.Thread, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if f.thread == nil {
		f.thread = &domain.Thread{ID: "thread-1", UserID: userID, Title: title, Category: category}
	}
	return f.thread, f.greeting, nil
}

func (f *conversationFake) Respond(_ context.Context, threadID, userText string) (*domain.Message, error) {
	f.lastThreadID, f.lastContent = threadID, userText
	if f.err != nil {
		return nil, f.err
	}
	return f.message, nil
}

func (f *conversationFake) ListMessages(_ context.Context, threadID string, _ int) ([]domain.Message, error) {
	f.lastThreadID = threadID
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

func (f *conversationFake) RecordFeedback(_ context.Context, messageID string, isHelpful bool, feedback string) error {
	f.lastThreadID, f.lastHelpful, f.lastFeedback = messageID, isHelpful, feedback
	return f.err
}

type qaFake struct {
	selected      []domain.Message
	message       *domain.Message
	summary       domain.QASummary
	err           error
	lastSelection domain.QASelection
	lastReviewer  string
	lastReview    domain.QAReview
}

func (f *qaFake) SelectForQA(_ context.Context, sel domain.QASelection) ([]domain.Message, error) {
	f.lastSelection = sel
	if f.err != nil {
		return nil, f.err
	}
	return f.selected, nil
}

func (f *qaFake) StartReview(_ context.Context, _, reviewer string) (*domain.Message, error) {
	f.lastReviewer = reviewer
	if f.err != nil {
		return nil, f.err
	}
	return f.message, nil
}

func (f *qaFake) CompleteReview(_ context.Context, _ string, review domain.QAReview) (*domain.Message, error) {
	f.lastReview = review
	if f.err != nil {
		return nil, f.err
	}
	return f.message, nil
}

func (f *qaFake) Summary(context.Context) (domain.QASummary, error) {
	return f.summary, f.err
}

type suggestionFake struct {
	suggestions []domain.ThreadSuggestion
	err         error
	lastUserID  string
	lastCount   int
}

func (f *suggestionFake) Generate(_ context.Context, userID string, count int) ([]domain.ThreadSuggestion, error) {
	f.lastUserID, f.lastCount = userID, count
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

func (f *suggestionFake) List(_ context.Context, userID string, _ int) ([]domain.ThreadSuggestion, error) {
	f.lastUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

type queueRecorderFake struct {
	jobs []ports.IngestJob
	err  error
}

func (f *queueRecorderFake) PublishIngestJob(_ context.Context, job ports.IngestJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueRecorderFake) SubscribeIngestJobs(context.Context, func(context.Context, ports.IngestJob) error) error {
	return f.err
}

type routerFixture struct {
	knowledge    *knowledgeFake
	conversation *conversationFake
	qa           *qaFake
	suggestions  *suggestionFake
	queue        *queueRecorderFake
	handler      http.Handler
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()

	fx := &routerFixture{
		knowledge:    &knowledgeFake{},
		conversation: &conversationFake{},
		qa:           &qaFake{},
		suggestions:  &suggestionFake{},
		queue:        &queueRecorderFake{},
	}
	fx.handler = NewRouter(
		fx.knowledge,
		fx.conversation,
		fx.qa,
		fx.suggestions,
		fx.queue,
		metrics.NewHTTPServerMetrics("test"),
		Config{ServiceName: "test", RateLimitRPS: 1000, RateLimitBurst: 1000},
	).Handler()
	return fx
}

func doJSON(t *testing.T, handler http.Handler, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHealthzEndpoint(t *testing.T) {
	fx := newTestRouter(t)

	res := doJSON(t, fx.handler, http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["status"] != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSearchKnowledgeReturnsHits(t *testing.T) {
	fx := newTestRouter(t)
	fx.knowledge.hits = []domain.RetrievalHit{
		{DocumentID: "doc-1", DocumentTitle: "Hydration", ChunkIndex: 0, Content: "drink water", Score: 0.91},
		{DocumentID: "doc-2", DocumentTitle: "Sleep", ChunkIndex: 3, Content: "sleep well", Score: 0.72},
	}

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/knowledge/search", map[string]any{
		"query": "how much water",
		"top_k": 3,
	})

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if fx.knowledge.lastQuery != "how much water" || fx.knowledge.lastTopK != 3 {
		t.Fatalf("service got query=%q topK=%d", fx.knowledge.lastQuery, fx.knowledge.lastTopK)
	}

	body := decodeBody(t, res)
	if body["count"] != float64(2) {
		t.Fatalf("expected count 2, got %v", body["count"])
	}
}

func TestSearchKnowledgeMapsInvalidInputTo400(t *testing.T) {
	fx := newTestRouter(t)
	fx.knowledge.err = domain.WrapError(domain.ErrInvalidInput, "search", errors.New("empty query"))

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/knowledge/search", map[string]any{"query": ""})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["error"] == "" {
		t.Fatal("expected error message in body")
	}
}

func TestSearchKnowledgeRejectsMalformedJSON(t *testing.T) {
	fx := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/search", bytes.NewBufferString("{not json"))
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAddDocumentsReportsPerItemOutcomes(t *testing.T) {
	fx := newTestRouter(t)
	fx.knowledge.report = domain.IngestReport{Outcomes: []domain.IngestOutcome{
		{DocumentID: "doc-1", Title: "Hydration", Chunks: 4, Ingested: true},
		{Title: "Broken", Ingested: false, Error: "empty content"},
	}}

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/knowledge/documents", map[string]any{
		"documents": []map[string]any{
			{"title": "Hydration", "content": "drink water"},
			{"title": "Broken", "content": ""},
		},
	})

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var report domain.IngestReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Outcomes) != 2 || report.AllIngested() {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestQueueFilePublishesAndReturns202(t *testing.T) {
	fx := newTestRouter(t)

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/knowledge/files", map[string]any{
		"path":     "/data/guides/sleep.pdf",
		"title":    "Sleep Guide",
		"metadata": map[string]string{"topic": "sleep"},
	})

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(fx.queue.jobs) != 1 {
		t.Fatalf("expected 1 published job, got %d", len(fx.queue.jobs))
	}

	job := fx.queue.jobs[0]
	if job.Path != "/data/guides/sleep.pdf" || job.Title != "Sleep Guide" || job.Metadata["topic"] != "sleep" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestQueueFileRequiresPath(t *testing.T) {
	fx := newTestRouter(t)

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/knowledge/files", map[string]any{"title": "No Path"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(fx.queue.jobs) != 0 {
		t.Fatalf("expected no published jobs, got %d", len(fx.queue.jobs))
	}
}

func TestQueueFileUnavailableBrokerMapsTo503(t *testing.T) {
	fx := newTestRouter(t)
	fx.queue.err = domain.WrapError(domain.ErrTemporary, "publish ingest job", errors.New("no servers"))

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/knowledge/files", map[string]any{"path": "/data/a.txt"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestKnowledgeStatsEndpoint(t *testing.T) {
	fx := newTestRouter(t)
	fx.knowledge.stats = domain.CollectionStats{
		DocumentCount:  7,
		ChunkCount:     42,
		CollectionName: "companion_knowledge",
		EmbeddingModel: "nomic-embed-text",
		ChunkSize:      900,
	}

	res := doJSON(t, fx.handler, http.MethodGet, "/v1/knowledge/stats", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	body := decodeBody(t, res)
	if body["collection_name"] != "companion_knowledge" || body["chunk_count"] != float64(42) {
		t.Fatalf("unexpected stats: %+v", body)
	}
}

func TestResetKnowledgeEndpoint(t *testing.T) {
	fx := newTestRouter(t)

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/knowledge/reset", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["status"] != "reset" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestCreateThreadReturns201WithGreeting(t *testing.T) {
	fx := newTestRouter(t)
	fx.conversation.greeting = "Hi, I'm Aura. How are you feeling today?"

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/threads", map[string]any{
		"user_id":  "user-1",
		"title":    "Morning check-in",
		"category": "wellbeing",
	})

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}

	body := decodeBody(t, res)
	if body["greeting"] != fx.conversation.greeting {
		t.Fatalf("unexpected greeting: %v", body["greeting"])
	}
	thread, ok := body["thread"].(map[string]any)
	if !ok || thread["user_id"] != "user-1" || thread["category"] != "wellbeing" {
		t.Fatalf("unexpected thread: %+v", body["thread"])
	}
}

func TestPostMessageReturnsAIMessage(t *testing.T) {
	fx := newTestRouter(t)
	fx.conversation.message = &domain.Message{
		ID:       "msg-2",
		ThreadID: "thread-1",
		Sender:   domain.SenderAI,
		Content:  "Aim for about two liters spread across the day.",
		Generation: domain.GenerationMetadata{
			Confidence: 0.8,
			RAGEnabled: true,
			RAGSources: []string{"Hydration"},
		},
		CreatedAt: time.Now().UTC(),
	}

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/threads/thread-1/messages", map[string]any{
		"content": "how much water should I drink",
	})

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if fx.conversation.lastThreadID != "thread-1" {
		t.Fatalf("thread id not threaded through, got %q", fx.conversation.lastThreadID)
	}

	body := decodeBody(t, res)
	if body["sender"] != string(domain.SenderAI) || body["id"] != "msg-2" {
		t.Fatalf("unexpected message: %+v", body)
	}
}

func TestPostMessageUnknownThreadMapsTo404(t *testing.T) {
	fx := newTestRouter(t)
	fx.conversation.err = domain.WrapError(domain.ErrNotFound, "respond", errors.New("thread missing"))

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/threads/ghost/messages", map[string]any{"content": "hi"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListMessagesEndpoint(t *testing.T) {
	fx := newTestRouter(t)
	fx.conversation.messages = []domain.Message{
		{ID: "msg-1", ThreadID: "thread-1", Sender: domain.SenderUser, Content: "hello"},
		{ID: "msg-2", ThreadID: "thread-1", Sender: domain.SenderAI, Content: "hi there"},
	}

	res := doJSON(t, fx.handler, http.MethodGet, "/v1/threads/thread-1/messages?limit=10", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	body := decodeBody(t, res)
	if body["count"] != float64(2) {
		t.Fatalf("expected count 2, got %v", body["count"])
	}
}

func TestRecordFeedbackReturns204(t *testing.T) {
	fx := newTestRouter(t)

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/messages/msg-2/feedback", map[string]any{
		"is_helpful": true,
		"feedback":   "clear and practical",
	})

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if !fx.conversation.lastHelpful || fx.conversation.lastFeedback != "clear and practical" {
		t.Fatalf("feedback not recorded: helpful=%v feedback=%q", fx.conversation.lastHelpful, fx.conversation.lastFeedback)
	}
}

func TestRecordFeedbackRequiresIsHelpful(t *testing.T) {
	fx := newTestRouter(t)

	res := doJSON(t, fx.handler, http.MethodPost, "/v1/messages/msg-2/feedback", map[string]any{
		"feedback": "missing the flag",
	})

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}
