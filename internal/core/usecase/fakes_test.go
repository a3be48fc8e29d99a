package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

// In-memory port fakes shared by the usecase tests. The message fake
// mirrors the conditional-update semantics of the real repository so the
// QA state machine can be exercised without a database.

type ledgerFake struct {
	mu   sync.Mutex
	docs map[string]*domain.Document

	createErr error
}

func newLedgerFake() *ledgerFake {
	return &ledgerFake{docs: make(map[string]*domain.Document)}
}

func (f *ledgerFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *doc
	f.docs[doc.ID] = &clone
	return nil
}

func (f *ledgerFake) MarkReady(_ context.Context, id string, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	doc.Status = domain.DocumentReady
	doc.ChunkCount = chunkCount
	doc.Error = ""
	return nil
}

func (f *ledgerFake) MarkFailed(_ context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	doc.Status = domain.DocumentFailed
	doc.Error = reason
	return nil
}

func (f *ledgerFake) CountReady(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, doc := range f.docs {
		if doc.Status == domain.DocumentReady {
			n++
		}
	}
	return n, nil
}

func (f *ledgerFake) DeleteAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = make(map[string]*domain.Document)
	return nil
}

func (f *ledgerFake) byStatus(status domain.DocumentStatus) []*domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Document
	for _, doc := range f.docs {
		if doc.Status == status {
			out = append(out, doc)
		}
	}
	return out
}

type chunkerFake struct {
	sep string
}

// Split divides on the configured separator, defaulting to one span for
// the whole text.
func (f *chunkerFake) Split(text string) []string {
	if f.sep == "" {
		return []string{text}
	}
	return strings.Split(text, f.sep)
}

type embedderFake struct {
	embedErr error
	queryErr error
	batches  [][]string
	queries  []string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1}
	}
	return vectors, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []float32{0.1, 0.2}, nil
}

type indexFake struct {
	mu     sync.Mutex
	chunks []domain.EmbeddedChunk

	upsertErr error
	queryErr  error
	lastTopK  int
	resets    int
}

func (f *indexFake) Upsert(_ context.Context, chunks []domain.EmbeddedChunk) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return len(chunks), nil
}

func (f *indexFake) Query(_ context.Context, _ []float32, topK int) ([]domain.RetrievalHit, error) {
	f.mu.Lock()
	f.lastTopK = topK
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	hits := make([]domain.RetrievalHit, 0, topK)
	for i, chunk := range f.chunks {
		if len(hits) == topK {
			break
		}
		hits = append(hits, domain.RetrievalHit{
			DocumentID:    chunk.DocumentID,
			DocumentTitle: chunk.DocumentTitle,
			ChunkIndex:    chunk.Index,
			Content:       chunk.Text,
			Score:         1.0 - float64(i)*0.1,
		})
	}
	return hits, nil
}

func (f *indexFake) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = nil
	f.resets++
	return nil
}

func (f *indexFake) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks), nil
}

type extractorFake struct {
	supported bool
	text      string
	err       error
	lastPath  string
}

func (f *extractorFake) Supports(string) bool { return f.supported }

func (f *extractorFake) Extract(_ context.Context, path string) (string, error) {
	f.lastPath = path
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type threadsFake struct {
	mu      sync.Mutex
	items   map[string]*domain.Thread
	touches []string
}

func newThreadsFake(threads ...*domain.Thread) *threadsFake {
	f := &threadsFake{items: make(map[string]*domain.Thread)}
	for _, th := range threads {
		clone := *th
		f.items[th.ID] = &clone
	}
	return f
}

func (f *threadsFake) Create(_ context.Context, thread *domain.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *thread
	f.items[thread.ID] = &clone
	return nil
}

func (f *threadsFake) GetByID(_ context.Context, id string) (*domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	thread, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, domain.ErrNotFound)
	}
	clone := *thread
	return &clone, nil
}

func (f *threadsFake) ListRecentByUser(_ context.Context, userID string, limit int) ([]domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Thread
	for _, thread := range f.items {
		if thread.UserID != userID {
			continue
		}
		out = append(out, *thread)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *threadsFake) Touch(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return fmt.Errorf("thread %s: %w", id, domain.ErrNotFound)
	}
	f.touches = append(f.touches, id)
	return nil
}

type messagesFake struct {
	mu    sync.Mutex
	items []*domain.Message
}

func newMessagesFake(msgs ...*domain.Message) *messagesFake {
	f := &messagesFake{}
	for _, msg := range msgs {
		clone := *msg
		f.items = append(f.items, &clone)
	}
	return f
}

func (f *messagesFake) Append(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	clone := *msg
	f.items = append(f.items, &clone)
	return nil
}

func (f *messagesFake) GetByID(_ context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.find(id)
	if msg == nil {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	clone := *msg
	return &clone, nil
}

func (f *messagesFake) ListRecentByThread(_ context.Context, threadID string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.Message
	for _, msg := range f.items {
		if msg.ThreadID == threadID {
			matched = append(matched, msg)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]domain.Message, 0, len(matched))
	for _, msg := range matched {
		out = append(out, *msg)
	}
	return out, nil
}

func (f *messagesFake) SetUserFeedback(_ context.Context, id string, isHelpful bool, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.find(id)
	if msg == nil {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	v := isHelpful
	msg.IsHelpful = &v
	msg.UserFeedback = feedback
	return nil
}

func (f *messagesFake) ListQACandidates(_ context.Context, sel domain.QASelection) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, msg := range f.items {
		if msg.Sender != sel.Sender {
			continue
		}
		if len(msg.Content) < sel.MinLength {
			continue
		}
		if !sel.Force && msg.IsSelectedForQA {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (f *messagesFake) MarkSelectedForQA(_ context.Context, id string, force bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.find(id)
	if msg == nil {
		return false, nil
	}
	if msg.IsSelectedForQA && !force {
		return false, nil
	}
	msg.IsSelectedForQA = true
	msg.QAStatus = domain.QAPending
	msg.QAScore = nil
	msg.QAFeedback = ""
	msg.QATags = nil
	msg.QAReviewer = ""
	msg.QAReviewedAt = nil
	return true, nil
}

func (f *messagesFake) StartReview(_ context.Context, id, reviewer string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.find(id)
	if msg == nil || !msg.IsSelectedForQA || msg.QAStatus != domain.QAPending {
		return false, nil
	}
	msg.QAStatus = domain.QAInReview
	msg.QAReviewer = reviewer
	return true, nil
}

func (f *messagesFake) CompleteReview(_ context.Context, id string, review domain.QAReview) (*domain.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.find(id)
	if msg == nil || !msg.IsSelectedForQA {
		return nil, false, nil
	}
	if msg.QAStatus != domain.QAPending && msg.QAStatus != domain.QAInReview {
		return nil, false, nil
	}
	score := review.Score
	now := time.Now().UTC()
	msg.QAStatus = review.Status
	msg.QAScore = &score
	msg.QAFeedback = review.Feedback
	msg.QATags = review.Tags
	msg.QAReviewer = review.Reviewer
	msg.QAReviewedAt = &now
	clone := *msg
	return &clone, true, nil
}

func (f *messagesFake) CountByQAStatus(context.Context) (map[domain.QAStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[domain.QAStatus]int)
	for _, msg := range f.items {
		if msg.IsSelectedForQA {
			out[msg.QAStatus]++
		}
	}
	return out, nil
}

func (f *messagesFake) ReviewedScores(context.Context) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []float64
	for _, msg := range f.items {
		if msg.IsSelectedForQA && msg.QAScore != nil && msg.QAStatus.Terminal() {
			out = append(out, *msg.QAScore)
		}
	}
	return out, nil
}

func (f *messagesFake) find(id string) *domain.Message {
	for _, msg := range f.items {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func (f *messagesFake) byThread(threadID string) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, msg := range f.items {
		if msg.ThreadID == threadID {
			out = append(out, *msg)
		}
	}
	return out
}

type completionFake struct {
	mu        sync.Mutex
	chatErr   error
	reply     string
	replyConf float64
	model     string

	summarizeErr   error
	summary        string
	summarizeCalls int

	requests []domain.ChatRequest

	blockChat chan struct{}
	inFlight  int
	maxSeen   int
}

func (f *completionFake) Chat(_ context.Context, req domain.ChatRequest) (domain.ChatResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	block := f.blockChat
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	f.inFlight--
	err := f.chatErr
	result := domain.ChatResult{Content: f.reply, Confidence: f.replyConf, Model: f.model}
	f.mu.Unlock()

	if err != nil {
		return domain.ChatResult{}, err
	}
	return result, nil
}

func (f *completionFake) Summarize(_ context.Context, _ string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summary, nil
}

func (f *completionFake) lastRequest() domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return domain.ChatRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type personaFake struct {
	persona domain.PersonalityConfig
	err     error
}

func (f *personaFake) Default() (domain.PersonalityConfig, error) {
	if f.err != nil {
		return domain.PersonalityConfig{}, f.err
	}
	return f.persona, nil
}

func (f *personaFake) ByName(string) (domain.PersonalityConfig, error) {
	return f.Default()
}

type knowledgeFake struct {
	hits      []domain.RetrievalHit
	searchErr error
	queries   []string
}

func (f *knowledgeFake) Search(_ context.Context, query string, _ int) ([]domain.RetrievalHit, error) {
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.hits == nil {
		return []domain.RetrievalHit{}, nil
	}
	return f.hits, nil
}

func (f *knowledgeFake) AddDocuments(context.Context, []domain.DocumentInput) (domain.IngestReport, error) {
	return domain.IngestReport{}, nil
}

func (f *knowledgeFake) AddDocumentFromFile(context.Context, string, string, map[string]string) (domain.IngestOutcome, error) {
	return domain.IngestOutcome{}, nil
}

func (f *knowledgeFake) ResetCollection(context.Context) error { return nil }

func (f *knowledgeFake) GetCollectionStats(context.Context) (domain.CollectionStats, error) {
	return domain.CollectionStats{}, nil
}

type suggestionsFake struct {
	mu    sync.Mutex
	items []domain.ThreadSuggestion
}

func (f *suggestionsFake) Insert(_ context.Context, s *domain.ThreadSuggestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *s)
	return nil
}

func (f *suggestionsFake) ListByUser(_ context.Context, userID string, limit int) ([]domain.ThreadSuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ThreadSuggestion
	for _, s := range f.items {
		if s.UserID != userID {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
