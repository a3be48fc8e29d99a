// Package httpadapter exposes the companion services over a JSON REST
// API on the stdlib mux.
package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/aurawell/companion-backend/internal/core/ports"
	"github.com/aurawell/companion-backend/internal/observability/metrics"
)

type Config struct {
	ServiceName    string
	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool
}

func (c Config) normalized() Config {
	if c.ServiceName == "" {
		c.ServiceName = "companion-api"
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 10
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	return c
}

type Router struct {
	knowledge    ports.KnowledgeService
	conversation ports.ConversationService
	qa           ports.QAService
	suggestions  ports.SuggestionService
	queue        ports.IngestQueue
	metrics      *metrics.HTTPServerMetrics
	cfg          Config
}

func NewRouter(
	knowledge ports.KnowledgeService,
	conversation ports.ConversationService,
	qa ports.QAService,
	suggestions ports.SuggestionService,
	queue ports.IngestQueue,
	m *metrics.HTTPServerMetrics,
	cfg Config,
) *Router {
	return &Router{
		knowledge:    knowledge,
		conversation: conversation,
		qa:           qa,
		suggestions:  suggestions,
		queue:        queue,
		metrics:      m,
		cfg:          cfg.normalized(),
	}
}

// Handler builds the route table wrapped in the middleware chain:
// request id, access log, per-client rate limit, metrics.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())

	mux.HandleFunc("POST /v1/knowledge/search", rt.searchKnowledge)
	mux.HandleFunc("POST /v1/knowledge/documents", rt.addDocuments)
	mux.HandleFunc("POST /v1/knowledge/files", rt.queueFile)
	mux.HandleFunc("POST /v1/knowledge/reset", rt.resetKnowledge)
	mux.HandleFunc("GET /v1/knowledge/stats", rt.knowledgeStats)

	mux.HandleFunc("POST /v1/threads", rt.createThread)
	mux.HandleFunc("GET /v1/threads/{id}/messages", rt.listMessages)
	mux.HandleFunc("POST /v1/threads/{id}/messages", rt.postMessage)
	mux.HandleFunc("POST /v1/messages/{id}/feedback", rt.recordFeedback)

	mux.HandleFunc("POST /v1/qa/select", rt.selectForQA)
	mux.HandleFunc("POST /v1/qa/messages/{id}/start", rt.startReview)
	mux.HandleFunc("POST /v1/qa/messages/{id}/review", rt.completeReview)
	mux.HandleFunc("GET /v1/qa/summary", rt.qaSummary)

	mux.HandleFunc("POST /v1/suggestions/generate", rt.generateSuggestions)
	mux.HandleFunc("GET /v1/suggestions", rt.listSuggestions)

	limiter := newClientLimiter(rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)

	var handler http.Handler = mux
	handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	handler = rt.rateLimitMiddleware(limiter, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
