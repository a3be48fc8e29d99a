package httpadapter

import (
	"net/http"
	"strings"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/core/ports"
)

func (rt *Router) searchKnowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	hits, err := rt.knowledge.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		rt.handleError(w, err)
		return
	}
	rt.metrics.RecordSearch(rt.cfg.ServiceName, len(hits), time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"query": req.Query,
		"hits":  hits,
		"count": len(hits),
	})
}

func (rt *Router) addDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Documents []domain.DocumentInput `json:"documents"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := rt.knowledge.AddDocuments(r.Context(), req.Documents)
	if err != nil {
		rt.handleError(w, err)
		return
	}

	succeeded := report.IngestedCount()
	rt.metrics.RecordIngestBatch(rt.cfg.ServiceName, succeeded, len(report.Outcomes)-succeeded)

	writeJSON(w, http.StatusOK, report)
}

// queueFile accepts a file reference and hands it to the ingest queue.
// The actual extraction and chunking happens in the worker.
func (rt *Router) queueFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string            `json:"path"`
		Title    string            `json:"title"`
		Metadata map[string]string `json:"metadata"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	job := ports.IngestJob{Path: req.Path, Title: req.Title, Metadata: req.Metadata}
	if err := rt.queue.PublishIngestJob(r.Context(), job); err != nil {
		rt.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"path":   req.Path,
	})
}

func (rt *Router) resetKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := rt.knowledge.ResetCollection(r.Context()); err != nil {
		rt.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (rt *Router) knowledgeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.knowledge.GetCollectionStats(r.Context())
	if err != nil {
		rt.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
