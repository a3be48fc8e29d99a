package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

// selectForQA tolerates an empty body so operators can sample with all
// defaults via a bare POST.
func (rt *Router) selectForQA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count     int    `json:"count"`
		Sender    string `json:"sender"`
		Force     bool   `json:"force"`
		MinLength int    `json:"min_length"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	selected, err := rt.qa.SelectForQA(r.Context(), domain.QASelection{
		Count:     req.Count,
		Sender:    domain.Sender(req.Sender),
		Force:     req.Force,
		MinLength: req.MinLength,
	})
	if err != nil {
		rt.handleError(w, err)
		return
	}
	rt.metrics.RecordQASelection(rt.cfg.ServiceName, len(selected))

	writeJSON(w, http.StatusOK, map[string]any{
		"selected": selected,
		"count":    len(selected),
	})
}

func (rt *Router) startReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reviewer string `json:"reviewer"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	message, err := rt.qa.StartReview(r.Context(), r.PathValue("id"), req.Reviewer)
	if err != nil {
		rt.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, message)
}

func (rt *Router) completeReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Score    float64  `json:"score"`
		Status   string   `json:"status"`
		Feedback string   `json:"feedback"`
		Reviewer string   `json:"reviewer"`
		Tags     []string `json:"tags"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	message, err := rt.qa.CompleteReview(r.Context(), r.PathValue("id"), domain.QAReview{
		Score:    req.Score,
		Status:   domain.QAStatus(req.Status),
		Feedback: req.Feedback,
		Reviewer: req.Reviewer,
		Tags:     req.Tags,
	})
	if err != nil {
		rt.handleError(w, err)
		return
	}
	rt.metrics.RecordQAReview(rt.cfg.ServiceName, string(message.QAStatus))

	writeJSON(w, http.StatusOK, message)
}

func (rt *Router) qaSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.qa.Summary(r.Context())
	if err != nil {
		rt.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
