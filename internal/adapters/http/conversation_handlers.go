package httpadapter

import (
	"net/http"
	"strconv"
	"time"
)

func (rt *Router) createThread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Title    string `json:"title"`
		Category string `json:"category"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	thread, greeting, err := rt.conversation.CreateThread(r.Context(), req.UserID, req.Title, req.Category)
	if err != nil {
		rt.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"thread":   thread,
		"greeting": greeting,
	})
}

func (rt *Router) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := rt.conversation.ListMessages(r.Context(), r.PathValue("id"), queryInt(r, "limit", 0))
	if err != nil {
		rt.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

func (rt *Router) postMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	message, err := rt.conversation.Respond(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		rt.handleError(w, err)
		return
	}
	rt.metrics.RecordTurn(
		rt.cfg.ServiceName,
		message.Generation.FallbackUsed,
		message.Generation.WasSummarized,
		time.Since(start),
	)

	writeJSON(w, http.StatusOK, message)
}

func (rt *Router) recordFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsHelpful *bool  `json:"is_helpful"`
		Feedback  string `json:"feedback"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsHelpful == nil {
		writeError(w, http.StatusBadRequest, "is_helpful is required")
		return
	}

	if err := rt.conversation.RecordFeedback(r.Context(), r.PathValue("id"), *req.IsHelpful, req.Feedback); err != nil {
		rt.handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
