package httpadapter

import "net/http"

func (rt *Router) generateSuggestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Count  int    `json:"count"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	suggestions, err := rt.suggestions.Generate(r.Context(), req.UserID, req.Count)
	if err != nil {
		rt.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

func (rt *Router) listSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := rt.suggestions.List(r.Context(), r.URL.Query().Get("user_id"), queryInt(r, "limit", 0))
	if err != nil {
		rt.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}
