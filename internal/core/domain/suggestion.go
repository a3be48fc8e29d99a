package domain

import "time"

// ThreadSuggestion is a generated conversation starter for a user.
// BasedOnThread is a weak reference that may point at a thread deleted
// since generation; readers must tolerate a dangling id.
type ThreadSuggestion struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	BasedOnThread  string    `json:"based_on_thread,omitempty"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	OpeningMessage string    `json:"opening_message"`
	Relevance      float64   `json:"relevance"`
	CreatedAt      time.Time `json:"created_at"`
}
