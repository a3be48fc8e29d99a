package domain

import "time"

type Sender string

const (
	SenderUser Sender = "USER"
	SenderAI   Sender = "AI"
)

type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerationMetadata describes how an AI message was produced.
type GenerationMetadata struct {
	Confidence    float64  `json:"confidence"`
	ProcessingMS  int64    `json:"processing_ms"`
	RAGEnabled    bool     `json:"rag_enabled"`
	RAGSources    []string `json:"rag_sources"`
	WasSummarized bool     `json:"was_summarized"`
	FallbackUsed  bool     `json:"fallback_used"`
	Model         string   `json:"model,omitempty"`
}

// Message is one conversation turn. Generation metadata is populated for
// AI messages only; QA fields change exclusively through the QA state
// machine (qa_score and a terminal qa_status are set together, never
// independently).
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	Generation GenerationMetadata `json:"generation,omitempty"`

	IsHelpful    *bool  `json:"is_helpful,omitempty"`
	UserFeedback string `json:"user_feedback,omitempty"`

	IsSelectedForQA bool       `json:"is_selected_for_qa"`
	QAStatus        QAStatus   `json:"qa_status,omitempty"`
	QAScore         *float64   `json:"qa_score,omitempty"`
	QAFeedback      string     `json:"qa_feedback,omitempty"`
	QATags          []string   `json:"qa_tags,omitempty"`
	QAReviewer      string     `json:"qa_reviewer,omitempty"`
	QAReviewedAt    *time.Time `json:"qa_reviewed_at,omitempty"`
}

// ChatRole mirrors the role vocabulary of the completion service.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ChatRequest is the ordered conversation sent to the completion service.
// Message order is preserved verbatim; the upstream model is sensitive to
// turn order.
type ChatRequest struct {
	Messages     []ChatMessage
	SystemPrompt string
	Temperature  float64
}

// ChatResult carries the raw completion. Confidence is negative when the
// model does not report one.
type ChatResult struct {
	Content    string
	Confidence float64
	Model      string
}

// RoleForSender maps the stored sender to the wire role of the
// completion service.
func RoleForSender(s Sender) ChatRole {
	if s == SenderAI {
		return RoleAssistant
	}
	return RoleUser
}
