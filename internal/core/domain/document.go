package domain

import "time"

type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentReady   DocumentStatus = "ready"
	DocumentFailed  DocumentStatus = "failed"
)

// Document is the ledger record of an ingested knowledge-base document.
// The source text is not retained after chunking; only the chunk count
// and metadata survive here.
type Document struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Source     string            `json:"source,omitempty"`
	Status     DocumentStatus    `json:"status"`
	ChunkCount int               `json:"chunk_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Chunk is one bounded span of a document's text. DocumentID is a weak
// reference kept for traceability; the vector index owns chunk storage.
type Chunk struct {
	DocumentID    string            `json:"document_id"`
	DocumentTitle string            `json:"document_title"`
	Index         int               `json:"index"`
	Text          string            `json:"text"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"-"`
}

// DocumentInput is one item of an ingestion batch.
type DocumentInput struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestOutcome reports the fate of a single batch item. Failures are
// per item; one bad document never aborts the rest of the batch.
type IngestOutcome struct {
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title"`
	Chunks     int    `json:"chunks"`
	Ingested   bool   `json:"ingested"`
	Error      string `json:"error,omitempty"`
}

type IngestReport struct {
	Outcomes []IngestOutcome `json:"outcomes"`
}

func (r IngestReport) AllIngested() bool {
	for _, o := range r.Outcomes {
		if !o.Ingested {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

func (r IngestReport) IngestedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Ingested {
			n++
		}
	}
	return n
}
