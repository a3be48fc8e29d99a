package domain

// RetrievalHit is one similarity-ranked chunk produced for a query.
// Ephemeral; never persisted.
type RetrievalHit struct {
	DocumentID    string            `json:"document_id"`
	DocumentTitle string            `json:"document_title"`
	ChunkIndex    int               `json:"chunk_index"`
	Content       string            `json:"content"`
	Score         float64           `json:"score"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type CollectionStats struct {
	DocumentCount  int    `json:"document_count"`
	ChunkCount     int    `json:"chunk_count"`
	CollectionName string `json:"collection_name"`
	EmbeddingModel string `json:"embedding_model"`
	ChunkSize      int    `json:"chunk_size"`
}
