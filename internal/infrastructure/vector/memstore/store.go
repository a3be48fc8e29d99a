// Package memstore keeps the knowledge index in process memory with
// brute-force cosine search. It backs local development and tests where
// running qdrant is not worth the setup.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

type entry struct {
	chunk  domain.Chunk
	vector []float32
}

type Store struct {
	mu      sync.RWMutex
	entries []entry
	byKey   map[string]int
}

func New() *Store {
	return &Store{byKey: make(map[string]int)}
}

// Upsert stores chunks keyed by document id and chunk index, so writing
// the same chunk twice replaces it instead of duplicating it.
func (s *Store) Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		key := chunkKey(chunk.DocumentID, chunk.Index)
		e := entry{chunk: chunk.Chunk, vector: chunk.Vector}
		if pos, ok := s.byKey[key]; ok {
			s.entries[pos] = e
			continue
		}
		s.byKey[key] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return len(chunks), nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]domain.RetrievalHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]domain.RetrievalHit, 0, len(s.entries))
	for _, e := range s.entries {
		hits = append(hits, domain.RetrievalHit{
			DocumentID:    e.chunk.DocumentID,
			DocumentTitle: e.chunk.DocumentTitle,
			ChunkIndex:    e.chunk.Index,
			Content:       e.chunk.Text,
			Score:         cosineSimilarity(vector, e.vector),
			Metadata:      e.chunk.Metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *Store) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byKey = make(map[string]int)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func chunkKey(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkIndex)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
