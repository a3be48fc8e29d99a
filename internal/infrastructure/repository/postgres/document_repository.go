package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

// DocumentRepository is the ledger of ingested documents. Chunk text
// lives in the vector index; this table only records what was ingested
// and whether it succeeded.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	metadata, err := jsonStringMap(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (id, title, source, status, chunk_count, metadata, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.Title, doc.Source, string(doc.Status), doc.ChunkCount, metadata,
		nullableString(doc.Error), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkReady(ctx context.Context, id string, chunkCount int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, chunk_count = $3, error_message = NULL, updated_at = $4
WHERE id = $1
`, id, string(domain.DocumentReady), chunkCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document ready: %w", err)
	}
	return requireDocumentRow(res, id)
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.DocumentFailed), nullableString(reason), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return requireDocumentRow(res, id)
}

func (r *DocumentRepository) CountReady(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM documents
WHERE status = $1
`, string(domain.DocumentReady))

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count ready documents: %w", err)
	}
	return count, nil
}

func (r *DocumentRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("delete all documents: %w", err)
	}
	return nil
}

func requireDocumentRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("document rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
