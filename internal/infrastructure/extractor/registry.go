// Package extractor resolves a text extractor by file extension.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aurawell/companion-backend/internal/core/domain"
	"github.com/aurawell/companion-backend/internal/infrastructure/extractor/pdf"
	"github.com/aurawell/companion-backend/internal/infrastructure/extractor/plaintext"
	"github.com/aurawell/companion-backend/internal/infrastructure/extractor/xlsx"
)

type fileExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Registry maps file extensions to extractors. The zero set covers
// .txt/.md, .pdf and .xlsx.
type Registry struct {
	byExt map[string]fileExtractor
}

func NewRegistry() *Registry {
	plain := plaintext.New()
	return &Registry{byExt: map[string]fileExtractor{
		".txt":  plain,
		".md":   plain,
		".pdf":  pdf.New(),
		".xlsx": xlsx.New(),
	}}
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[normalizeExt(path)]
	return ok
}

func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := normalizeExt(path)
	sub, ok := r.byExt[ext]
	if !ok {
		return "", domain.WrapError(
			domain.ErrInvalidInput,
			"extract text",
			fmt.Errorf("unsupported file type %q", ext),
		)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("source file %s: %w", path, domain.ErrNotFound)
		}
		return "", fmt.Errorf("stat source file: %w", err)
	}
	return sub.Extract(ctx, path)
}

func normalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
