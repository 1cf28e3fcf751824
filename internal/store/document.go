package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

// DocumentBackend persists the pattern document as a single JSON file.
// Saves go through a temp file and rename, so a crash mid-write leaves the
// previous document intact.
type DocumentBackend struct {
	path   string
	logger *zap.Logger
}

// NewDocumentBackend creates a backend writing to path, creating the parent
// directory if needed.
func NewDocumentBackend(path string, logger *zap.Logger) (*DocumentBackend, error) {
	if path == "" {
		return nil, errors.New("document path required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &DocumentBackend{path: path, logger: logger}, nil
}

// Path returns the document file path.
func (b *DocumentBackend) Path() string {
	return b.path
}

// Load reads and verifies the document. A missing file loads as an empty
// document. Unparseable JSON and entries that fail validation are both
// reported as ErrStorageCorrupt.
func (b *DocumentBackend) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		b.logger.Debug("pattern document missing, starting empty", zap.String("path", b.path))
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pattern document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	if doc.Patterns == nil {
		doc.Patterns = make(map[string]*pattern.Pattern)
	}
	for id, p := range doc.Patterns {
		if p == nil {
			return nil, fmt.Errorf("%w: pattern %s is null", ErrStorageCorrupt, id)
		}
		if p.ID != id {
			return nil, fmt.Errorf("%w: pattern %s stored under key %s", ErrStorageCorrupt, p.ID, id)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: pattern %s: %v", ErrStorageCorrupt, id, err)
		}
	}
	return &doc, nil
}

// Save writes the document atomically.
func (b *DocumentBackend) Save(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pattern document: %w", err)
	}

	tmpPath := b.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write pattern document: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename pattern document: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (b *DocumentBackend) Close() error {
	return nil
}
