package textsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound means no extracted text is available for the document.
var ErrNotFound = errors.New("extracted text not found")

// Source provides the extracted text for a document. The PDF-to-text
// conversion itself happens outside this service; by the time a run starts,
// the text is expected to exist.
type Source interface {
	ExtractedText(ctx context.Context, documentID string) (string, error)
}

// Store is a Source that also accepts text, used by the registration
// surface to stage a document's text before its run is enqueued.
type Store interface {
	Source
	Put(ctx context.Context, documentID, text string) error
}

// FileStore keeps one text file per document under a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create text dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) ExtractedText(_ context.Context, documentID string) (string, error) {
	content, err := os.ReadFile(s.path(documentID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: document %s", ErrNotFound, documentID)
		}
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return string(content), nil
}

func (s *FileStore) Put(_ context.Context, documentID, text string) error {
	if err := os.WriteFile(s.path(documentID), []byte(text), 0o644); err != nil {
		return fmt.Errorf("write extracted text: %w", err)
	}
	return nil
}

func (s *FileStore) path(documentID string) string {
	// Document IDs are UUIDs minted by this service; Base guards against
	// anything path-like arriving through other channels.
	return filepath.Join(s.dir, filepath.Base(documentID)+".txt")
}

// MemoryStore holds extracted text in memory for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	texts map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{texts: make(map[string]string)}
}

func (s *MemoryStore) ExtractedText(_ context.Context, documentID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, exists := s.texts[documentID]
	if !exists {
		return "", fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	return text, nil
}

func (s *MemoryStore) Put(_ context.Context, documentID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[documentID] = text
	return nil
}
