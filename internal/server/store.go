// Package server persists the chat collections as plain JSON list files so
// that history and claimed names survive process restarts.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStoreCorrupt reports that a persisted collection exists but cannot be
// parsed into the expected record shape. Callers must treat this as fatal for
// the affected collection rather than silently discarding its data.
var ErrStoreCorrupt = errors.New("store: corrupt collection")

// FileStore persists ordered record lists, one JSON array file per named
// collection, under a single data directory. Every mutation rewrites the
// whole collection; the write lands in a temp file that is renamed over the
// target so a concurrent reader never observes a partial file.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// it does not exist yet.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads the named collection into out, which must be a pointer to a
// slice. A missing or empty file means "no data yet" and leaves out
// untouched. Existing data that fails to parse returns ErrStoreCorrupt.
func (s *FileStore) Load(collection string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read collection %q: %w", collection, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrStoreCorrupt, collection, err)
	}
	return nil
}

// Replace atomically overwrites the named collection with the given full
// record sequence.
func (s *FileStore) Replace(collection string, records any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode collection %q: %w", collection, err)
	}

	tmp, err := os.CreateTemp(s.dir, collection+"-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file for %q: %w", collection, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: write collection %q: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: close temp file for %q: %w", collection, err)
	}

	if err := os.Rename(tmp.Name(), s.path(collection)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: replace collection %q: %w", collection, err)
	}
	return nil
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}
