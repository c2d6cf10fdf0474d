package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// stateFileName is the default on-disk state document.
const stateFileName = "vertex-proxy-state.json"

// stateFilePath anchors the state file next to the config file, falling
// back to the working directory.
func stateFilePath(configPath string) string {
	if configPath == "" {
		return stateFileName
	}
	return filepath.Join(filepath.Dir(configPath), stateFileName)
}

// FileStateStore keeps the state document in a local JSON file. Writes
// go through a temp file and rename so a crash never truncates state.
type FileStateStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStateStore creates a file-backed store at path.
func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

// Load reads the state document; a missing file yields nil, nil.
func (s *FileStateStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", s.path, err)
	}
	return data, nil
}

// Save atomically replaces the state document.
func (s *FileStateStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("file store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("file store: rename %s: %w", tmp, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStateStore) Close() error { return nil }
