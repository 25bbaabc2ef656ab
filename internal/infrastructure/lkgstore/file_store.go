// Package lkgstore implements ports.LkgSnapshotStore: FileStore persists the
// last-known-good ConfigSnapshot to disk with atomic temp-file-then-rename
// writes, grounded on the teacher's internal/registry.StatusCache. RedisStore
// offers the same contract over a shared go-redis backend for deployments
// that want one LKG shared across processes.
package lkgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// fileRecord is the on-disk JSON shape, versioned the way the teacher's
// StatusCacheFile is.
type fileRecord struct {
	Version  string        `json:"version"`
	Snapshot ports.Snapshot `json:"snapshot"`
}

// FileStore persists one ConfigSnapshot per path, atomically.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore constructs a FileStore, creating path's parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lkg store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) TryLoad(ctx context.Context) (ports.LkgLoadStatus, ports.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ports.LkgNotFound, ports.Snapshot{}, nil
		}
		return ports.LkgError, ports.Snapshot{}, err
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ports.LkgCorrupt, ports.Snapshot{}, nil
	}
	return ports.LkgLoaded, rec.Snapshot, nil
}

func (s *FileStore) TryStore(ctx context.Context, snapshot ports.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(fileRecord{Version: "1", Snapshot: snapshot}, "", "  ")
	if err != nil {
		return false
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return false
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return false
	}
	return true
}

var _ ports.LkgSnapshotStore = (*FileStore)(nil)
