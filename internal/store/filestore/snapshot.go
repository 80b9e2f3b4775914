package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
)

// SnapshotStore implements auction.SnapshotStore with a single JSON file.
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore returns a SnapshotStore writing to path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) Exists(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking paused auction: %w", err)
	}
	return true, nil
}

func (s *SnapshotStore) Load(_ context.Context) (*auction.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap auction.Snapshot
	if err := readJSON(s.path, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SnapshotStore) Save(_ context.Context, snap *auction.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path, snap)
}

func (s *SnapshotStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting paused auction: %w", err)
	}
	return nil
}
