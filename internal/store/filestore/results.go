package filestore

import (
	"context"
	"sync"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
)

// ResultsStore keeps the latest results in a JSON file, overwritten per run.
type ResultsStore struct {
	mu   sync.Mutex
	path string
}

// NewResultsStore returns a ResultsStore writing to path.
func NewResultsStore(path string) *ResultsStore {
	return &ResultsStore{path: path}
}

func (s *ResultsStore) Write(_ context.Context, r *auction.Results) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path, r)
}

func (s *ResultsStore) Latest(_ context.Context) (*auction.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r auction.Results
	if err := readJSON(s.path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
