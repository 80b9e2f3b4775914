package store

import (
	"context"
	"errors"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ResultsStore persists the results of the most recent completed run.
type ResultsStore interface {
	auction.ResultsExporter
	// Latest returns the last written results, or ErrNotFound.
	Latest(ctx context.Context) (*auction.Results, error)
}
