package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

// ResultsRepo keeps the latest results document.
type ResultsRepo struct {
	db *sql.DB
}

// NewResultsRepo returns a new ResultsRepo.
func NewResultsRepo(db *sql.DB) *ResultsRepo {
	return &ResultsRepo{db: db}
}

func (r *ResultsRepo) Write(ctx context.Context, res *auction.Results) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO auction_results (id, run_id, data, generated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET run_id = excluded.run_id, data = excluded.data, generated_at = excluded.generated_at`,
		res.RunID, string(data), res.GeneratedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

func (r *ResultsRepo) Latest(ctx context.Context) (*auction.Results, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM auction_results WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}

	var res auction.Results
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return &res, nil
}
