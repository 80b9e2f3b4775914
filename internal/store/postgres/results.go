package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

// ResultsRepo keeps the latest results document plus one row per player, so
// the rosters can be queried with plain SQL.
type ResultsRepo struct {
	db *sqlx.DB
}

// NewResultsRepo returns a new ResultsRepo.
func NewResultsRepo(db *sqlx.DB) *ResultsRepo {
	return &ResultsRepo{db: db}
}

func (r *ResultsRepo) Write(ctx context.Context, res *auction.Results) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO auction_results (id, run_id, data, generated_at) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET run_id = EXCLUDED.run_id, data = EXCLUDED.data, generated_at = EXCLUDED.generated_at`,
		res.RunID, string(data), res.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM auction_result_rows`); err != nil {
		return fmt.Errorf("clearing result rows: %w", err)
	}
	if rows := res.Rows(); len(rows) > 0 {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO auction_result_rows (team_name, captain_name, player_id, player_name, tier, cost)
			 VALUES (:team_name, :captain_name, :player_id, :player_name, :tier, :cost)`, rows)
		if err != nil {
			return fmt.Errorf("writing result rows: %w", err)
		}
	}

	return tx.Commit()
}

func (r *ResultsRepo) Latest(ctx context.Context) (*auction.Results, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT data FROM auction_results WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}

	var res auction.Results
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return &res, nil
}

// Rows returns the tabular export of the latest results, team members first.
func (r *ResultsRepo) Rows(ctx context.Context) ([]auction.ResultRow, error) {
	var rows []auction.ResultRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT team_name, captain_name, player_id, player_name, tier, cost
		 FROM auction_result_rows ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("loading result rows: %w", err)
	}
	return rows, nil
}
