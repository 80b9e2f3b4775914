package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

// SnapshotRepo implements auction.SnapshotStore with a single-row table.
type SnapshotRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSnapshotRepo returns a new SnapshotRepo.
func NewSnapshotRepo(db *sql.DB, clk clock.Clock) *SnapshotRepo {
	return &SnapshotRepo{db: db, clock: clk}
}

func (r *SnapshotRepo) Exists(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auction_snapshots`).Scan(&n); err != nil {
		return false, fmt.Errorf("checking paused auction: %w", err)
	}
	return n > 0, nil
}

func (r *SnapshotRepo) Load(ctx context.Context) (*auction.Snapshot, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM auction_snapshots WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading paused auction: %w", err)
	}

	var snap auction.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decoding paused auction: %w", err)
	}
	return &snap, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, snap *auction.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding paused auction: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO auction_snapshots (id, run_id, data, saved_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET run_id = excluded.run_id, data = excluded.data, saved_at = excluded.saved_at`,
		snap.AuctionState.RunID, string(data), r.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving paused auction: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auction_snapshots`); err != nil {
		return fmt.Errorf("deleting paused auction: %w", err)
	}
	return nil
}
