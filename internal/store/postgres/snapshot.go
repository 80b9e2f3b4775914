package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

// SnapshotRepo implements auction.SnapshotStore with a single-row table.
type SnapshotRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewSnapshotRepo returns a new SnapshotRepo.
func NewSnapshotRepo(db *sqlx.DB, clk clock.Clock) *SnapshotRepo {
	return &SnapshotRepo{db: db, clock: clk}
}

func (r *SnapshotRepo) Exists(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM auction_snapshots)`); err != nil {
		return false, fmt.Errorf("checking paused auction: %w", err)
	}
	return exists, nil
}

func (r *SnapshotRepo) Load(ctx context.Context) (*auction.Snapshot, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT data FROM auction_snapshots WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading paused auction: %w", err)
	}

	var snap auction.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
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
		`INSERT INTO auction_snapshots (id, run_id, data, saved_at) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET run_id = EXCLUDED.run_id, data = EXCLUDED.data, saved_at = EXCLUDED.saved_at`,
		snap.AuctionState.RunID, string(data), r.clock.Now().UTC(),
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
