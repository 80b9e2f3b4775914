package postgres_test

import (
	"context"
	"testing"

	"github.com/jensholdgaard/auction-house-bot/internal/store/postgres"
	"github.com/jensholdgaard/auction-house-bot/internal/store/storetest"
)

func TestSnapshotRepo(t *testing.T) {
	db := newTestDB(t)
	storetest.SnapshotStore(t, postgres.NewSnapshotRepo(db, testClock))
}

func TestSnapshotRepo_SingleRow(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewSnapshotRepo(db, testClock)
	ctx := context.Background()

	for range 3 {
		if err := repo.Save(ctx, storetest.Snapshot()); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM auction_snapshots`); err != nil {
		t.Fatalf("counting snapshots: %v", err)
	}
	if n != 1 {
		t.Errorf("snapshot rows = %d, want 1", n)
	}
}
