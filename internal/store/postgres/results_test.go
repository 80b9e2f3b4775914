package postgres_test

import (
	"context"
	"testing"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/store/postgres"
	"github.com/jensholdgaard/auction-house-bot/internal/store/storetest"
)

func TestResultsRepo(t *testing.T) {
	db := newTestDB(t)
	storetest.ResultsStore(t, postgres.NewResultsRepo(db))
}

func TestResultsRepo_Rows(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewResultsRepo(db)
	ctx := context.Background()

	if err := repo.Write(ctx, storetest.Results()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rows, err := repo.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	want := []auction.ResultRow{
		{TeamName: "Waffles", CaptainName: "captain-two", PlayerID: 5005, PlayerName: "player-five", Tier: 1, Cost: 80},
		{PlayerID: 6006, PlayerName: "player-six", Tier: 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("Rows returned %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	// Overwriting with a run without sales replaces every row.
	empty := storetest.Results()
	empty.Teams = nil
	empty.FreeAgents = nil
	if err := repo.Write(ctx, empty); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	rows, err = repo.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Rows after overwrite = %+v, want none", rows)
	}
}
