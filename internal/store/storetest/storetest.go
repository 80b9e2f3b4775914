// Package storetest holds behaviour tests shared by every store driver.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/event"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

// Snapshot returns a valid paused snapshot for tier order 1 to 4.
func Snapshot() *auction.Snapshot {
	return &auction.Snapshot{
		AuctionState: auction.State{
			RunID:            "run-1",
			Status:           auction.StatusIdle,
			CurrentTierIndex: 1,
			CurrentTier:      2,
			CurrentChannel:   "chan-1",
			TotalPlayers:     3,
			Events:           []string{"late start"},
		},
		AuctionStats: auction.Stats{
			TotalBids:    2,
			TotalSpent:   80,
			PlayersSold:  1,
			TotalPlayers: 3,
			MVP:          &auction.MVP{Name: "player-five", Value: 80, Tier: 1, Team: "Waffles"},
		},
		FreeAgents: []roster.PlayerLot{{ID: 6006, Name: "player-six", Tier: 1}},
		ShuffledPlayers: map[int][]int64{
			1: {5005, 6006},
			2: {7007},
			3: {},
			4: {},
		},
		Captains: roster.Captains{
			"100": {Seat: 0, ChatID: "100", ProfileID: 1001, ProxyChatID: "900", Name: "captain-one", TeamName: "Pickles", Balance: 300, TeamMembers: []roster.PlayerLot{}},
			"200": {Seat: 1, ChatID: "200", ProfileID: 2002, Name: "captain-two", TeamName: "Waffles", Balance: 220,
				TeamMembers: []roster.PlayerLot{{ID: 5005, Name: "player-five", Tier: 1, Cost: 80}}, TeamValue: 80},
		},
		CurrentPlayerIndex: 0,
		EventVersion:       17,
	}
}

// SnapshotStore exercises a store holding no snapshot.
func SnapshotStore(t *testing.T, s auction.SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	exists, err := s.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("Exists = true on an empty store")
	}
	if _, err := s.Load(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load on empty store error = %v, want %v", err, store.ErrNotFound)
	}
	if err := s.Delete(ctx); err != nil {
		t.Errorf("Delete on empty store: %v", err)
	}

	want := Snapshot()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if exists, err := s.Exists(ctx); err != nil || !exists {
		t.Fatalf("Exists after Save = %v, %v; want true", exists, err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load mismatch:\n got %+v\nwant %+v", got, want)
	}
	if err := got.Validate([]int{1, 2, 3, 4}); err != nil {
		t.Errorf("loaded snapshot invalid: %v", err)
	}

	// A second save replaces the first.
	want.CurrentPlayerIndex = 1
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if got, err := s.Load(ctx); err != nil || got.CurrentPlayerIndex != 1 {
		t.Errorf("Load after second Save = %+v, %v; want player index 1", got, err)
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if exists, err := s.Exists(ctx); err != nil || exists {
		t.Errorf("Exists after Delete = %v, %v; want false", exists, err)
	}
}

// Results returns a small completed run.
func Results() *auction.Results {
	return &auction.Results{
		RunID:           "run-1",
		StartingBalance: 300,
		Teams: []auction.TeamResult{
			{TeamName: "Pickles", CaptainID: "100", CaptainName: "captain-one", CaptainOsuID: 1001, Balance: 300, Members: []roster.PlayerLot{}},
			{TeamName: "Waffles", CaptainID: "200", CaptainName: "captain-two", CaptainOsuID: 2002, Balance: 220, TeamValue: 80,
				Members: []roster.PlayerLot{{ID: 5005, Name: "player-five", Tier: 1, Cost: 80}}},
		},
		Stats:          auction.Stats{TotalBids: 2, TotalSpent: 80, PlayersSold: 1, TotalPlayers: 2},
		BiggestSpender: &auction.Spender{Name: "captain-two", Team: "Waffles", Amount: 80},
		FreeAgents:     []roster.PlayerLot{{ID: 6006, Name: "player-six", Tier: 1}},
		Events:         []string{"late start"},
		Summary:        "Waffles bought early.",
		GeneratedAt:    time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

// ResultsStore exercises an empty results store.
func ResultsStore(t *testing.T, s store.ResultsStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Latest(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Latest on empty store error = %v, want %v", err, store.ErrNotFound)
	}

	first := Results()
	if err := s.Write(ctx, first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Errorf("Latest mismatch:\n got %+v\nwant %+v", got, first)
	}

	second := Results()
	second.RunID = "run-2"
	second.FreeAgents = []roster.PlayerLot{}
	if err := s.Write(ctx, second); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if got, err := s.Latest(ctx); err != nil || got.RunID != "run-2" {
		t.Errorf("Latest after overwrite = %+v, %v; want run-2", got, err)
	}
}

// EventStore exercises an empty event store.
func EventStore(t *testing.T, s event.Store) {
	t.Helper()
	ctx := context.Background()

	loaded, err := s.Load(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Load on empty store returned %d events", len(loaded))
	}

	data := json.RawMessage(`{"captain_id":"200","actor_id":"200","amount":80}`)
	events := []event.Event{
		{AggregateID: "run-1", Type: event.AuctionStarted, Data: json.RawMessage(`{"channel_id":"chan-1","total_players":3}`), Version: 1},
		{AggregateID: "run-1", Type: event.BidPlaced, Data: data, Version: 2},
		{AggregateID: "run-2", Type: event.AuctionStarted, Data: json.RawMessage(`{}`), Version: 1},
	}
	if err := s.Append(ctx, events...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err = s.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(loaded))
	}
	if loaded[0].Version != 1 || loaded[1].Version != 2 {
		t.Errorf("versions = [%d, %d], want [1, 2]", loaded[0].Version, loaded[1].Version)
	}
	if loaded[1].Type != event.BidPlaced || loaded[1].ID == "" || loaded[1].CreatedAt.IsZero() {
		t.Errorf("event[1] = %+v, want a stamped bid event", loaded[1])
	}
	var payload event.BidPlacedData
	if err := json.Unmarshal(loaded[1].Data, &payload); err != nil || payload.Amount != 80 {
		t.Errorf("event[1] payload = %+v, %v; want amount 80", payload, err)
	}

	started, err := s.LoadByType(ctx, event.AuctionStarted)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(started) != 2 {
		t.Errorf("LoadByType(AuctionStarted) returned %d, want 2", len(started))
	}

	// Duplicate version for the same run must fail and write nothing.
	dup := []event.Event{
		{AggregateID: "run-1", Type: event.NoteAdded, Data: json.RawMessage(`{}`), Version: 3},
		{AggregateID: "run-1", Type: event.NoteAdded, Data: json.RawMessage(`{}`), Version: 2},
	}
	if err := s.Append(ctx, dup...); err == nil {
		t.Fatal("expected error for duplicate aggregate_id + version")
	}
	if loaded, _ := s.Load(ctx, "run-1"); len(loaded) != 2 {
		t.Errorf("failed Append left %d events for run-1, want 2", len(loaded))
	}
}
