package auction

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house-bot/internal/event"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

var errNoLot = errors.New("no open lot to settle")

// Lot identifies the player being auctioned.
type Lot struct {
	PlayerID   int64
	PlayerName string
	Tier       int
}

// Outcome is the result of settling a lot.
type Outcome struct {
	Sold        bool
	Player      roster.PlayerLot
	CaptainID   string
	CaptainName string
	TeamName    string
}

// OpenLot clears the per-lot fields and makes lot the current player.
// Bidding stays closed until the caller opens it.
func (m *Machine) OpenLot(ctx context.Context, lot Lot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.write(ctx, Patch{
		CurrentPlayer:     &lot.PlayerID,
		CurrentPlayerName: &lot.PlayerName,
		CurrentTier:       &lot.Tier,
		CurrentThread:     ptr(""),
		BiddingActive:     ptr(false),
		TimeRemaining:     ptr(0),
		HighestBid:        ptr(0),
		HighestBidderID:   ptr(""),
	})
	m.lotOpen = true
	m.lotBids = 0
	m.record(event.LotOpened, event.LotOpenedData{PlayerID: lot.PlayerID, PlayerName: lot.PlayerName, Tier: lot.Tier})
}

// Settle closes bidding and assigns the current player: to the highest
// bidder, charging their balance, or to the free agent pool at cost 0.
func (m *Machine) Settle(ctx context.Context) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Machine.Settle")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lotOpen {
		return Outcome{}, errNoLot
	}
	m.lotOpen = false
	m.lotBids = 0
	if m.state.BiddingActive {
		m.write(ctx, Patch{BiddingActive: ptr(false)})
	}

	player := roster.PlayerLot{
		ID:   m.state.CurrentPlayer,
		Name: m.state.CurrentPlayerName,
		Tier: m.state.CurrentTier,
	}
	span.SetAttributes(attribute.Int64("player.id", player.ID))

	highest, ok := m.highestBidDetail()
	captain := m.captains[highest.CaptainID]
	if !ok || captain == nil {
		m.freeAgents = append(m.freeAgents, player)
		m.logger.InfoContext(ctx, "no bids, player moved to free agents",
			slog.Int64("player_id", player.ID),
			slog.String("player", player.Name),
		)
		m.record(event.LotUnsold, event.LotSettledData{PlayerID: player.ID, PlayerName: player.Name, Tier: player.Tier})
		return Outcome{Player: player}, nil
	}

	player.Cost = highest.Amount
	captain.Sign(player)
	m.stats.PlayersSold++
	m.stats.TotalSpent += player.Cost
	if m.stats.MVP == nil || player.Cost > m.stats.MVP.Value {
		m.stats.MVP = &MVP{Name: player.Name, Value: player.Cost, Tier: player.Tier, Team: captain.TeamName}
	}

	m.logger.InfoContext(ctx, "player sold",
		slog.Int64("player_id", player.ID),
		slog.String("player", player.Name),
		slog.String("captain", captain.Name),
		slog.Int("cost", player.Cost),
	)
	m.record(event.LotSold, event.LotSettledData{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Tier:       player.Tier,
		CaptainID:  captain.ChatID,
		Cost:       player.Cost,
	})
	span.AddEvent("sold", trace.WithAttributes(attribute.Int("cost", player.Cost)))

	return Outcome{
		Sold:        true,
		Player:      player,
		CaptainID:   captain.ChatID,
		CaptainName: captain.Name,
		TeamName:    captain.TeamName,
	}, nil
}

// AbandonLot closes the open lot without settling it, so it can be auctioned
// again later. Its bids are taken back out of the run's bid count.
func (m *Machine) AbandonLot(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lotOpen {
		return
	}
	m.lotOpen = false
	m.stats.TotalBids -= m.lotBids
	m.logger.InfoContext(ctx, "lot abandoned",
		slog.Int64("player_id", m.state.CurrentPlayer),
		slog.Int("bids", m.lotBids),
	)
	m.lotBids = 0
	m.write(ctx, Patch{HighestBid: ptr(0), HighestBidderID: ptr("")})
}

// RecordSkipped notes a player whose lot could not be opened.
func (m *Machine) RecordSkipped(playerID int64, tier int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(event.LotSkipped, event.LotOpenedData{PlayerID: playerID, Tier: tier, Reason: reason})
}
