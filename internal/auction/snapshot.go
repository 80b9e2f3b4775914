package auction

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/event"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

// Snapshot is the persisted state of a paused run. CurrentPlayerIndex is the
// next unauctioned player of the tier at AuctionState.CurrentTierIndex.
type Snapshot struct {
	AuctionState       State              `json:"auctionState"`
	AuctionStats       Stats              `json:"auctionStats"`
	FreeAgents         []roster.PlayerLot `json:"freeAgents"`
	ShuffledPlayers    map[int][]int64    `json:"shuffledPlayers"`
	Captains           roster.Captains    `json:"captains"`
	CurrentPlayerIndex int                `json:"currentPlayerIndex"`
	EventVersion       int                `json:"eventVersion"`
}

// Validate checks that the snapshot can be resumed with the given tier order.
func (s *Snapshot) Validate(tierOrder []int) error {
	// Snapshots are written idle. Paused and running are accepted from older files.
	switch s.AuctionState.Status {
	case StatusIdle, StatusPaused, StatusRunning:
	default:
		return fmt.Errorf("%w: status %q is not resumable", ErrMalformedSnapshot, s.AuctionState.Status)
	}

	for _, tier := range config.Tiers {
		if _, ok := s.ShuffledPlayers[tier]; !ok {
			return fmt.Errorf("%w: player order for tier %d missing", ErrMalformedSnapshot, tier)
		}
	}

	ti := s.AuctionState.CurrentTierIndex
	if ti < 0 || ti > len(tierOrder) {
		return fmt.Errorf("%w: tier index %d out of range", ErrMalformedSnapshot, ti)
	}
	if s.CurrentPlayerIndex < 0 {
		return fmt.Errorf("%w: negative player index", ErrMalformedSnapshot)
	}
	if ti < len(tierOrder) && s.CurrentPlayerIndex > len(s.ShuffledPlayers[tierOrder[ti]]) {
		return fmt.Errorf("%w: player index %d out of range for tier %d", ErrMalformedSnapshot, s.CurrentPlayerIndex, tierOrder[ti])
	}

	if len(s.Captains) == 0 {
		return fmt.Errorf("%w: no captains", ErrMalformedSnapshot)
	}
	for id, c := range s.Captains {
		if c == nil || c.ChatID != id {
			return fmt.Errorf("%w: captain entry %q inconsistent", ErrMalformedSnapshot, id)
		}
		value := 0
		for _, p := range c.TeamMembers {
			value += p.Cost
		}
		if value != c.TeamValue || c.Balance < 0 {
			return fmt.Errorf("%w: captain %s ledger inconsistent", ErrMalformedSnapshot, id)
		}
	}
	return nil
}

// Capture records the pause and returns a snapshot that resumes at the given
// tier and player index.
func (m *Machine) Capture(ctx context.Context, order map[int][]int64, tierIndex, playerIndex int) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recordEnd(event.AuctionPaused)

	st := m.state.clone()
	st.Status = StatusIdle
	st.CurrentTierIndex = tierIndex
	st.BiddingActive = false

	shuffled := make(map[int][]int64, len(order))
	for tier, ids := range order {
		shuffled[tier] = slices.Clone(ids)
	}

	m.logger.DebugContext(ctx, "captured pause snapshot",
		slog.Int("tier_index", tierIndex),
		slog.Int("player_index", playerIndex),
	)

	return Snapshot{
		AuctionState:       st,
		AuctionStats:       m.stats.clone(),
		FreeAgents:         slices.Clone(m.freeAgents),
		ShuffledPlayers:    shuffled,
		Captains:           m.captains.Clone(),
		CurrentPlayerIndex: playerIndex,
		EventVersion:       m.version,
	}
}

// Restore replaces the machine's run with the snapshot's and marks it running.
func (m *Machine) Restore(ctx context.Context, s Snapshot, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	m.state = s.AuctionState.clone()
	m.state.Status = StatusRunning
	m.state.BiddingActive = false
	if channelID != "" {
		m.state.CurrentChannel = channelID
	}
	m.stats = s.AuctionStats.clone()
	m.captains = s.Captains.Clone()
	m.freeAgents = slices.Clone(s.FreeAgents)
	if m.freeAgents == nil {
		m.freeAgents = []roster.PlayerLot{}
	}
	m.version = s.EventVersion

	m.logger.InfoContext(ctx, "auction state restored",
		slog.String("run_id", m.state.RunID),
		slog.Int("tier_index", m.state.CurrentTierIndex),
		slog.Int("player_index", s.CurrentPlayerIndex),
		slog.Any("captains", slices.Sorted(maps.Keys(m.captains))),
	)
	m.record(event.AuctionResumed, event.AuctionStartedData{
		ChannelID:    m.state.CurrentChannel,
		TotalPlayers: m.state.TotalPlayers,
		TierIndex:    m.state.CurrentTierIndex,
		PlayerIndex:  s.CurrentPlayerIndex,
	})
}
