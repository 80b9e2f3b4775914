package auction

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

// Receipt describes an accepted bid for rendering.
type Receipt struct {
	CaptainID   string
	CaptainName string
	TeamName    string
	// ActorID is the chat id that placed the bid; it differs from CaptainID for proxies.
	ActorID    string
	Proxy      bool
	Amount     int
	NextMin    int
	NextMax    int
	TimerReset bool
	ThreadID   string
	PlayerName string
}

// PlaceBid validates a bid against the current lot and, when it passes every
// check, makes it the highest bid. Checks short-circuit in a fixed order.
// Rejections wrap ErrRejected and leave the state unchanged.
func (m *Machine) PlaceBid(ctx context.Context, chatID string, amount int) (Receipt, error) {
	ctx, span := tracer.Start(ctx, "Machine.PlaceBid",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("bid.amount", amount),
		),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.identities.Classify(chatID)
	if !id.IsCaptain() {
		return Receipt{}, ErrNotCaptain
	}

	if m.state.Status != StatusRunning && m.state.Status != StatusPausing {
		return Receipt{}, ErrNoAuction
	}
	if !m.state.BiddingActive {
		return Receipt{}, ErrBiddingClosed
	}

	captain, ok := m.captains[id.CaptainID]
	if !ok {
		// Configured after the run began, e.g. a resumed snapshot from an older roster.
		return Receipt{}, ErrNotCaptain
	}
	if captain.TeamSize() >= m.cfg.MaxTeamSize {
		return Receipt{}, ErrTeamFull
	}

	highest, hasHighest := m.highestBidDetail()
	if hasHighest && highest.CaptainID == captain.ChatID {
		return Receipt{}, ErrAlreadyHighestBidder
	}

	if amount < m.cfg.MinBid {
		return Receipt{}, ErrBelowMinimum
	}
	if amount > m.cfg.MaxBid {
		return Receipt{}, ErrAboveMaximum
	}
	if amount > captain.Balance {
		return Receipt{}, ErrInsufficientBalance
	}

	if hasHighest {
		if amount < highest.Amount+m.cfg.MinBidIncrement {
			return Receipt{}, ErrBelowIncrement
		}
		if amount > highest.Amount+m.cfg.MaxBidIncrement {
			return Receipt{}, ErrAboveIncrement
		}
	}

	m.setHighestBid(ctx, captain.ChatID, chatID, amount)

	reset := false
	if m.state.TimeRemaining < m.cfg.ResetDuration {
		m.state.TimeRemaining = m.cfg.ResetDuration
		reset = true
	}

	return Receipt{
		CaptainID:   captain.ChatID,
		CaptainName: captain.Name,
		TeamName:    captain.TeamName,
		ActorID:     chatID,
		Proxy:       id.Kind == roster.Proxying,
		Amount:      amount,
		NextMin:     amount + m.cfg.MinBidIncrement,
		NextMax:     amount + m.cfg.MaxBidIncrement,
		TimerReset:  reset,
		ThreadID:    m.state.CurrentThread,
		PlayerName:  m.state.CurrentPlayerName,
	}, nil
}
