package auction

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type lotPlan struct {
	channel  string
	tier     int
	index    int
	count    int
	playerID int64
}

// runLot auctions one player: it opens a thread, runs the countdown and
// settles the lot. It returns an error only when ctx is cancelled before
// settlement, in which case the lot is left unsettled.
func (m *Manager) runLot(ctx context.Context, lp lotPlan) error {
	ctx, span := m.tracer.Start(ctx, "Manager.runLot",
		trace.WithAttributes(
			attribute.Int64("player.id", lp.playerID),
			attribute.Int("tier", lp.tier),
		),
	)
	defer span.End()

	name, err := m.profiles.ResolveDisplayName(ctx, lp.playerID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.WarnContext(ctx, "player lookup failed, skipping lot",
			slog.Int64("player_id", lp.playerID),
			slog.Any("error", err),
		)
		m.machine.RecordSkipped(lp.playerID, lp.tier, err.Error())
		m.metrics.lot(ctx, outcomeSkipped, lp.tier)
		m.persistEvents(ctx)
		return nil
	}

	lot := Lot{PlayerID: lp.playerID, PlayerName: name, Tier: lp.tier}
	m.machine.OpenLot(ctx, lot)

	thread, err := m.surface.CreateThread(ctx, lp.channel, threadTitle(m.cfg.ThreadPrefix, lp.tier, lp.index, name))
	hasThread := err == nil
	if !hasThread {
		m.logger.WarnContext(ctx, "failed to create lot thread, using channel",
			slog.Int64("player_id", lp.playerID),
			slog.Any("error", err),
		)
		thread = lp.channel
	}
	m.machine.Write(ctx, Patch{CurrentThread: &thread})
	if hasThread {
		m.lockThread(ctx, thread, true)
	}
	m.send(ctx, thread, lotIntroMessage(lp.index == 0, lot, int(m.cfg.LotOpenDelay/time.Second)))
	m.persistEvents(ctx)

	if err := m.clock.Sleep(ctx, m.cfg.LotOpenDelay); err != nil {
		return err
	}

	m.machine.Write(ctx, Patch{BiddingActive: ptr(true), TimeRemaining: &m.cfg.AuctionDuration})
	if hasThread {
		m.lockThread(ctx, thread, false)
	}
	m.send(ctx, thread, bidsOpenMessage(m.cfg.MinBid))
	countdown := m.send(ctx, lp.channel, countdownMessage(name, m.cfg.AuctionDuration))

	if err := m.countdown(ctx, countdown, name); err != nil {
		m.machine.Write(ctx, Patch{BiddingActive: ptr(false)})
		return err
	}

	m.machine.Write(ctx, Patch{BiddingActive: ptr(false)})
	m.send(ctx, thread, bidsClosedMessage())
	if hasThread {
		m.lockThread(ctx, thread, true)
	}

	if m.machine.Status() == StatusAborting {
		return nil
	}

	// Bidding is closed: settlement completes even if ctx is cancelled now.
	_ = m.clock.Sleep(ctx, m.cfg.SettleDelay)
	outcome, err := m.machine.Settle(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to settle lot", slog.Any("error", err))
		return nil
	}
	m.persistEvents(ctx)

	if outcome.Sold {
		m.metrics.lot(ctx, outcomeSold, lp.tier)
		m.metrics.sale(ctx, outcome.Player.Cost, lp.tier)
		m.send(ctx, thread, soldThreadMessage(outcome))
	} else {
		m.metrics.lot(ctx, outcomeUnsold, lp.tier)
		m.send(ctx, thread, unsoldThreadMessage())
	}
	m.edit(ctx, countdown, settledChannelMessage(outcome, lp.count-lp.index-1))

	if !hasThread {
		return nil
	}
	_ = m.clock.Sleep(ctx, m.cfg.ArchiveDelay)
	if err := m.surface.ArchiveThread(context.WithoutCancel(ctx), thread, true); err != nil {
		m.logger.WarnContext(ctx, "failed to archive lot thread",
			slog.String("thread_id", thread),
			slog.Any("error", err),
		)
	}
	return nil
}

// countdown ticks the open lot once a second until its time runs out, a skip
// zeroes it or the auction aborts. Bids may extend it concurrently.
func (m *Manager) countdown(ctx context.Context, msg MessageRef, name string) error {
	for {
		if err := m.clock.Sleep(ctx, time.Second); err != nil {
			return err
		}
		remaining, done := m.machine.Tick()
		if done {
			return nil
		}
		m.edit(ctx, msg, countdownMessage(name, remaining))
	}
}

func (m *Manager) lockThread(ctx context.Context, threadID string, locked bool) {
	if err := m.surface.LockThread(ctx, threadID, locked); err != nil {
		m.logger.WarnContext(ctx, "failed to update thread lock",
			slog.String("thread_id", threadID),
			slog.Bool("locked", locked),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) edit(ctx context.Context, ref MessageRef, content string) {
	if ref.MessageID == "" {
		return
	}
	if err := m.surface.EditMessage(ctx, ref, content); err != nil {
		m.logger.DebugContext(ctx, "failed to edit message",
			slog.String("message_id", ref.MessageID),
			slog.Any("error", err),
		)
	}
}
