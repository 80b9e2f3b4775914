package auction

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/event"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

const instrumentationName = "github.com/jensholdgaard/auction-house-bot/internal/auction"

var tracer = otel.Tracer(instrumentationName)

// Machine owns the auction state, the run statistics, the captain table and
// the free agent pool. Every method is one critical section, so a timer tick
// can never lose a concurrent bid's timer refresh. It is safe for concurrent use.
type Machine struct {
	mu sync.Mutex

	cfg        config.AuctionConfig
	identities roster.Captains
	logger     *slog.Logger

	state      State
	stats      Stats
	captains   roster.Captains
	freeAgents []roster.PlayerLot
	lotOpen    bool
	lotBids    int

	version int
	events  []event.Event
}

// NewMachine returns an idle machine. captains seeds chat id classification
// while no run is active.
func NewMachine(cfg config.AuctionConfig, captains []config.CaptainConfig, logger *slog.Logger) *Machine {
	return &Machine{
		cfg:        cfg,
		identities: roster.FromConfig(captains),
		logger:     logger,
		state:      defaultState(),
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Status returns the current lifecycle status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// Write applies a partial state update. Every field other than TimeRemaining
// is logged and recorded as a state change.
func (m *Machine) Write(ctx context.Context, p Patch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(ctx, p)
}

func (m *Machine) write(ctx context.Context, p Patch) {
	for _, c := range p.apply(&m.state) {
		m.logger.DebugContext(ctx, "state changed",
			slog.String("field", c.field),
			slog.Any("value", c.value),
		)
		m.record(event.StateChanged, event.StateChangedData{Field: c.field, Value: c.value})
	}
}

// TimeRemaining returns the seconds left on the open lot.
func (m *Machine) TimeRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TimeRemaining
}

// HighestBid returns the current highest bid, or 0 when there is none.
func (m *Machine) HighestBid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.HighestBidderID == "" {
		return 0
	}
	return m.state.HighestBid
}

// HighestBidDetail returns the current highest bid and its bidder.
func (m *Machine) HighestBidDetail() (BidDetail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highestBidDetail()
}

func (m *Machine) highestBidDetail() (BidDetail, bool) {
	if m.state.HighestBidderID == "" {
		return BidDetail{}, false
	}
	d := BidDetail{Amount: m.state.HighestBid, CaptainID: m.state.HighestBidderID}
	if c, ok := m.captains[d.CaptainID]; ok {
		d.CaptainName = c.Name
	}
	return d, true
}

// SetHighestBid records a new highest bid without validation and counts it.
func (m *Machine) SetHighestBid(ctx context.Context, captainID string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setHighestBid(ctx, captainID, captainID, amount)
}

func (m *Machine) setHighestBid(ctx context.Context, captainID, actorID string, amount int) {
	m.write(ctx, Patch{HighestBid: &amount, HighestBidderID: &captainID})
	m.stats.TotalBids++
	m.lotBids++

	name := captainID
	if c, ok := m.captains[captainID]; ok {
		name = c.Name
	}
	m.logger.InfoContext(ctx, "new highest bid",
		slog.String("captain", name),
		slog.String("actor_id", actorID),
		slog.Int("amount", amount),
	)
	m.record(event.BidPlaced, event.BidPlacedData{CaptainID: captainID, ActorID: actorID, Amount: amount})
}

// Reset discards the run: state, statistics, captains and free agents return
// to their defaults. Calling it repeatedly has no further effect.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *Machine) reset() {
	m.state = defaultState()
	m.stats = Stats{}
	m.captains = nil
	m.freeAgents = nil
	m.lotOpen = false
	m.lotBids = 0
	m.version = 0
	m.events = nil
}

// Begin starts a fresh run with the given captain table.
func (m *Machine) Begin(ctx context.Context, runID, channelID string, captains roster.Captains, totalPlayers int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	m.state.RunID = runID
	m.captains = captains
	m.freeAgents = []roster.PlayerLot{}
	m.stats.TotalPlayers = totalPlayers
	m.record(event.AuctionStarted, event.AuctionStartedData{ChannelID: channelID, TotalPlayers: totalPlayers})
	m.write(ctx, Patch{
		Status:         ptr(StatusRunning),
		CurrentChannel: &channelID,
		TotalPlayers:   &totalPlayers,
	})
}

// AddEvent appends a free-text note for the final report of the active run.
func (m *Machine) AddEvent(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusRunning && m.state.Status != StatusPausing {
		return ErrNoAuction
	}
	m.state.Events = append(m.state.Events, text)
	m.record(event.NoteAdded, event.NoteAddedData{Text: text})
	return nil
}

// Events returns the notes added during the run.
func (m *Machine) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.Events)
}

// Stats returns a copy of the run statistics.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.clone()
}

// Captain returns a copy of one captain's state.
func (m *Machine) Captain(chatID string) (*roster.Captain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captains[chatID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Captains returns a copy of the captain table.
func (m *Machine) Captains() roster.Captains {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captains.Clone()
}

// FreeAgents returns the players that went unsold.
func (m *Machine) FreeAgents() []roster.PlayerLot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.freeAgents)
}

// Classify resolves a chat id against the configured captains.
func (m *Machine) Classify(chatID string) roster.Identity {
	return m.identities.Classify(chatID)
}

// Tick advances the countdown by one second. done is true once the lot has
// run out of time or the auction is aborting.
func (m *Machine) Tick() (remaining int, done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusAborting || m.state.TimeRemaining <= 0 {
		return m.state.TimeRemaining, true
	}
	m.state.TimeRemaining--
	return m.state.TimeRemaining, false
}

// RequestPause asks the running auction to stop after the current lot.
func (m *Machine) RequestPause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Status {
	case StatusRunning:
		m.write(ctx, Patch{Status: ptr(StatusPausing)})
		return nil
	case StatusPausing:
		return ErrAlreadyPausing
	case StatusAborting:
		return ErrAlreadyAborting
	default:
		return ErrNoAuction
	}
}

// RequestAbort asks the running auction to stop and discard its state. A
// paused run held in memory is discarded immediately, reported by discarded.
func (m *Machine) RequestAbort(ctx context.Context) (discarded bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Status {
	case StatusRunning, StatusPausing:
		m.write(ctx, Patch{Status: ptr(StatusAborting)})
		return false, nil
	case StatusPaused:
		m.reset()
		return true, nil
	case StatusAborting:
		return false, ErrAlreadyAborting
	default:
		return false, ErrNoAuction
	}
}

// Interrupt turns a running auction into a pausing one. It is used when the
// process is shutting down.
func (m *Machine) Interrupt(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status == StatusRunning {
		m.write(ctx, Patch{Status: ptr(StatusPausing)})
	}
}

// Hold marks the run as paused in memory. It records no event, so a held
// snapshot stays consistent with the persisted event log.
func (m *Machine) Hold(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Status = StatusPaused
	m.state.BiddingActive = false
	m.logger.DebugContext(ctx, "state changed", slog.String("field", "status"), slog.Any("value", StatusPaused))
}

// RecordEnd records the end of the run with its final statistics.
func (m *Machine) RecordEnd(t event.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordEnd(t)
}

func (m *Machine) recordEnd(t event.Type) {
	m.record(t, event.AuctionEndedData{
		PlayersSold: m.stats.PlayersSold,
		TotalBids:   m.stats.TotalBids,
		TotalSpent:  m.stats.TotalSpent,
	})
}

// SkipLot ends the open lot's countdown.
func (m *Machine) SkipLot(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status != StatusRunning && m.state.Status != StatusPausing {
		return ErrNoAuction
	}
	if !m.state.BiddingActive {
		return ErrBiddingClosed
	}
	m.state.TimeRemaining = 0
	m.logger.InfoContext(ctx, "lot timer skipped", slog.Int64("player_id", m.state.CurrentPlayer))
	return nil
}

// PendingEvents returns unpersisted events and clears the buffer.
func (m *Machine) PendingEvents() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	m.events = nil
	return events
}

// record buffers a domain event of the active run. Events outside a run are dropped.
func (m *Machine) record(t event.Type, payload any) {
	if m.state.RunID == "" {
		return
	}
	data, _ := json.Marshal(payload)
	m.version++
	m.events = append(m.events, event.Event{
		AggregateID: m.state.RunID,
		Type:        t,
		Data:        data,
		Version:     m.version,
	})
}
