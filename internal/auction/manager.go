package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/event"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

// finishTimeout bounds the persistence and announcements after the loop ends,
// which run detached from the caller's context.
const finishTimeout = 30 * time.Second

// Mode tells whether a start began a new run or resumed a paused one.
type Mode int

const (
	ModeFresh Mode = iota
	ModeResume
)

func (m Mode) String() string {
	if m == ModeResume {
		return "resume"
	}
	return "fresh"
}

// Deps are the collaborators of a Manager. Reports may be nil.
type Deps struct {
	Surface   ChatSurface
	Profiles  ProfileLookup
	Reports   ReportGenerator
	Snapshots SnapshotStore
	Results   ResultsExporter
	Events    event.Store

	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Clock          clock.Clock
}

// Manager runs auctions: it walks the tiers and players, paces each lot and
// turns pause, abort and completion into persisted outcomes.
type Manager struct {
	mu     sync.Mutex
	active bool
	held   *Snapshot
	wg     sync.WaitGroup

	cfg      config.AuctionConfig
	captains []config.CaptainConfig
	players  config.PlayersConfig
	machine  *Machine

	surface   ChatSurface
	profiles  ProfileLookup
	reports   ReportGenerator
	snapshots SnapshotStore
	results   ResultsExporter
	events    event.Store

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics
	clock   clock.Clock
	shuffle func([]int64)
}

// NewManager creates a Manager for the configured roster and rules.
func NewManager(cfg *config.Config, d Deps) (*Manager, error) {
	met, err := newMetrics(d.MeterProvider)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:       cfg.Auction,
		captains:  cfg.Captains,
		players:   cfg.Players,
		machine:   NewMachine(cfg.Auction, cfg.Captains, d.Logger),
		surface:   d.Surface,
		profiles:  d.Profiles,
		reports:   d.Reports,
		snapshots: d.Snapshots,
		results:   d.Results,
		events:    d.Events,
		logger:    d.Logger,
		tracer:    d.TracerProvider.Tracer(instrumentationName),
		metrics:   met,
		clock:     d.Clock,
		shuffle: func(ids []int64) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}, nil
}

// State returns a copy of the live auction state.
func (m *Manager) State() State {
	return m.machine.State()
}

// Stats returns a copy of the live run statistics.
func (m *Manager) Stats() Stats {
	return m.machine.Stats()
}

// plan is where the tier loop starts.
type plan struct {
	mode        Mode
	order       map[int][]int64
	tierIndex   int
	playerIndex int
}

// Start begins an auction in channelID, resuming a paused run when one exists,
// and runs it in the background until it completes, pauses or aborts.
// Cancelling ctx pauses the run after the current lot's countdown.
func (m *Manager) Start(ctx context.Context, channelID string) (Mode, error) {
	p, err := m.prepare(ctx, channelID)
	if err != nil {
		return ModeFresh, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.run(ctx, p); err != nil {
			m.logger.ErrorContext(ctx, "auction run ended with error", slog.Any("error", err))
		}
	}()
	return p.mode, nil
}

// Run is like Start but blocks until the run ends.
func (m *Manager) Run(ctx context.Context, channelID string) error {
	p, err := m.prepare(ctx, channelID)
	if err != nil {
		return err
	}
	return m.run(ctx, p)
}

// Wait blocks until every run started with Start has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) prepare(ctx context.Context, channelID string) (plan, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Start",
		trace.WithAttributes(attribute.String("channel.id", channelID)),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return plan{}, ErrAuctionInProgress
	}

	p, err := m.plan(ctx, channelID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return plan{}, err
	}
	m.active = true
	span.SetAttributes(attribute.String("auction.mode", p.mode.String()))

	m.persistEvents(ctx)
	return p, nil
}

func (m *Manager) plan(ctx context.Context, channelID string) (plan, error) {
	if m.held != nil {
		snap := *m.held
		m.held = nil
		m.logger.InfoContext(ctx, "resuming auction held in memory")
		return m.restore(ctx, snap, channelID), nil
	}

	exists, err := m.snapshots.Exists(ctx)
	if err != nil {
		return plan{}, fmt.Errorf("%w: checking for paused auction: %w", ErrPersistence, err)
	}
	if !exists {
		return m.fresh(ctx, channelID)
	}

	snap, err := m.snapshots.Load(ctx)
	if err != nil {
		return plan{}, fmt.Errorf("%w: loading paused auction: %w", ErrPersistence, err)
	}
	if err := snap.Validate(m.cfg.TierOrder); err != nil {
		return plan{}, err
	}
	if err := m.checkEventLog(ctx, snap); err != nil {
		return plan{}, err
	}
	if err := m.snapshots.Delete(ctx); err != nil {
		return plan{}, fmt.Errorf("%w: deleting paused auction: %w", ErrPersistence, err)
	}
	return m.restore(ctx, *snap, channelID), nil
}

// checkEventLog rejects a snapshot older than the persisted log of its run,
// since resuming it would reuse event versions. A log that is behind the
// snapshot only lost appends and is resumed with a warning.
func (m *Manager) checkEventLog(ctx context.Context, snap *Snapshot) error {
	runID := snap.AuctionState.RunID
	if runID == "" {
		return nil
	}
	events, err := m.events.Load(ctx, runID)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load event log of paused auction",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
		return nil
	}

	persisted := 0
	for _, e := range events {
		persisted = max(persisted, e.Version)
	}
	switch {
	case persisted > snap.EventVersion:
		return fmt.Errorf("%w: event log of run %s is at version %d, snapshot at %d",
			ErrMalformedSnapshot, runID, persisted, snap.EventVersion)
	case persisted < snap.EventVersion:
		m.logger.WarnContext(ctx, "event log is behind paused auction",
			slog.String("run_id", runID),
			slog.Int("log_version", persisted),
			slog.Int("snapshot_version", snap.EventVersion),
		)
	}
	return nil
}

func (m *Manager) restore(ctx context.Context, snap Snapshot, channelID string) plan {
	m.machine.Restore(ctx, snap, channelID)
	return plan{
		mode:        ModeResume,
		order:       snap.ShuffledPlayers,
		tierIndex:   snap.AuctionState.CurrentTierIndex,
		playerIndex: snap.CurrentPlayerIndex,
	}
}

func (m *Manager) fresh(ctx context.Context, channelID string) (plan, error) {
	m.machine.Reset()

	table, err := roster.Resolve(ctx, m.captains, m.profiles)
	if err != nil {
		return plan{}, err
	}

	eligible, dropped := roster.EligiblePlayers(m.players, m.captains)
	for _, id := range dropped {
		m.logger.WarnContext(ctx, "captain listed as player, excluding from auction", slog.Int64("osu_id", id))
	}

	order := make(map[int][]int64, len(config.Tiers))
	total := 0
	for _, tier := range config.Tiers {
		ids := eligible.Tier(tier)
		if m.cfg.ShufflePlayers {
			m.shuffle(ids)
		}
		order[tier] = ids
		total += len(ids)
	}

	runID := uuid.NewString()
	m.machine.Begin(ctx, runID, channelID, table.Fresh(m.cfg.StartingBalance), total)
	m.logger.InfoContext(ctx, "auction started",
		slog.String("run_id", runID),
		slog.String("channel_id", channelID),
		slog.Int("captains", table.Len()),
		slog.Int("players", total),
	)
	return plan{mode: ModeFresh, order: order}, nil
}

// run walks the tiers from p and settles every lot until the tiers are
// exhausted or a pause or abort is observed between lots.
func (m *Manager) run(ctx context.Context, p plan) error {
	ctx, span := m.tracer.Start(ctx, "Manager.run",
		trace.WithAttributes(attribute.String("auction.mode", p.mode.String())),
	)
	defer span.End()
	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	channel := m.machine.State().CurrentChannel
	m.send(ctx, channel, startMessage(p.mode == ModeResume))
	_ = m.clock.Sleep(ctx, m.cfg.StartDelay)

	ti, pi := p.tierIndex, p.playerIndex
tiers:
	for ; ti < len(m.cfg.TierOrder); ti++ {
		tier := m.cfg.TierOrder[ti]
		m.machine.Write(ctx, Patch{CurrentTierIndex: &ti, CurrentTier: &tier})
		if m.stopping(ctx) {
			break
		}

		m.send(ctx, channel, tierMessage(ti == 0, tier))
		_ = m.clock.Sleep(ctx, m.cfg.TierDelay)

		players := p.order[tier]
		for ; pi < len(players); pi++ {
			if m.stopping(ctx) {
				break tiers
			}
			lp := lotPlan{
				channel:  channel,
				tier:     tier,
				index:    pi,
				count:    len(players),
				playerID: players[pi],
			}
			if err := m.runLot(ctx, lp); err != nil {
				// Interrupted before settlement: the lot is auctioned again on resume.
				m.machine.AbandonLot(ctx)
				m.machine.Interrupt(ctx)
				break tiers
			}
		}
		pi = 0
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	switch m.machine.Status() {
	case StatusPausing:
		err := m.pause(fctx, channel, p.order, ti, pi)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	case StatusAborting:
		m.abort(fctx, channel)
	default:
		m.complete(fctx, channel)
	}
	return nil
}

// stopping reports whether the loop must stop before the next lot. A
// cancelled context counts as a pause request.
func (m *Manager) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		m.machine.Interrupt(ctx)
	}
	return m.machine.Status() != StatusRunning
}

func (m *Manager) pause(ctx context.Context, channel string, order map[int][]int64, ti, pi int) error {
	snap := m.machine.Capture(ctx, order, ti, pi)
	if err := m.snapshots.Save(ctx, &snap); err != nil {
		m.machine.Hold(ctx)
		m.mu.Lock()
		m.held = &snap
		m.mu.Unlock()
		m.persistEvents(ctx)

		m.logger.ErrorContext(ctx, "failed to save paused auction, keeping it in memory",
			slog.String("run_id", snap.AuctionState.RunID),
			slog.Any("error", err),
		)
		m.send(ctx, channel, pauseFailedMessage())
		return fmt.Errorf("%w: saving paused auction: %w", ErrPersistence, err)
	}

	m.persistEvents(ctx)
	m.machine.Reset()
	m.logger.InfoContext(ctx, "auction paused",
		slog.String("run_id", snap.AuctionState.RunID),
		slog.Int("tier_index", ti),
		slog.Int("player_index", pi),
	)
	m.send(ctx, channel, pausedMessage())
	return nil
}

func (m *Manager) abort(ctx context.Context, channel string) {
	runID := m.machine.State().RunID
	m.machine.RecordEnd(event.AuctionAborted)
	m.persistEvents(ctx)
	m.machine.Reset()
	m.logger.InfoContext(ctx, "auction aborted", slog.String("run_id", runID))
	m.send(ctx, channel, abortedMessage())
}

func (m *Manager) complete(ctx context.Context, channel string) {
	res := m.machine.Results(m.clock.Now())

	if m.cfg.AIReport && m.reports != nil {
		summary, err := m.reports.Summarize(ctx, res)
		if err != nil {
			m.logger.WarnContext(ctx, "auction report generation failed", slog.Any("error", err))
		} else {
			res.Summary = summary
		}
	}

	if err := m.results.Write(ctx, &res); err != nil {
		m.logger.ErrorContext(ctx, "failed to export auction results",
			slog.String("run_id", res.RunID),
			slog.Any("error", err),
		)
	}

	m.machine.RecordEnd(event.AuctionCompleted)
	m.persistEvents(ctx)

	m.send(ctx, channel, finishedMessage())
	for _, msg := range resultsMessages(res) {
		m.send(ctx, channel, msg)
	}
	if res.Summary != "" {
		m.send(ctx, channel, summaryMessage(res.Summary))
	}

	m.machine.Reset()
	m.logger.InfoContext(ctx, "auction completed",
		slog.String("run_id", res.RunID),
		slog.Int("players_sold", res.Stats.PlayersSold),
		slog.Int("total_spent", res.Stats.TotalSpent),
	)
}

// PlaceBid validates and records a bid from chatID on the open lot.
func (m *Manager) PlaceBid(ctx context.Context, chatID string, amount int) (Receipt, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("bid.amount", amount),
		),
	)
	defer span.End()

	r, err := m.machine.PlaceBid(ctx, chatID, amount)
	m.metrics.bid(ctx, err)
	if err != nil {
		span.SetAttributes(attribute.String("bid.result", RejectionCode(err)))
		return Receipt{}, err
	}

	m.persistEvents(ctx)
	return r, nil
}

// Pause asks the running auction to pause once the current lot is settled.
func (m *Manager) Pause(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Pause")
	defer span.End()

	if err := m.machine.RequestPause(ctx); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "auction pause requested")
	m.persistEvents(ctx)
	return nil
}

// Abort asks the running auction to stop without saving it. A run held in
// memory after a failed pause save is discarded.
func (m *Manager) Abort(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Abort")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	discarded, err := m.machine.RequestAbort(ctx)
	if err != nil {
		return err
	}
	if discarded {
		m.held = nil
		m.logger.InfoContext(ctx, "discarded paused auction held in memory")
		return nil
	}
	m.logger.InfoContext(ctx, "auction abort requested")
	m.persistEvents(ctx)
	return nil
}

// Skip ends the open lot's countdown immediately.
func (m *Manager) Skip(ctx context.Context) error {
	return m.machine.SkipLot(ctx)
}

// AddEvent adds a note to the active run's report.
func (m *Manager) AddEvent(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("event text is empty")
	}
	if err := m.machine.AddEvent(text); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "auction note added", slog.String("text", text))
	m.persistEvents(ctx)
	return nil
}

// Balance returns the remaining balance of the captain chatID bids for.
func (m *Manager) Balance(chatID string) (int, error) {
	c, err := m.Team(chatID)
	if err != nil {
		return 0, err
	}
	return c.Balance, nil
}

// Team returns a copy of the team of the captain chatID bids for.
func (m *Manager) Team(chatID string) (*roster.Captain, error) {
	id := m.machine.Classify(chatID)
	if !id.IsCaptain() {
		return nil, ErrNotCaptain
	}
	c, ok := m.machine.Captain(id.CaptainID)
	if !ok {
		return nil, ErrNoAuction
	}
	return c, nil
}

// Role is how a looked-up profile takes part in the tournament.
type Role int

const (
	RoleUnregistered Role = iota
	RoleCaptain
	RolePlayer
)

// CheckResult describes a looked-up profile.
type CheckResult struct {
	ProfileID int64
	Name      string
	Role      Role
	TeamName  string
	Tier      int
}

// Check looks up a profile by numeric id or username and reports whether it
// is a captain, a seeded player or unregistered. Lookup errors are returned
// as is.
func (m *Manager) Check(ctx context.Context, query string) (CheckResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Check")
	defer span.End()

	query = strings.TrimSpace(query)
	var res CheckResult
	if id, err := strconv.ParseInt(query, 10, 64); err == nil && id > 0 {
		name, err := m.profiles.ResolveDisplayName(ctx, id)
		if err != nil {
			return CheckResult{}, err
		}
		res.ProfileID, res.Name = id, name
	} else {
		id, err := m.profiles.ResolveID(ctx, query)
		if err != nil {
			return CheckResult{}, err
		}
		res.ProfileID, res.Name = id, query
	}

	for _, c := range m.captains {
		if c.ProfileID == res.ProfileID {
			res.Role = RoleCaptain
			res.TeamName = c.TeamName
			return res, nil
		}
	}
	if tier, ok := roster.LookupPlayerTier(m.players, res.ProfileID); ok {
		res.Role = RolePlayer
		res.Tier = tier
	}
	return res, nil
}

func (m *Manager) persistEvents(ctx context.Context) {
	events := m.machine.PendingEvents()
	if len(events) == 0 {
		return
	}
	if err := m.events.Append(ctx, events...); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist auction events",
			slog.Int("count", len(events)),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) send(ctx context.Context, channelID, content string) MessageRef {
	ref, err := m.surface.SendMessage(ctx, channelID, content)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to send message",
			slog.String("channel_id", channelID),
			slog.Any("error", err),
		)
	}
	return ref
}
