package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/profile"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

type fakeAuction struct {
	state    auction.State
	mode     auction.Mode
	startErr error
	bidErr   error
	receipt  auction.Receipt
	balance  int
	team     *roster.Captain
	check    auction.CheckResult
	checkErr error

	startChannel string
	paused       bool
	aborted      bool
	skipped      bool
	events       []string
	bids         []int
}

func (f *fakeAuction) State() auction.State { return f.state }

func (f *fakeAuction) Start(_ context.Context, channelID string) (auction.Mode, error) {
	f.startChannel = channelID
	return f.mode, f.startErr
}

func (f *fakeAuction) Pause(context.Context) error { f.paused = true; return nil }
func (f *fakeAuction) Abort(context.Context) error { f.aborted = true; return nil }
func (f *fakeAuction) Skip(context.Context) error  { f.skipped = true; return nil }

func (f *fakeAuction) AddEvent(_ context.Context, text string) error {
	f.events = append(f.events, text)
	return nil
}

func (f *fakeAuction) PlaceBid(_ context.Context, _ string, amount int) (auction.Receipt, error) {
	f.bids = append(f.bids, amount)
	if f.bidErr != nil {
		return auction.Receipt{}, f.bidErr
	}
	return f.receipt, nil
}

func (f *fakeAuction) Balance(string) (int, error) { return f.balance, nil }

func (f *fakeAuction) Team(string) (*roster.Captain, error) {
	if f.team == nil {
		return nil, auction.ErrNoAuction
	}
	return f.team, nil
}

func (f *fakeAuction) Check(context.Context, string) (auction.CheckResult, error) {
	return f.check, f.checkErr
}

// fakeSurface records every reply. Confirm answers with choice.
type fakeSurface struct {
	choice   auction.ButtonChoice
	threads  []string
	sent     []string
	deleted  []string
	replies  []string
	deferred int
	asked    []string
}

func (f *fakeSurface) SendMessage(_ context.Context, channelID, content string) (auction.MessageRef, error) {
	f.sent = append(f.sent, channelID+": "+content)
	return auction.MessageRef{ChannelID: channelID, MessageID: "m"}, nil
}

func (f *fakeSurface) DeleteThread(_ context.Context, threadID string) error {
	if threadID == "locked" {
		return errors.New("missing permissions")
	}
	f.deleted = append(f.deleted, threadID)
	return nil
}

func (f *fakeSurface) Respond(_ context.Context, _ *discordgo.Interaction, content string, _ bool) error {
	f.replies = append(f.replies, content)
	return nil
}

func (f *fakeSurface) Defer(context.Context, *discordgo.Interaction, bool) error {
	f.deferred++
	return nil
}

func (f *fakeSurface) EditResponse(_ context.Context, _ *discordgo.Interaction, content string) error {
	f.replies = append(f.replies, content)
	return nil
}

func (f *fakeSurface) Confirm(_ context.Context, _ *discordgo.Interaction, question string, _ time.Duration) (auction.ButtonChoice, error) {
	f.asked = append(f.asked, question)
	return f.choice, nil
}

func (f *fakeSurface) Threads(context.Context, string, string, string) ([]string, error) {
	return f.threads, nil
}

func (f *fakeSurface) lastReply(t *testing.T) string {
	t.Helper()
	if len(f.replies) == 0 {
		t.Fatal("no reply was sent")
	}
	return f.replies[len(f.replies)-1]
}

var testConfig = config.AuctionConfig{
	AuctionDuration: 30,
	ResetDuration:   10,
	MinBid:          10,
	MaxBid:          1000,
	MinBidIncrement: 5,
	MaxBidIncrement: 100,
	MaxTeamSize:     4,
	StartingBalance: 500,
	ThreadPrefix:    "Auction",
}

func newHandlers(a *fakeAuction, s *fakeSurface) *Handlers {
	return NewHandlers(context.Background(), a, s, testConfig, slog.New(slog.DiscardHandler), noop.NewTracerProvider())
}

func command(name string, admin bool, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	var perms int64
	if admin {
		perms = discordgo.PermissionManageServer
	}
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "guild",
		ChannelID: "chan-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "100"}, Permissions: perms},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func intOpt(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v),
	}
}

func strOpt(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v,
	}
}

func TestSlashCommands(t *testing.T) {
	cmds := SlashCommands()
	if len(cmds) != 11 {
		t.Fatalf("len(SlashCommands()) = %d, want 11", len(cmds))
	}
	for _, c := range cmds {
		gated := c.DefaultMemberPermissions != nil
		if gated != adminCommands[c.Name] {
			t.Errorf("%s: permission gate = %v, admin = %v", c.Name, gated, adminCommands[c.Name])
		}
	}
}

func TestHandle_AdminRequired(t *testing.T) {
	for name := range adminCommands {
		t.Run(name, func(t *testing.T) {
			a := &fakeAuction{state: auction.State{Status: auction.StatusRunning, BiddingActive: true}}
			s := &fakeSurface{choice: auction.ChoiceConfirm}
			newHandlers(a, s).Handle(command(name, false, strOpt("event", "x")))

			if got := s.lastReply(t); !strings.Contains(got, "Manage Server") {
				t.Errorf("reply = %q, want permission notice", got)
			}
			if len(s.asked) != 0 || a.startChannel != "" || a.paused || a.aborted || a.skipped {
				t.Error("command ran without permission")
			}
		})
	}
}

func TestHandleStart(t *testing.T) {
	tests := []struct {
		name string
		mode auction.Mode
		err  error
		want string
	}{
		{name: "fresh", mode: auction.ModeFresh, want: "Starting the auction"},
		{name: "resume", mode: auction.ModeResume, want: "Resuming the paused auction"},
		{name: "in progress", err: auction.ErrAuctionInProgress, want: "already in progress"},
		{name: "unresolved captain", err: fmt.Errorf("%w: 42", roster.ErrUnresolvedCaptain), want: "captain osu! ids"},
		{name: "malformed snapshot", err: auction.ErrMalformedSnapshot, want: "could not be loaded"},
		{name: "other", err: errors.New("boom"), want: "Check the logs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAuction{mode: tt.mode, startErr: tt.err}
			s := &fakeSurface{}
			newHandlers(a, s).Handle(command("start-auction", true))

			if s.deferred != 1 {
				t.Errorf("deferred = %d, want 1", s.deferred)
			}
			if a.startChannel != "chan-1" {
				t.Errorf("started in %q, want chan-1", a.startChannel)
			}
			if got := s.lastReply(t); !strings.Contains(got, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestHandlePause(t *testing.T) {
	tests := []struct {
		name       string
		status     auction.Status
		choice     auction.ButtonChoice
		wantPaused bool
		want       string
	}{
		{name: "confirmed", status: auction.StatusRunning, choice: auction.ChoiceConfirm, wantPaused: true, want: "Queued the auction to pause"},
		{name: "cancelled", status: auction.StatusRunning, choice: auction.ChoiceCancel, want: "Cancelled."},
		{name: "timed out", status: auction.StatusRunning, choice: auction.ChoiceTimeout, want: "No response within 15 seconds"},
		{name: "already pausing", status: auction.StatusPausing, want: "already queued to pause"},
		{name: "idle", status: auction.StatusIdle, want: "no ongoing auction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAuction{state: auction.State{Status: tt.status}}
			s := &fakeSurface{choice: tt.choice}
			newHandlers(a, s).Handle(command("pause-auction", true))

			if a.paused != tt.wantPaused {
				t.Errorf("paused = %v, want %v", a.paused, tt.wantPaused)
			}
			if got := s.lastReply(t); !strings.Contains(got, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestHandleAbortAndSkip(t *testing.T) {
	a := &fakeAuction{state: auction.State{Status: auction.StatusPaused}}
	s := &fakeSurface{choice: auction.ChoiceConfirm}
	h := newHandlers(a, s)

	h.Handle(command("abort-auction", true))
	if !a.aborted {
		t.Error("paused auction was not aborted")
	}

	h.Handle(command("skip-player", true))
	if a.skipped {
		t.Error("skipped without active bidding")
	}
	if got := s.lastReply(t); !strings.Contains(got, "not active") {
		t.Errorf("reply = %q", got)
	}

	a.state = auction.State{Status: auction.StatusRunning, BiddingActive: true}
	h.Handle(command("skip-player", true))
	if !a.skipped {
		t.Error("skip was not applied")
	}
}

func TestHandleAddEvent(t *testing.T) {
	a := &fakeAuction{state: auction.State{Status: auction.StatusRunning}}
	s := &fakeSurface{choice: auction.ChoiceConfirm}
	h := newHandlers(a, s)

	h.Handle(command("add-event", true, strOpt("event", "   ")))
	if len(a.events) != 0 || !strings.Contains(s.lastReply(t), "empty") {
		t.Errorf("empty event: events = %v, reply = %q", a.events, s.lastReply(t))
	}

	h.Handle(command("add-event", true, strOpt("event", " Pickles rage quit ")))
	if len(a.events) != 1 || a.events[0] != "Pickles rage quit" {
		t.Errorf("events = %v", a.events)
	}
	if len(s.asked) != 1 || !strings.Contains(s.asked[0], "> Pickles rage quit") {
		t.Errorf("confirmation = %v", s.asked)
	}
}

func TestHandleClearThreads(t *testing.T) {
	a := &fakeAuction{state: auction.State{Status: auction.StatusRunning}}
	s := &fakeSurface{choice: auction.ChoiceConfirm, threads: []string{"t1", "locked", "t2"}}
	h := newHandlers(a, s)

	h.Handle(command("clear-threads", true))
	if len(s.deleted) != 0 {
		t.Fatalf("deleted %v while running", s.deleted)
	}

	a.state.Status = auction.StatusIdle
	h.Handle(command("clear-threads", true))
	if len(s.deleted) != 2 {
		t.Errorf("deleted = %v, want t1 and t2", s.deleted)
	}
	if got := s.lastReply(t); got != "Deleted 2 of 3 auction threads in this channel." {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleBid(t *testing.T) {
	a := &fakeAuction{receipt: auction.Receipt{
		CaptainID:   "100",
		CaptainName: "Pickles",
		Amount:      50,
		NextMin:     55,
		NextMax:     150,
		ThreadID:    "thread-1",
	}}
	s := &fakeSurface{}
	newHandlers(a, s).Handle(command("bid", false, intOpt("amount", 50)))

	if len(a.bids) != 1 || a.bids[0] != 50 {
		t.Fatalf("bids = %v, want [50]", a.bids)
	}
	if got := s.lastReply(t); got != "Bid of **50** placed." {
		t.Errorf("reply = %q", got)
	}
	if len(s.sent) != 1 || !strings.HasPrefix(s.sent[0], "thread-1: ## New highest bid!") || !strings.Contains(s.sent[0], "<@100>") {
		t.Errorf("announcements = %v", s.sent)
	}
}

func TestHandleBid_Rejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "team full", err: auction.ErrTeamFull, want: "Your team is already full (4 players)."},
		{name: "below minimum", err: auction.ErrBelowMinimum, want: "The minimum bid is **10**."},
		{name: "above maximum", err: auction.ErrAboveMaximum, want: "Bids are hard-capped at **1000**."},
		{name: "balance", err: auction.ErrInsufficientBalance, want: "Not enough balance. You have **40** left."},
		{name: "increment", err: auction.ErrBelowIncrement, want: "Valid bids are **65** - **160**."},
		{name: "not captain", err: auction.ErrNotCaptain, want: "Only captains can bid on players."},
		{name: "internal", err: errors.New("boom"), want: "Something went wrong. Check the logs."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAuction{bidErr: tt.err, balance: 40, state: auction.State{HighestBid: 60, HighestBidderID: "200"}}
			s := &fakeSurface{}
			newHandlers(a, s).Handle(command("bid", false, intOpt("amount", 61)))

			if got := s.lastReply(t); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			if len(s.sent) != 0 {
				t.Errorf("rejected bid was announced: %v", s.sent)
			}
		})
	}
}

func TestHandleBalanceAndTeam(t *testing.T) {
	a := &fakeAuction{balance: 320}
	s := &fakeSurface{}
	h := newHandlers(a, s)

	h.Handle(command("balance", false))
	if got := s.lastReply(t); got != "Your current balance is **320**." {
		t.Errorf("balance reply = %q", got)
	}

	h.Handle(command("current-team", false))
	if got := s.lastReply(t); got != "There is currently no auction running." {
		t.Errorf("team reply without auction = %q", got)
	}

	a.team = &roster.Captain{TeamName: "Waffles", Balance: 420, TeamValue: 80,
		TeamMembers: []roster.PlayerLot{{ID: 5005, Name: "Syrup", Tier: 1, Cost: 80}}}
	h.Handle(command("current-team", false))
	if got := s.lastReply(t); !strings.Contains(got, "Tier 1: **Syrup** for 80") {
		t.Errorf("team reply = %q", got)
	}
}

func TestHandleCheck(t *testing.T) {
	tests := []struct {
		name string
		res  auction.CheckResult
		err  error
		want string
	}{
		{name: "captain", res: auction.CheckResult{ProfileID: 42, Name: "Pickles", Role: auction.RoleCaptain, TeamName: "Brine"}, want: "is the captain of **Brine**"},
		{name: "player", res: auction.CheckResult{ProfileID: 7, Name: "Syrup", Role: auction.RolePlayer, Tier: 2}, want: "is a tier 2 player"},
		{name: "unregistered", res: auction.CheckResult{ProfileID: 9, Name: "Nobody"}, want: "not registered"},
		{name: "not found", err: profile.ErrNotFound, want: "does not exist"},
		{name: "api down", err: errors.New("503"), want: "could not be reached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAuction{check: tt.res, checkErr: tt.err}
			s := &fakeSurface{}
			newHandlers(a, s).Handle(command("check", false, strOpt("user", "someone")))

			if s.deferred != 1 {
				t.Errorf("deferred = %d, want 1", s.deferred)
			}
			if got := s.lastReply(t); !strings.Contains(got, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestHelpMessage(t *testing.T) {
	got := helpMessage(testConfig)
	for _, want := range []string{"**10** and **1000**", "**5** to **100**", "**30** seconds", "at most **4** players", "starts with **500**"} {
		if !strings.Contains(got, want) {
			t.Errorf("help message missing %q", want)
		}
	}
}
