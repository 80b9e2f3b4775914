package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/profile"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

// confirmTimeout bounds how long an admin has to answer a confirmation prompt.
const confirmTimeout = 15 * time.Second

// Auction is the auction manager as seen by the command surface.
type Auction interface {
	State() auction.State
	Start(ctx context.Context, channelID string) (auction.Mode, error)
	Pause(ctx context.Context) error
	Abort(ctx context.Context) error
	Skip(ctx context.Context) error
	AddEvent(ctx context.Context, text string) error
	PlaceBid(ctx context.Context, chatID string, amount int) (auction.Receipt, error)
	Balance(chatID string) (int, error)
	Team(chatID string) (*roster.Captain, error)
	Check(ctx context.Context, query string) (auction.CheckResult, error)
}

// Surface answers interactions and posts to channels.
type Surface interface {
	SendMessage(ctx context.Context, channelID, content string) (auction.MessageRef, error)
	DeleteThread(ctx context.Context, threadID string) error
	Respond(ctx context.Context, i *discordgo.Interaction, content string, ephemeral bool) error
	Defer(ctx context.Context, i *discordgo.Interaction, ephemeral bool) error
	EditResponse(ctx context.Context, i *discordgo.Interaction, content string) error
	Confirm(ctx context.Context, i *discordgo.Interaction, question string, timeout time.Duration) (auction.ButtonChoice, error)
	Threads(ctx context.Context, guildID, channelID, prefix string) ([]string, error)
}

// Handlers process Discord interactions.
type Handlers struct {
	// ctx outlives single interactions; auction runs are started on it.
	ctx     context.Context
	auction Auction
	surface Surface
	cfg     config.AuctionConfig
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewHandlers creates new command handlers. Auctions started through them
// run until ctx is cancelled.
func NewHandlers(ctx context.Context, a Auction, surface Surface, cfg config.AuctionConfig, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		ctx:     ctx,
		auction: a,
		surface: surface,
		cfg:     cfg,
		logger:  logger,
		tracer:  tp.Tracer("github.com/jensholdgaard/auction-house-bot/internal/bot/commands"),
	}
}

// adminCommands require the Manage Server permission.
var adminCommands = map[string]bool{
	"start-auction": true,
	"pause-auction": true,
	"abort-auction": true,
	"skip-player":   true,
	"add-event":     true,
	"clear-threads": true,
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	manageServer := int64(discordgo.PermissionManageServer)
	admin := func(c *discordgo.ApplicationCommand) *discordgo.ApplicationCommand {
		c.DefaultMemberPermissions = &manageServer
		return c
	}
	return []*discordgo.ApplicationCommand{
		admin(&discordgo.ApplicationCommand{
			Name:        "start-auction",
			Description: "Start the auction in this channel, or resume a paused one",
		}),
		admin(&discordgo.ApplicationCommand{
			Name:        "pause-auction",
			Description: "Pause the auction after the current player is sold",
		}),
		admin(&discordgo.ApplicationCommand{
			Name:        "abort-auction",
			Description: "Abort the auction without saving it",
		}),
		admin(&discordgo.ApplicationCommand{
			Name:        "skip-player",
			Description: "End bidding on the current player immediately",
		}),
		{
			Name:        "bid",
			Description: "Bid on the player currently being sold",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Bid amount",
					Required:    true,
				},
			},
		},
		{
			Name:        "balance",
			Description: "Check your remaining balance",
		},
		{
			Name:        "check",
			Description: "Check whether an osu! user is a captain or player",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "user",
					Description: "osu! id or username",
					Required:    true,
				},
			},
		},
		{
			Name:        "current-team",
			Description: "Show the players on your team",
		},
		admin(&discordgo.ApplicationCommand{
			Name:        "add-event",
			Description: "Add a note to the auction report",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "event",
					Description: "What happened",
					Required:    true,
				},
			},
		}),
		admin(&discordgo.ApplicationCommand{
			Name:        "clear-threads",
			Description: "Delete the auction threads in this channel",
		}),
		{
			Name:        "help",
			Description: "How the auction works",
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	h.Handle(i.Interaction)
}

// Handle dispatches one slash command interaction.
func (h *Handlers) Handle(i *discordgo.Interaction) {
	name := i.ApplicationCommandData().Name
	ctx, span := h.tracer.Start(h.ctx, "InteractionCreate",
		trace.WithAttributes(attribute.String("command", name)),
	)
	defer span.End()

	if adminCommands[name] && !isAdmin(i) {
		h.respond(ctx, i, "You need the **Manage Server** permission to use this command.", true)
		return
	}

	switch name {
	case "start-auction":
		h.handleStart(ctx, i)
	case "pause-auction":
		h.handlePause(ctx, i)
	case "abort-auction":
		h.handleAbort(ctx, i)
	case "skip-player":
		h.handleSkip(ctx, i)
	case "bid":
		h.handleBid(ctx, i)
	case "balance":
		h.handleBalance(ctx, i)
	case "check":
		h.handleCheck(ctx, i)
	case "current-team":
		h.handleCurrentTeam(ctx, i)
	case "add-event":
		h.handleAddEvent(ctx, i)
	case "clear-threads":
		h.handleClearThreads(ctx, i)
	case "help":
		h.respond(ctx, i, helpMessage(h.cfg), true)
	default:
		h.respond(ctx, i, "Unknown command", true)
	}
}

func (h *Handlers) handleStart(ctx context.Context, i *discordgo.Interaction) {
	// Resolving the roster can outlast the interaction deadline.
	if !h.deferResponse(ctx, i) {
		return
	}

	// The run outlives this interaction, so it is started on the handlers' context.
	mode, err := h.auction.Start(h.ctx, i.ChannelID)
	switch {
	case errors.Is(err, auction.ErrAuctionInProgress):
		h.edit(ctx, i, "An auction is already in progress.")
	case errors.Is(err, roster.ErrUnresolvedCaptain):
		h.edit(ctx, i, fmt.Sprintf("Could not start the auction: %s. Check the captain osu! ids in the config.", err))
	case errors.Is(err, auction.ErrMalformedSnapshot):
		h.edit(ctx, i, "The paused auction could not be loaded. Check the logs before starting again.")
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to start auction", slog.Any("error", err))
		h.edit(ctx, i, "Could not start the auction. Check the logs.")
	case mode == auction.ModeResume:
		h.edit(ctx, i, "Resuming the paused auction in this channel.")
	default:
		h.edit(ctx, i, "Starting the auction in this channel.")
	}
}

func (h *Handlers) handlePause(ctx context.Context, i *discordgo.Interaction) {
	st := h.auction.State()
	switch st.Status {
	case auction.StatusPausing:
		h.respond(ctx, i, "The auction is already queued to pause.", true)
		return
	case auction.StatusRunning:
	default:
		h.respond(ctx, i, "There is no ongoing auction to pause.", true)
		return
	}

	h.confirmed(ctx, i, "Are you sure you want to pause the auction?", func() string {
		if err := h.auction.Pause(ctx); err != nil {
			return rejectionText(err)
		}
		return "Queued the auction to pause after the current player."
	})
}

func (h *Handlers) handleAbort(ctx context.Context, i *discordgo.Interaction) {
	if st := h.auction.State(); !st.Status.Active() && st.Status != auction.StatusPaused {
		h.respond(ctx, i, "There is no ongoing auction to abort.", true)
		return
	}

	h.confirmed(ctx, i, "Are you sure you want to abort the auction? Nothing will be saved.", func() string {
		if err := h.auction.Abort(ctx); err != nil {
			return rejectionText(err)
		}
		return "Aborting the auction."
	})
}

func (h *Handlers) handleSkip(ctx context.Context, i *discordgo.Interaction) {
	if !h.auction.State().BiddingActive {
		h.respond(ctx, i, "Bidding is currently not active.", true)
		return
	}

	h.confirmed(ctx, i, "Are you sure you want to skip the current player?", func() string {
		if err := h.auction.Skip(ctx); err != nil {
			return rejectionText(err)
		}
		return "Skipped the timer for the current player."
	})
}

func (h *Handlers) handleAddEvent(ctx context.Context, i *discordgo.Interaction) {
	text := strings.TrimSpace(optionString(i, "event"))
	if text == "" {
		h.respond(ctx, i, "The event text is empty.", true)
		return
	}
	if st := h.auction.State(); !st.Status.Active() {
		h.respond(ctx, i, "There is no ongoing auction to add an event to.", true)
		return
	}

	h.confirmed(ctx, i, fmt.Sprintf("Add this event to the auction report?\n> %s", text), func() string {
		if err := h.auction.AddEvent(ctx, text); err != nil {
			return rejectionText(err)
		}
		return "Added the event to the event log."
	})
}

func (h *Handlers) handleClearThreads(ctx context.Context, i *discordgo.Interaction) {
	if h.auction.State().Status.Active() {
		h.respond(ctx, i, "Threads cannot be cleared while an auction is running.", true)
		return
	}

	h.confirmed(ctx, i, "Delete all auction threads in this channel?", func() string {
		ids, err := h.surface.Threads(ctx, i.GuildID, i.ChannelID, h.cfg.ThreadPrefix)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to list threads", slog.Any("error", err))
			return "Could not list the threads in this channel."
		}
		deleted := 0
		for _, id := range ids {
			if err := h.surface.DeleteThread(ctx, id); err != nil {
				h.logger.WarnContext(ctx, "failed to delete thread", slog.String("thread_id", id), slog.Any("error", err))
				continue
			}
			deleted++
		}
		return fmt.Sprintf("Deleted %d of %d auction threads in this channel.", deleted, len(ids))
	})
}

// confirmed asks the invoking admin to confirm and runs action on confirm.
// The prompt is replaced by action's result.
func (h *Handlers) confirmed(ctx context.Context, i *discordgo.Interaction, question string, action func() string) {
	choice, err := h.surface.Confirm(ctx, i, question, confirmTimeout)
	if err != nil {
		h.logger.ErrorContext(ctx, "confirmation failed", slog.Any("error", err))
		return
	}

	var result string
	switch choice {
	case auction.ChoiceConfirm:
		result = action()
	case auction.ChoiceCancel:
		result = "Cancelled."
	default:
		result = "No response within 15 seconds, cancelled."
	}
	h.edit(ctx, i, result)
}

func (h *Handlers) handleBid(ctx context.Context, i *discordgo.Interaction) {
	amount := int(optionInt(i, "amount"))
	user := userID(i)

	r, err := h.auction.PlaceBid(ctx, user, amount)
	if err != nil {
		h.respond(ctx, i, h.bidRejection(err, user), true)
		return
	}

	h.respond(ctx, i, fmt.Sprintf("Bid of **%d** placed.", r.Amount), true)
	if r.ThreadID == "" {
		return
	}
	if _, err := h.surface.SendMessage(ctx, r.ThreadID, auction.HighestBidMessage(r, "<@"+user+">")); err != nil {
		h.logger.WarnContext(ctx, "failed to announce bid", slog.Any("error", err))
	}
}

// bidRejection explains a rejected bid with the limits that applied.
func (h *Handlers) bidRejection(err error, chatID string) string {
	st := h.auction.State()
	switch {
	case errors.Is(err, auction.ErrTeamFull):
		return fmt.Sprintf("Your team is already full (%d players).", h.cfg.MaxTeamSize)
	case errors.Is(err, auction.ErrBelowMinimum):
		return fmt.Sprintf("The minimum bid is **%d**.", h.cfg.MinBid)
	case errors.Is(err, auction.ErrAboveMaximum):
		return fmt.Sprintf("Bids are hard-capped at **%d**.", h.cfg.MaxBid)
	case errors.Is(err, auction.ErrInsufficientBalance):
		if balance, berr := h.auction.Balance(chatID); berr == nil {
			return fmt.Sprintf("Not enough balance. You have **%d** left.", balance)
		}
		return "Not enough balance."
	case errors.Is(err, auction.ErrBelowIncrement), errors.Is(err, auction.ErrAboveIncrement):
		return fmt.Sprintf("Valid bids are **%d** - **%d**.",
			st.HighestBid+h.cfg.MinBidIncrement, st.HighestBid+h.cfg.MaxBidIncrement)
	default:
		return rejectionText(err)
	}
}

func (h *Handlers) handleBalance(ctx context.Context, i *discordgo.Interaction) {
	balance, err := h.auction.Balance(userID(i))
	if err != nil {
		h.respond(ctx, i, rejectionText(err), true)
		return
	}
	h.respond(ctx, i, fmt.Sprintf("Your current balance is **%d**.", balance), true)
}

func (h *Handlers) handleCurrentTeam(ctx context.Context, i *discordgo.Interaction) {
	c, err := h.auction.Team(userID(i))
	if err != nil {
		h.respond(ctx, i, rejectionText(err), true)
		return
	}
	h.respond(ctx, i, teamMessage(c), true)
}

func (h *Handlers) handleCheck(ctx context.Context, i *discordgo.Interaction) {
	if !h.deferResponse(ctx, i) {
		return
	}

	query := strings.TrimSpace(optionString(i, "user"))
	res, err := h.auction.Check(ctx, query)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		h.edit(ctx, i, fmt.Sprintf("An osu! account `%s` does not exist.", query))
	case err != nil:
		h.logger.WarnContext(ctx, "profile check failed", slog.String("query", query), slog.Any("error", err))
		h.edit(ctx, i, "The osu! API could not be reached. Try again later.")
	default:
		h.edit(ctx, i, checkMessage(res))
	}
}

// deferResponse acknowledges i with a private loading state.
func (h *Handlers) deferResponse(ctx context.Context, i *discordgo.Interaction) bool {
	if err := h.surface.Defer(ctx, i, true); err != nil {
		h.logger.WarnContext(ctx, "failed to defer interaction", slog.Any("error", err))
		return false
	}
	return true
}

func (h *Handlers) edit(ctx context.Context, i *discordgo.Interaction, content string) {
	if err := h.surface.EditResponse(ctx, i, content); err != nil {
		h.logger.WarnContext(ctx, "failed to edit interaction response", slog.Any("error", err))
	}
}

func (h *Handlers) respond(ctx context.Context, i *discordgo.Interaction, content string, ephemeral bool) {
	if err := h.surface.Respond(ctx, i, content, ephemeral); err != nil {
		h.logger.WarnContext(ctx, "failed to respond to interaction", slog.Any("error", err))
	}
}

// rejectionText returns the user-facing text of err.
func rejectionText(err error) string {
	if auction.IsRejection(err) {
		msg := strings.TrimPrefix(err.Error(), auction.ErrRejected.Error()+": ")
		return strings.ToUpper(msg[:1]) + msg[1:] + "."
	}
	return "Something went wrong. Check the logs."
}

func teamMessage(c *roster.Captain) string {
	if len(c.TeamMembers) == 0 {
		return fmt.Sprintf("**%s** has no players yet. Balance: **%d**.", c.TeamName, c.Balance)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (balance **%d**, value **%d**)\n", c.TeamName, c.Balance, c.TeamValue)
	for _, p := range c.TeamMembers {
		fmt.Fprintf(&b, "- Tier %d: **%s** for %d\n", p.Tier, p.Name, p.Cost)
	}
	return b.String()
}

func checkMessage(r auction.CheckResult) string {
	switch r.Role {
	case auction.RoleCaptain:
		return fmt.Sprintf("**%s** (`%d`) is the captain of **%s**.", r.Name, r.ProfileID, r.TeamName)
	case auction.RolePlayer:
		return fmt.Sprintf("**%s** (`%d`) is a tier %d player.", r.Name, r.ProfileID, r.Tier)
	default:
		return fmt.Sprintf("**%s** (`%d`) is not registered for this auction.", r.Name, r.ProfileID)
	}
}

func helpMessage(cfg config.AuctionConfig) string {
	return fmt.Sprintf(`# How the auction works
Players are sold one at a time, tier by tier. Captains bid with `+"`/bid`"+`; a proxy can bid for their captain.
- Bids are between **%d** and **%d**, and must raise the highest bid by **%d** to **%d**.
- Each lot runs for **%d** seconds. A bid placed with less than **%d** seconds left resets the timer to that.
- Teams hold at most **%d** players. Every captain starts with **%d**.
- Unsold players become free agents.
Use `+"`/balance`"+`, `+"`/current-team`"+` and `+"`/check`"+` any time.`,
		cfg.MinBid, cfg.MaxBid, cfg.MinBidIncrement, cfg.MaxBidIncrement,
		cfg.AuctionDuration, cfg.ResetDuration, cfg.MaxTeamSize, cfg.StartingBalance)
}

func isAdmin(i *discordgo.Interaction) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionManageServer != 0
}

func userID(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	default:
		return ""
	}
}

func option(i *discordgo.Interaction, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func optionString(i *discordgo.Interaction, name string) string {
	if o := option(i, name); o != nil {
		return o.StringValue()
	}
	return ""
}

func optionInt(i *discordgo.Interaction, name string) int64 {
	if o := option(i, name); o != nil {
		return o.IntValue()
	}
	return 0
}
