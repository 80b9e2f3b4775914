package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
)

// Button custom ids used by confirmation prompts.
const (
	confirmButtonID = "auction:confirm"
	cancelButtonID  = "auction:cancel"
)

// threadArchiveMinutes is the auto-archive window of lot threads.
const threadArchiveMinutes = 60

// session is the subset of *discordgo.Session the bot uses.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ThreadStart(channelID, name string, typ discordgo.ChannelType, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildThreadsActive(guildID string, options ...discordgo.RequestOption) (*discordgo.ThreadsList, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponse(interaction *discordgo.Interaction, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// waiter is a pending confirmation prompt.
type waiter struct {
	userID string
	choice chan auction.ButtonChoice
}

// Surface implements auction.ChatSurface on a Discord session, plus the
// interaction helpers the slash commands need.
type Surface struct {
	s      session
	logger *slog.Logger

	mu      sync.Mutex
	waiters map[string]*waiter // by prompt message id
}

// NewSurface returns a Surface sending through s.
func NewSurface(s session, logger *slog.Logger) *Surface {
	return &Surface{s: s, logger: logger, waiters: make(map[string]*waiter)}
}

func (sf *Surface) SendMessage(ctx context.Context, channelID, content string) (auction.MessageRef, error) {
	msg, err := sf.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return auction.MessageRef{}, fmt.Errorf("sending message to %s: %w", channelID, err)
	}
	return auction.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (sf *Surface) EditMessage(ctx context.Context, ref auction.MessageRef, content string) error {
	if _, err := sf.s.ChannelMessageEdit(ref.ChannelID, ref.MessageID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("editing message %s: %w", ref.MessageID, err)
	}
	return nil
}

func (sf *Surface) CreateThread(ctx context.Context, channelID, title string) (string, error) {
	ch, err := sf.s.ThreadStart(channelID, title, discordgo.ChannelTypeGuildPublicThread, threadArchiveMinutes, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating thread %q: %w", title, err)
	}
	return ch.ID, nil
}

func (sf *Surface) LockThread(ctx context.Context, threadID string, locked bool) error {
	if _, err := sf.s.ChannelEdit(threadID, &discordgo.ChannelEdit{Locked: &locked}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("locking thread %s: %w", threadID, err)
	}
	return nil
}

func (sf *Surface) ArchiveThread(ctx context.Context, threadID string, archived bool) error {
	if _, err := sf.s.ChannelEdit(threadID, &discordgo.ChannelEdit{Archived: &archived}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("archiving thread %s: %w", threadID, err)
	}
	return nil
}

func (sf *Surface) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := sf.s.ChannelDelete(threadID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("deleting thread %s: %w", threadID, err)
	}
	return nil
}

// CollectButtonResponse waits for userID to press a button on prompt. It
// returns ChoiceTimeout when nobody answers within timeout.
func (sf *Surface) CollectButtonResponse(ctx context.Context, prompt auction.MessageRef, userID string, timeout time.Duration) (auction.ButtonChoice, error) {
	w := &waiter{userID: userID, choice: make(chan auction.ButtonChoice, 1)}

	sf.mu.Lock()
	sf.waiters[prompt.MessageID] = w
	sf.mu.Unlock()
	defer func() {
		sf.mu.Lock()
		delete(sf.waiters, prompt.MessageID)
		sf.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c := <-w.choice:
		return c, nil
	case <-timer.C:
		return auction.ChoiceTimeout, nil
	case <-ctx.Done():
		return auction.ChoiceTimeout, ctx.Err()
	}
}

// InteractionCreate routes button presses to pending prompts. Other
// interaction types are ignored.
func (sf *Surface) InteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || i.Message == nil {
		return
	}
	sf.handleComponent(i.Interaction)
}

func (sf *Surface) handleComponent(i *discordgo.Interaction) {
	var choice auction.ButtonChoice
	switch i.MessageComponentData().CustomID {
	case confirmButtonID:
		choice = auction.ChoiceConfirm
	case cancelButtonID:
		choice = auction.ChoiceCancel
	default:
		return
	}

	sf.mu.Lock()
	w, ok := sf.waiters[i.Message.ID]
	sf.mu.Unlock()

	switch {
	case !ok:
		sf.ephemeral(i, "This prompt has expired.")
	case w.userID != userID(i):
		sf.ephemeral(i, "This prompt is not for you.")
	default:
		select {
		case w.choice <- choice:
		default:
		}
		err := sf.s.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
		if err != nil {
			sf.logger.Warn("failed to acknowledge button", slog.Any("error", err))
		}
	}
}

// Respond answers an interaction with a plain message.
func (sf *Surface) Respond(ctx context.Context, i *discordgo.Interaction, content string, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return sf.s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}

// Defer acknowledges an interaction whose answer follows via EditResponse.
func (sf *Surface) Defer(ctx context.Context, i *discordgo.Interaction, ephemeral bool) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return sf.s.InteractionRespond(i, resp, discordgo.WithContext(ctx))
}

// EditResponse replaces the content of an interaction's response and drops
// its buttons.
func (sf *Surface) EditResponse(ctx context.Context, i *discordgo.Interaction, content string) error {
	components := []discordgo.MessageComponent{}
	_, err := sf.s.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return err
}

// Confirm answers an interaction with a confirm/cancel prompt and waits for
// the invoking user to press a button.
func (sf *Surface) Confirm(ctx context.Context, i *discordgo.Interaction, question string, timeout time.Duration) (auction.ButtonChoice, error) {
	err := sf.s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: question,
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Confirm", Style: discordgo.SuccessButton, CustomID: confirmButtonID},
					discordgo.Button{Label: "Cancel", Style: discordgo.DangerButton, CustomID: cancelButtonID},
				}},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("sending confirmation prompt: %w", err)
	}

	msg, err := sf.s.InteractionResponse(i, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching confirmation prompt: %w", err)
	}
	return sf.CollectButtonResponse(ctx, auction.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, userID(i), timeout)
}

// Threads returns the ids of the guild's active threads in channelID whose
// names start with prefix.
func (sf *Surface) Threads(ctx context.Context, guildID, channelID, prefix string) ([]string, error) {
	list, err := sf.s.GuildThreadsActive(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing active threads: %w", err)
	}
	if list == nil {
		return nil, errors.New("listing active threads: empty response")
	}
	var ids []string
	for _, th := range list.Threads {
		if th.ParentID == channelID && strings.HasPrefix(th.Name, prefix) {
			ids = append(ids, th.ID)
		}
	}
	return ids, nil
}

func (sf *Surface) ephemeral(i *discordgo.Interaction, content string) {
	if err := sf.Respond(context.Background(), i, content, true); err != nil {
		sf.logger.Warn("failed to respond to interaction", slog.Any("error", err))
	}
}

// userID returns the invoking user of a guild or DM interaction.
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
