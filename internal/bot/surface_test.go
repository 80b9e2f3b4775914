package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
)

// fakeSession records calls instead of talking to Discord.
type fakeSession struct {
	mu        sync.Mutex
	sent      []string
	edits     []*discordgo.ChannelEdit
	deleted   []string
	responses []*discordgo.InteractionResponse
	threads   []*discordgo.Channel
	sendErr   error
	nextID    int
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, channelID+": "+content)
	return &discordgo.Message{ID: "msg-" + string(rune('0'+f.nextID)), ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ThreadStart(channelID, name string, typ discordgo.ChannelType, _ int, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "thread-" + name, ParentID: channelID, Name: name, Type: typ}, nil
}

func (f *fakeSession) ChannelEdit(_ string, data *discordgo.ChannelEdit, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, data)
	return &discordgo.Channel{}, nil
}

func (f *fakeSession) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeSession) GuildThreadsActive(_ string, _ ...discordgo.RequestOption) (*discordgo.ThreadsList, error) {
	return &discordgo.ThreadsList{Threads: f.threads}, nil
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSession) InteractionResponse(i *discordgo.Interaction, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{ID: "prompt-" + i.ID, ChannelID: i.ChannelID}, nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, _ *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (f *fakeSession) responseTypes() []discordgo.InteractionResponseType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []discordgo.InteractionResponseType
	for _, r := range f.responses {
		out = append(out, r.Type)
	}
	return out
}

var testLogger = slog.New(slog.DiscardHandler)

func press(messageID, user, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		Message: &discordgo.Message{ID: messageID},
		Member:  &discordgo.Member{User: &discordgo.User{ID: user}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

// collect starts CollectButtonResponse in the background and waits until the
// prompt is registered.
func collect(t *testing.T, sf *Surface, messageID, user string, timeout time.Duration) <-chan auction.ButtonChoice {
	t.Helper()
	out := make(chan auction.ButtonChoice, 1)
	go func() {
		c, _ := sf.CollectButtonResponse(context.Background(), auction.MessageRef{MessageID: messageID}, user, timeout)
		out <- c
	}()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sf.mu.Lock()
		_, ok := sf.waiters[messageID]
		sf.mu.Unlock()
		if ok {
			return out
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("prompt was never registered")
	return nil
}

func TestCollectButtonResponse(t *testing.T) {
	tests := []struct {
		name     string
		customID string
		want     auction.ButtonChoice
	}{
		{name: "confirm", customID: confirmButtonID, want: auction.ChoiceConfirm},
		{name: "cancel", customID: cancelButtonID, want: auction.ChoiceCancel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSession{}
			sf := NewSurface(fs, testLogger)
			got := collect(t, sf, "prompt-1", "100", time.Minute)

			sf.InteractionCreate(nil, press("prompt-1", "100", tt.customID))

			select {
			case c := <-got:
				if c != tt.want {
					t.Errorf("choice = %q, want %q", c, tt.want)
				}
			case <-time.After(time.Second):
				t.Fatal("no choice delivered")
			}
			if types := fs.responseTypes(); len(types) != 1 || types[0] != discordgo.InteractionResponseDeferredMessageUpdate {
				t.Errorf("responses = %v, want one deferred update", types)
			}
		})
	}
}

func TestCollectButtonResponse_OtherUser(t *testing.T) {
	fs := &fakeSession{}
	sf := NewSurface(fs, testLogger)
	got := collect(t, sf, "prompt-1", "100", 50*time.Millisecond)

	sf.InteractionCreate(nil, press("prompt-1", "200", confirmButtonID))

	if c := <-got; c != auction.ChoiceTimeout {
		t.Errorf("choice = %q, want timeout", c)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.responses) != 1 || fs.responses[0].Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("other user should get one ephemeral response, got %+v", fs.responses)
	}
}

func TestCollectButtonResponse_Expired(t *testing.T) {
	fs := &fakeSession{}
	sf := NewSurface(fs, testLogger)

	sf.InteractionCreate(nil, press("gone", "100", confirmButtonID))

	if types := fs.responseTypes(); len(types) != 1 || types[0] != discordgo.InteractionResponseChannelMessageWithSource {
		t.Errorf("responses = %v, want one expiry notice", types)
	}
}

func TestCollectButtonResponse_ContextCancelled(t *testing.T) {
	sf := NewSurface(&fakeSession{}, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := sf.CollectButtonResponse(ctx, auction.MessageRef{MessageID: "p"}, "100", time.Minute)
	if !errors.Is(err, context.Canceled) || c != auction.ChoiceTimeout {
		t.Errorf("CollectButtonResponse = %q, %v; want timeout, context.Canceled", c, err)
	}
}

func TestSurface_ChatOperations(t *testing.T) {
	fs := &fakeSession{}
	sf := NewSurface(fs, testLogger)
	ctx := context.Background()

	ref, err := sf.SendMessage(ctx, "chan-1", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if ref.ChannelID != "chan-1" || ref.MessageID == "" {
		t.Errorf("ref = %+v", ref)
	}

	id, err := sf.CreateThread(ctx, "chan-1", "Auction T1")
	if err != nil || id != "thread-Auction T1" {
		t.Errorf("CreateThread = %q, %v", id, err)
	}

	if err := sf.LockThread(ctx, id, true); err != nil {
		t.Fatalf("LockThread: %v", err)
	}
	if err := sf.ArchiveThread(ctx, id, true); err != nil {
		t.Fatalf("ArchiveThread: %v", err)
	}
	if len(fs.edits) != 2 || fs.edits[0].Locked == nil || !*fs.edits[0].Locked || fs.edits[1].Archived == nil || !*fs.edits[1].Archived {
		t.Errorf("channel edits = %+v", fs.edits)
	}

	fs.sendErr = errors.New("missing access")
	if _, err := sf.SendMessage(ctx, "chan-1", "hello"); err == nil {
		t.Error("expected send error")
	}
}

func TestSurface_Threads(t *testing.T) {
	fs := &fakeSession{threads: []*discordgo.Channel{
		{ID: "1", ParentID: "chan-1", Name: "Auction T1 #1"},
		{ID: "2", ParentID: "chan-1", Name: "general chat"},
		{ID: "3", ParentID: "chan-2", Name: "Auction T1 #2"},
	}}
	sf := NewSurface(fs, testLogger)

	ids, err := sf.Threads(context.Background(), "guild", "chan-1", "Auction")
	if err != nil {
		t.Fatalf("Threads: %v", err)
	}
	if len(ids) != 1 || ids[0] != "1" {
		t.Errorf("Threads = %v, want [1]", ids)
	}
}

func TestSurface_Confirm(t *testing.T) {
	fs := &fakeSession{}
	sf := NewSurface(fs, testLogger)
	i := &discordgo.Interaction{
		ID:        "i1",
		ChannelID: "chan-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "100"}},
	}

	got := make(chan auction.ButtonChoice, 1)
	go func() {
		c, _ := sf.Confirm(context.Background(), i, "Sure?", time.Minute)
		got <- c
	}()

	// Press once the prompt is waiting.
	deadline := time.Now().Add(time.Second)
	for {
		sf.mu.Lock()
		_, ok := sf.waiters["prompt-i1"]
		sf.mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("prompt was never registered")
		}
		time.Sleep(time.Millisecond)
	}
	sf.InteractionCreate(nil, press("prompt-i1", "100", confirmButtonID))

	if c := <-got; c != auction.ChoiceConfirm {
		t.Errorf("Confirm = %q, want confirm", c)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	first := fs.responses[0]
	if first.Data == nil || len(first.Data.Components) != 1 {
		t.Errorf("prompt response = %+v, want one row of buttons", first)
	}
}
