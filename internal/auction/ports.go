package auction

import (
	"context"
	"time"
)

// MessageRef addresses a posted chat message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// ButtonChoice is the answer to a confirmation prompt.
type ButtonChoice string

const (
	ChoiceConfirm ButtonChoice = "confirm"
	ChoiceCancel  ButtonChoice = "cancel"
	ChoiceTimeout ButtonChoice = "timeout"
)

// ChatSurface is the chat transport the auction is announced on.
type ChatSurface interface {
	SendMessage(ctx context.Context, channelID, content string) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, content string) error
	CreateThread(ctx context.Context, channelID, title string) (threadID string, err error)
	LockThread(ctx context.Context, threadID string, locked bool) error
	ArchiveThread(ctx context.Context, threadID string, archived bool) error
	DeleteThread(ctx context.Context, threadID string) error
	// CollectButtonResponse waits for userID to press a button on prompt.
	CollectButtonResponse(ctx context.Context, prompt MessageRef, userID string, timeout time.Duration) (ButtonChoice, error)
}

// ProfileLookup resolves player profiles on the external game service.
type ProfileLookup interface {
	ResolveDisplayName(ctx context.Context, profileID int64) (string, error)
	ResolveID(ctx context.Context, displayName string) (int64, error)
}

// ReportGenerator writes a natural-language summary of a finished run.
type ReportGenerator interface {
	Summarize(ctx context.Context, results Results) (string, error)
}

// SnapshotStore holds at most one paused run.
type SnapshotStore interface {
	Exists(ctx context.Context) (bool, error)
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	Delete(ctx context.Context) error
}

// ResultsExporter publishes the results of a completed run.
type ResultsExporter interface {
	Write(ctx context.Context, r *Results) error
}
