package event

import "context"

// Store persists and retrieves the audit log of auction runs.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error
	// Load returns all events of one run, ordered by version.
	Load(ctx context.Context, runID string) ([]Event, error)
	// LoadByType returns events of every run filtered by type.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}
