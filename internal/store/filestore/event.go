package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/event"
)

// ErrDuplicateEvent is returned when a run already has an event at a version.
var ErrDuplicateEvent = errors.New("duplicate event version")

type eventKey struct {
	aggregateID string
	version     int
}

// EventStore implements event.Store as an append-only JSON Lines file.
type EventStore struct {
	mu    sync.Mutex
	path  string
	clock clock.Clock
	seen  map[eventKey]struct{}
}

// NewEventStore opens the log at path, indexing the events already written.
func NewEventStore(path string, clk clock.Clock) (*EventStore, error) {
	s := &EventStore{path: path, clock: clk, seen: make(map[eventKey]struct{})}
	events, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		s.seen[eventKey{e.AggregateID, e.Version}] = struct{}{}
	}
	return s, nil
}

// Append writes all events or none. Events are stamped with an id and time.
func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[eventKey]struct{}, len(events))
	var buf []byte
	for _, e := range events {
		k := eventKey{e.AggregateID, e.Version}
		if _, dup := s.seen[k]; dup {
			return fmt.Errorf("%w (aggregate=%s, version=%d)", ErrDuplicateEvent, e.AggregateID, e.Version)
		}
		if _, dup := batch[k]; dup {
			return fmt.Errorf("%w (aggregate=%s, version=%d)", ErrDuplicateEvent, e.AggregateID, e.Version)
		}
		batch[k] = struct{}{}

		e.ID = uuid.NewString()
		e.CreatedAt = s.clock.Now().UTC()
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		buf = append(append(buf, line...), '\n')
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("appending events: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}

	for k := range batch {
		s.seen[k] = struct{}{}
	}
	return nil
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, e := range all {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b event.Event) int { return a.Version - b.Version })
	return out, nil
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, e := range all {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

// readAll returns every event in file order.
func (s *EventStore) readAll() ([]event.Event, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	var events []event.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decoding event log line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return events, nil
}
