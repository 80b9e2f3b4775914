// Package filestore provides a store.Driver that keeps the paused auction,
// the latest results and the event log as files in one data directory.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

const (
	snapshotFile = "paused.json"
	resultsFile  = "results.json"
	eventsFile   = "events.jsonl"
)

func init() {
	store.Register("file", openFile)
}

// openFile is the store.Driver for the "file" backend.
func openFile(_ context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	dir := filepath.Clean(cfg.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	events, err := NewEventStore(filepath.Join(dir, eventsFile), clk)
	if err != nil {
		return nil, err
	}

	return &store.Repositories{
		Snapshots: NewSnapshotStore(filepath.Join(dir, snapshotFile)),
		Results:   NewResultsStore(filepath.Join(dir, resultsFile)),
		Events:    events,
		Closer:    store.CloserFunc(func() error { return nil }),
		Ping: func(context.Context) error {
			_, err := os.Stat(dir)
			return err
		},
	}, nil
}

// writeJSON replaces path atomically with the indented JSON encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readJSON decodes path into v. A missing file yields store.ErrNotFound.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
