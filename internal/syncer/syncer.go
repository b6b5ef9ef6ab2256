package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"scheduler/internal/models"
)

// Source lists the events to mirror. client.Client satisfies it.
type Source interface {
	List(ctx context.Context, date string) ([]models.Event, error)
}

// Target is a remote calendar events are pushed to.
type Target interface {
	Name() string
	// Put creates the event when remoteID is empty, otherwise overwrites the
	// remote copy. It returns the remote id to remember.
	Put(ctx context.Context, event models.Event, remoteID string) (string, error)
	Remove(ctx context.Context, remoteID string) error
}

// Entry records what was last pushed for one event.
type Entry struct {
	RemoteID    string `json:"remote_id"`
	Fingerprint string `json:"fingerprint"`
}

// SyncState keeps track of which events have been pushed.
// The key is the local event id.
type SyncState map[string]Entry

// StateFile is the default state file name for a target.
func StateFile(target string) string {
	return fmt.Sprintf("sync-state-%s.json", target)
}

// Syncer mirrors the events of a Source into a Target.
type Syncer struct {
	logger    *slog.Logger
	source    Source
	target    Target
	state     SyncState
	statePath string
	dryRun    bool
}

// NewSyncer creates a new Syncer, loading any state left by a previous run.
func NewSyncer(logger *slog.Logger, source Source, target Target, statePath string, dryRun bool) (*Syncer, error) {
	state, err := loadState(statePath)
	if err != nil {
		// If the file doesn't exist, we can start with an empty state.
		if os.IsNotExist(err) {
			logger.Info("No sync state file found, starting fresh.", "file", statePath)
			state = make(SyncState)
		} else {
			return nil, fmt.Errorf("failed to load sync state: %w", err)
		}
	}

	return &Syncer{
		logger:    logger,
		source:    source,
		target:    target,
		state:     state,
		statePath: statePath,
		dryRun:    dryRun,
	}, nil
}

// Sync performs a full synchronization cycle.
func (s *Syncer) Sync(ctx context.Context) error {
	s.logger.Info("Starting sync cycle.", "target", s.target.Name())

	events, err := s.source.List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	s.logger.Info("Fetched events.", "count", len(events))

	live := make(map[string]bool, len(events))
	for _, event := range events {
		key := strconv.FormatInt(event.ID, 10)
		live[key] = true
		if err := s.syncEvent(ctx, key, event); err != nil {
			s.logger.Error("Failed to sync event", "title", event.Title, "error", err)
			// Continue with the next event even if one fails.
		}
	}

	for key, entry := range s.state {
		if live[key] {
			continue
		}
		if err := s.removeEvent(ctx, key, entry); err != nil {
			s.logger.Error("Failed to remove event", "id", key, "error", err)
		}
	}

	if !s.dryRun {
		if err := s.saveState(); err != nil {
			s.logger.Error("Failed to save sync state", "error", err)
		}
	}

	s.logger.Info("Sync cycle finished.")
	return nil
}

// syncEvent pushes a single event if it is new or changed since the last push.
func (s *Syncer) syncEvent(ctx context.Context, key string, event models.Event) error {
	fp := fingerprint(event)
	entry, exists := s.state[key]
	if exists && entry.Fingerprint == fp {
		s.logger.Debug("Event unchanged, skipping.", "title", event.Title, "id", event.ID)
		return nil
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would push event", "title", event.Title, "update", exists)
		return nil
	}

	remoteID, err := s.target.Put(ctx, event, entry.RemoteID)
	if err != nil {
		return fmt.Errorf("failed to push event to %s: %w", s.target.Name(), err)
	}

	// If successful, update the state.
	s.state[key] = Entry{RemoteID: remoteID, Fingerprint: fp}
	return nil
}

// removeEvent deletes the remote copy of an event that no longer exists locally.
func (s *Syncer) removeEvent(ctx context.Context, key string, entry Entry) error {
	if s.dryRun {
		s.logger.Info("[DRY RUN] Would remove event", "id", key, "remoteID", entry.RemoteID)
		return nil
	}
	if err := s.target.Remove(ctx, entry.RemoteID); err != nil {
		return err
	}
	delete(s.state, key)
	return nil
}

func fingerprint(ev models.Event) string {
	b, _ := json.Marshal(ev)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// loadState loads the sync state from the JSON file.
func loadState(path string) (SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state == nil {
		state = make(SyncState)
	}
	return state, nil
}

// saveState saves the current sync state to the JSON file.
func (s *Syncer) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	return os.WriteFile(s.statePath, data, 0644)
}
