package checkpoint

import (
	"fmt"
	"log/slog"
)

// Journal records snapshots for one agent run and keeps the store
// pruned to a fixed number of entries.
type Journal struct {
	store *Store
	runID string
	keep  int
	log   *slog.Logger
}

// NewJournal creates a journal writing to store. keep is how many
// checkpoints survive each prune.
func NewJournal(store *Store, runID string, keep int, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{
		store: store,
		runID: runID,
		keep:  keep,
		log:   log.With("component", "checkpoint"),
	}
}

// Record stores state and prunes older checkpoints.
func (j *Journal) Record(trigger Trigger, state *State) (*Checkpoint, error) {
	cp, err := j.store.Create(j.runID, trigger, state)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	j.log.Debug("checkpoint created",
		"id", cp.ID.String()[:8],
		"trigger", trigger,
		"turns", cp.TurnCount,
		"actions", cp.ActionCount,
		"bytes", cp.ByteSize,
	)

	if pruned, err := j.store.Prune(j.keep); err != nil {
		j.log.Warn("checkpoint prune failed", "error", err)
	} else if pruned > 0 {
		j.log.Debug("checkpoints pruned", "count", pruned)
	}
	return cp, nil
}

// Store returns the underlying store.
func (j *Journal) Store() *Store {
	return j.store
}

// StartupStatus describes the journal at startup.
type StartupStatus struct {
	Count  int
	Latest *Checkpoint
}

// GetStartupStatus reports how many checkpoints exist and the latest.
func (j *Journal) GetStartupStatus() (*StartupStatus, error) {
	status := &StartupStatus{}
	if err := j.store.db.QueryRow(`SELECT COUNT(*) FROM checkpoints`).Scan(&status.Count); err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	list, err := j.store.List(1)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		status.Latest = list[0]
	}
	return status, nil
}
