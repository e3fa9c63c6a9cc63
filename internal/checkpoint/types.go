// Package checkpoint keeps a journal of agent state snapshots in SQLite
// so a damaged or unwanted conversation can be rolled back.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// Trigger describes what caused a checkpoint to be created. It is the
// reason passed to the persistence flush.
type Trigger string

const (
	TriggerTurn     Trigger = "turn"     // End of a loop iteration
	TriggerQuit     Trigger = "quit"     // Operator quit
	TriggerFatal    Trigger = "fatal"    // Unrecoverable error
	TriggerSignal   Trigger = "signal"   // SIGINT or SIGTERM
	TriggerPanic    Trigger = "panic"    // Recovered panic in main
	TriggerRestore  Trigger = "restore"  // Taken before a restore
	TriggerShutdown Trigger = "shutdown" // Any other termination
)

// Checkpoint represents a point-in-time snapshot of agent state.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Trigger   Trigger   `json:"trigger"`

	// Captured state; nil when listed without state.
	State *State `json:"state,omitempty"`

	// Metadata
	ByteSize    int64 `json:"byte_size"`    // Compressed size
	TurnCount   int   `json:"turn_count"`   // History turns captured
	ActionCount int   `json:"action_count"` // Action-log entries captured
}

// State holds the restorable data: the two durable documents.
type State struct {
	History []memory.Turn   `json:"history"`
	Memory  memory.Document `json:"memory"`
}

// Summary returns a one-line human-readable summary of the checkpoint.
func (c *Checkpoint) Summary() string {
	return fmt.Sprintf("%s | %s | %-8s | %s, %s",
		c.ID.String()[:8],
		c.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		c.Trigger,
		formatCount(c.TurnCount, "turn"),
		formatCount(c.ActionCount, "action"),
	)
}

func formatCount(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
