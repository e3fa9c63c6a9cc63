package memory

import "time"

// Status is the outcome recorded for an action.
type Status string

// Action statuses.
const (
	StatusAttempted       Status = "Attempted"
	StatusSuccess         Status = "Success"
	StatusFailure         Status = "Failure"
	StatusCancelled       Status = "Cancelled"
	StatusSuccessNoResult Status = "Success (No Results)"
)

// ActionLogEntry is one audit record. Entries are never modified once
// appended.
type ActionLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	ActionType string    `json:"actionType"`
	Target     string    `json:"target"`
	Status     Status    `json:"status"`
	ErrorMsg   string    `json:"errorMsg,omitempty"`
}

// actionLog is a FIFO ring bounded at capacity. It is not safe for
// concurrent use; Memory serializes access.
type actionLog struct {
	capacity int
	entries  []ActionLogEntry
}

func newActionLog(capacity int, entries []ActionLogEntry) *actionLog {
	if capacity < 1 {
		capacity = 1
	}
	l := &actionLog{capacity: capacity, entries: make([]ActionLogEntry, 0, capacity)}
	for _, e := range entries {
		l.append(e)
	}
	return l
}

func (l *actionLog) append(e ActionLogEntry) {
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

func (l *actionLog) recent(n int) []ActionLogEntry {
	if n > len(l.entries) {
		n = len(l.entries)
	}
	if n <= 0 {
		return nil
	}
	out := make([]ActionLogEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

func (l *actionLog) all() []ActionLogEntry {
	return l.recent(len(l.entries))
}
