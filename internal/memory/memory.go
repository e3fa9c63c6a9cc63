// Package memory holds the agent's in-process state: the conversation
// history and the agent memory document (system facts, a bounded action
// log, freeform notes and any keys the model creates). Both are owned by
// the turn loop and shared by pointer with the dispatcher and tools.
package memory

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Document keys with fixed meaning.
const (
	KeySystemInfo = "system_info"
	KeyActionLog  = "action_log"
	KeyNotes      = "notes"
)

// Document is the persisted shape of agent memory. Extra holds
// model-created top-level keys, which serialize inline beside the fixed
// keys.
type Document struct {
	SystemInfo map[string]string
	ActionLog  []ActionLogEntry
	Notes      string
	Extra      map[string]any
}

// MarshalJSON writes the fixed keys and the extras as one object.
func (d Document) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(d.Extra)+3)
	for k, v := range d.Extra {
		obj[k] = v
	}
	sys := d.SystemInfo
	if sys == nil {
		sys = map[string]string{}
	}
	log := d.ActionLog
	if log == nil {
		log = []ActionLogEntry{}
	}
	obj[KeySystemInfo] = sys
	obj[KeyActionLog] = log
	obj[KeyNotes] = d.Notes
	return json.Marshal(obj)
}

// UnmarshalJSON accepts the persisted object. Non-string system_info
// values from hand-edited files are stringified rather than rejected.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Document{SystemInfo: map[string]string{}}
	if v, ok := raw[KeySystemInfo]; ok {
		var info map[string]any
		if err := json.Unmarshal(v, &info); err != nil {
			return fmt.Errorf("system_info: %w", err)
		}
		for k, val := range info {
			d.SystemInfo[k] = stringify(val)
		}
	}
	if v, ok := raw[KeyActionLog]; ok {
		if err := json.Unmarshal(v, &d.ActionLog); err != nil {
			return fmt.Errorf("action_log: %w", err)
		}
	}
	if v, ok := raw[KeyNotes]; ok {
		var notes any
		if err := json.Unmarshal(v, &notes); err != nil {
			return fmt.Errorf("notes: %w", err)
		}
		if notes != nil {
			d.Notes = stringify(notes)
		}
	}
	for k, v := range raw {
		if k == KeySystemInfo || k == KeyActionLog || k == KeyNotes {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		if d.Extra == nil {
			d.Extra = map[string]any{}
		}
		d.Extra[k] = val
	}
	return nil
}

// Memory is the live agent memory. All methods are safe for concurrent
// use so a termination path can snapshot it while the loop runs.
type Memory struct {
	mu         sync.RWMutex
	systemInfo map[string]string
	log        *actionLog
	notes      string
	extra      map[string]any
	now        func() time.Time
}

// New returns empty memory whose action log holds at most capacity
// entries.
func New(capacity int) *Memory {
	return FromDocument(Document{}, capacity)
}

// FromDocument rebuilds memory from a persisted document. An action log
// longer than capacity keeps only its newest entries.
func FromDocument(doc Document, capacity int) *Memory {
	m := &Memory{
		systemInfo: make(map[string]string, len(doc.SystemInfo)),
		log:        newActionLog(capacity, doc.ActionLog),
		notes:      doc.Notes,
		extra:      map[string]any{},
		now:        time.Now,
	}
	maps.Copy(m.systemInfo, doc.SystemInfo)
	for k, v := range doc.Extra {
		m.extra[k] = deepCopy(v)
	}
	return m
}

// SetClock overrides the timestamp source for action-log entries.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Capacity returns the action log bound.
func (m *Memory) Capacity() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.log.capacity
}

// Record appends an action-log entry, evicting the oldest when full.
func (m *Memory) Record(actionType, target string, status Status, errMsg string) ActionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := ActionLogEntry{
		Timestamp:  m.now().UTC(),
		ActionType: actionType,
		Target:     target,
		Status:     status,
		ErrorMsg:   errMsg,
	}
	m.log.append(e)
	return e
}

// Actions returns the full action log, oldest first.
func (m *Memory) Actions() []ActionLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.log.all()
}

// RecentActions returns at most n of the newest entries, oldest first.
func (m *Memory) RecentActions(n int) []ActionLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.log.recent(n)
}

// ActionCount returns the number of logged actions.
func (m *Memory) ActionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.log.entries)
}

// SystemInfo returns a copy of the system facts.
func (m *Memory) SystemInfo() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.systemInfo)
}

// SetFact sets system_info[key] = value. Reports whether the stored
// value changed.
func (m *Memory) SetFact(key, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.systemInfo[key]; ok && cur == value {
		return false
	}
	m.systemInfo[key] = value
	return true
}

// Notes returns the freeform notes.
func (m *Memory) Notes() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notes
}

// HasContent reports whether there is anything worth summarizing to
// the model: facts, actions or notes.
func (m *Memory) HasContent() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.systemInfo) > 0 || len(m.log.entries) > 0 || m.notes != ""
}

// Snapshot returns a deep copy in persisted form.
func (m *Memory) Snapshot() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc := Document{
		SystemInfo: maps.Clone(m.systemInfo),
		ActionLog:  m.log.all(),
		Notes:      m.notes,
	}
	if doc.SystemInfo == nil {
		doc.SystemInfo = map[string]string{}
	}
	if len(m.extra) > 0 {
		doc.Extra = make(map[string]any, len(m.extra))
		for k, v := range m.extra {
			doc.Extra[k] = deepCopy(v)
		}
	}
	return doc
}

// stringify renders a JSON value as the string stored in system_info
// and notes.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
