// Package persist owns the durable documents: the conversation history
// and the agent memory. It loads them at startup, flushes them after
// every turn, and guarantees a single final flush on every exit path.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/omaremad10/nivuus-agent/internal/checkpoint"
	"github.com/omaremad10/nivuus-agent/internal/memory"
)

// Journal receives a snapshot on every flush. *checkpoint.Journal
// satisfies it.
type Journal interface {
	Record(trigger checkpoint.Trigger, state *checkpoint.State) (*checkpoint.Checkpoint, error)
}

// Manager loads and flushes the durable documents.
type Manager struct {
	historyPath string
	memoryPath  string
	journal     Journal
	logger      *slog.Logger
	now         func() time.Time

	flushMu sync.Mutex
	history *memory.History
	mem     *memory.Memory

	shutdown     atomic.Bool
	shutdownDone chan struct{}
}

// New creates a manager for the two document paths. journal may be nil.
func New(historyPath, memoryPath string, journal Journal, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		historyPath: historyPath,
		memoryPath:  memoryPath,
		journal:     journal,
		logger:      logger.With("component", "persist"),
		now:         time.Now,

		shutdownDone: make(chan struct{}),
	}
}

// Load reads both documents and binds the result to the manager for
// later flushes. Missing documents start empty. Unparsable documents
// are moved aside and start empty. The history is normalized: an
// unfinished tool batch is dropped and the system turn is set to
// systemPrompt. The action log is trimmed to capacity.
func (m *Manager) Load(systemPrompt string, capacity int) (*memory.History, *memory.Memory, error) {
	history, err := m.loadHistory(systemPrompt)
	if err != nil {
		return nil, nil, err
	}
	mem, err := m.loadMemory(capacity)
	if err != nil {
		return nil, nil, err
	}
	m.Bind(history, mem)
	return history, mem, nil
}

func (m *Manager) loadHistory(systemPrompt string) (*memory.History, error) {
	var turns []memory.Turn
	found, err := m.readDocument(m.historyPath, &turns)
	if err != nil {
		return nil, err
	}
	if !found || len(turns) == 0 {
		return memory.NewHistory(systemPrompt), nil
	}

	history := memory.RestoreHistory(turns)
	if n := history.DropIncompleteToolBatch(); n > 0 {
		m.logger.Warn("dropped unfinished tool-call batch from history", "turns", n)
	}
	if history.EnsureSystem(systemPrompt) {
		m.logger.Info("system prompt updated in history")
	}
	m.logger.Info("history loaded", "path", m.historyPath, "turns", history.Len())
	return history, nil
}

func (m *Manager) loadMemory(capacity int) (*memory.Memory, error) {
	var doc memory.Document
	found, err := m.readDocument(m.memoryPath, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return memory.New(capacity), nil
	}
	if n := len(doc.ActionLog) - capacity; n > 0 {
		m.logger.Info("action log trimmed to capacity", "dropped", n, "capacity", capacity)
	}
	mem := memory.FromDocument(doc, capacity)
	m.logger.Info("memory loaded", "path", m.memoryPath, "facts", len(doc.SystemInfo), "actions", mem.ActionCount())
	return mem, nil
}

// readDocument decodes path into v. It reports found=false for a
// missing file and for a corrupt one, which is moved aside first.
func (m *Manager) readDocument(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		aside := m.quarantine(path)
		m.logger.Warn("unparsable document replaced with default",
			"path", path,
			"moved_to", aside,
			"error", err,
		)
		return false, nil
	}
	return true, nil
}

// quarantine renames path to <path>.corrupt-<timestamp> and returns the
// new name, or "" if the rename failed.
func (m *Manager) quarantine(path string) string {
	aside := fmt.Sprintf("%s.corrupt-%s", path, m.now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(path, aside); err != nil {
		m.logger.Error("failed to move corrupt document aside", "path", path, "error", err)
		return ""
	}
	return aside
}

// Bind sets the live state that Flush writes.
func (m *Manager) Bind(history *memory.History, mem *memory.Memory) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	m.history = history
	m.mem = mem
}

// Flush writes both documents atomically from snapshots of the bound
// state and records a checkpoint when a journal is configured. Flushes
// are serialized.
func (m *Manager) Flush(reason checkpoint.Trigger) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	if m.history == nil || m.mem == nil {
		return errors.New("persist: nothing bound to flush")
	}
	state := &checkpoint.State{
		History: m.history.Turns(),
		Memory:  m.mem.Snapshot(),
	}

	var errs []error
	if err := m.write(state); err != nil {
		errs = append(errs, err)
	}
	if m.journal != nil {
		if _, err := m.journal.Record(reason, state); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Error("flush failed", "reason", reason, "error", err)
	} else {
		m.logger.Debug("flushed", "reason", reason, "turns", len(state.History), "actions", len(state.Memory.ActionLog))
	}
	return err
}

// WriteState writes state to the documents without touching the bound
// live state. It is used to restore a checkpoint.
func (m *Manager) WriteState(state *checkpoint.State) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	return m.write(state)
}

func (m *Manager) write(state *checkpoint.State) error {
	if err := writeJSON(m.historyPath, state.History); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := writeJSON(m.memoryPath, state.Memory); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return atomicwriter.WriteFile(path, append(data, '\n'), 0o600)
}

// Shutdown performs the final flush once. Later callers, including
// concurrent ones, wait until that flush has finished. Errors are
// logged, never returned.
func (m *Manager) Shutdown(reason checkpoint.Trigger) {
	if !m.shutdown.CompareAndSwap(false, true) {
		m.logger.Debug("shutdown already in progress", "reason", reason)
		<-m.shutdownDone
		return
	}
	defer close(m.shutdownDone)
	m.logger.Info("shutting down", "reason", reason)
	if err := m.Flush(reason); err != nil {
		return
	}
	m.logger.Info("final save completed", "reason", reason)
}

// Closed reports whether Shutdown has been called.
func (m *Manager) Closed() bool {
	return m.shutdown.Load()
}

// Reset moves both documents aside so the next run starts fresh, and
// returns the new names of the documents that existed.
func (m *Manager) Reset() ([]string, error) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	stamp := m.now().UTC().Format("20060102T150405Z")
	var moved []string
	for _, path := range []string{m.historyPath, m.memoryPath} {
		aside := fmt.Sprintf("%s.reset-%s", path, stamp)
		err := os.Rename(path, aside)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return moved, fmt.Errorf("move %s aside: %w", path, err)
		}
		moved = append(moved, aside)
	}
	return moved, nil
}
