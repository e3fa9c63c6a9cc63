package checkpoint

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no checkpoint matches an ID or prefix.
var ErrNotFound = errors.New("checkpoint not found")

// ErrAmbiguous is returned when an ID prefix matches several checkpoints.
var ErrAmbiguous = errors.New("checkpoint id prefix is ambiguous")

// Store handles checkpoint persistence.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the agent is single-threaded apart from the signal path.
	db.SetMaxOpenConns(1)

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore creates a checkpoint store using the given database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			trigger TEXT NOT NULL,
			state_gz BLOB NOT NULL,
			byte_size INTEGER NOT NULL,
			turn_count INTEGER NOT NULL,
			action_count INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_run
			ON checkpoints(run_id);
	`)
	return err
}

// Create saves a new checkpoint and returns it with ID populated.
// IDs are UUIDv7, so ordering by ID is ordering by creation.
func (s *Store) Create(runID string, trigger Trigger, state *State) (*Checkpoint, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(stateJSON); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}

	compressed := buf.Bytes()
	cp := &Checkpoint{
		ID:          id,
		RunID:       runID,
		CreatedAt:   s.now().UTC(),
		Trigger:     trigger,
		State:       state,
		ByteSize:    int64(len(compressed)),
		TurnCount:   len(state.History),
		ActionCount: len(state.Memory.ActionLog),
	}

	_, err = s.db.Exec(`
		INSERT INTO checkpoints (id, run_id, created_at, trigger, state_gz, byte_size, turn_count, action_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), runID, cp.CreatedAt.Format(time.RFC3339Nano), string(trigger), compressed, cp.ByteSize, cp.TurnCount, cp.ActionCount)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	return cp, nil
}

const fullColumns = `id, run_id, created_at, trigger, state_gz, byte_size, turn_count, action_count`
const metaColumns = `id, run_id, created_at, trigger, byte_size, turn_count, action_count`

// Get retrieves a checkpoint by ID, including full state.
func (s *Store) Get(id uuid.UUID) (*Checkpoint, error) {
	row := s.db.QueryRow(`SELECT `+fullColumns+` FROM checkpoints WHERE id = ?`, id.String())
	cp, err := scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cp, err
}

// Find retrieves a checkpoint by full ID or unique ID prefix.
func (s *Store) Find(prefix string) (*Checkpoint, error) {
	if id, err := uuid.Parse(prefix); err == nil {
		return s.Get(id)
	}

	rows, err := s.db.Query(`SELECT id FROM checkpoints WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return s.Get(uuid.MustParse(ids[0]))
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}

// List returns checkpoints newest first, without state.
func (s *Store) List(limit int) ([]*Checkpoint, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+metaColumns+` FROM checkpoints ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		cp, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// Latest returns the most recent checkpoint, or nil if none exist.
func (s *Store) Latest() (*Checkpoint, error) {
	row := s.db.QueryRow(`SELECT ` + fullColumns + ` FROM checkpoints ORDER BY id DESC LIMIT 1`)
	cp, err := scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

// Prune deletes all but the newest keep checkpoints and returns how
// many were removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	result, err := s.db.Exec(`
		DELETE FROM checkpoints
		WHERE id NOT IN (
			SELECT id FROM checkpoints ORDER BY id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return int(deleted), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFull(row scanner) (*Checkpoint, error) {
	var cp Checkpoint
	var idStr, createdStr, triggerStr string
	var stateGz []byte

	err := row.Scan(&idStr, &cp.RunID, &createdStr, &triggerStr, &stateGz, &cp.ByteSize, &cp.TurnCount, &cp.ActionCount)
	if err != nil {
		return nil, err
	}
	fillMeta(&cp, idStr, createdStr, triggerStr)

	gr, err := gzip.NewReader(bytes.NewReader(stateGz))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	stateJSON, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}

	return &cp, nil
}

func scanMeta(row scanner) (*Checkpoint, error) {
	var cp Checkpoint
	var idStr, createdStr, triggerStr string

	err := row.Scan(&idStr, &cp.RunID, &createdStr, &triggerStr, &cp.ByteSize, &cp.TurnCount, &cp.ActionCount)
	if err != nil {
		return nil, err
	}
	fillMeta(&cp, idStr, createdStr, triggerStr)
	return &cp, nil
}

func fillMeta(cp *Checkpoint, idStr, createdStr, triggerStr string) {
	cp.ID, _ = uuid.Parse(idStr)
	cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	cp.Trigger = Trigger(triggerStr)
}
