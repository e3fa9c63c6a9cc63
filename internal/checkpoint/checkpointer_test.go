package checkpoint

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omaremad10/nivuus-agent/internal/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal", "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testState(turns int) *State {
	h := memory.NewHistory("sys")
	for range turns - 1 {
		h.Append(memory.UserTurn("hi"))
	}
	m := memory.New(10)
	m.SetFact("os", "Linux")
	m.Record("Command", "uname -a", memory.StatusSuccess, "")
	return &State{History: h.Turns(), Memory: m.Snapshot()}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := openTestStore(t)

	cp, err := s.Create("run-1", TriggerTurn, testState(3))
	require.NoError(t, err)
	assert.Equal(t, 3, cp.TurnCount)
	assert.Equal(t, 1, cp.ActionCount)

	got, err := s.Get(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, TriggerTurn, got.Trigger)
	require.NotNil(t, got.State)
	assert.Len(t, got.State.History, 3)
	assert.Equal(t, "Linux", got.State.Memory.SystemInfo["os"])
	assert.Equal(t, "uname -a", got.State.Memory.ActionLog[0].Target)
}

func TestStore_Find(t *testing.T) {
	s := openTestStore(t)
	cp, err := s.Create("run", TriggerQuit, testState(1))
	require.NoError(t, err)

	got, err := s.Find(cp.ID.String()[:13])
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)

	_, err = s.Find("ffffffff")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListNewestFirstAndLatest(t *testing.T) {
	s := openTestStore(t)

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	var last *Checkpoint
	for range 3 {
		last, err = s.Create("run", TriggerTurn, testState(1))
		require.NoError(t, err)
	}

	list, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, last.ID, list[0].ID)
	assert.Nil(t, list[0].State)

	latest, err = s.Latest()
	require.NoError(t, err)
	assert.Equal(t, last.ID, latest.ID)
}

func TestJournal_RecordPrunes(t *testing.T) {
	s := openTestStore(t)
	j := NewJournal(s, "run", 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var ids []string
	for range 4 {
		cp, err := j.Record(TriggerTurn, testState(2))
		require.NoError(t, err)
		ids = append(ids, cp.ID.String())
	}

	status, err := j.GetStartupStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, status.Count)
	assert.Equal(t, ids[3], status.Latest.ID.String())

	list, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[1].ID.String())
}

func TestCheckpoint_Summary(t *testing.T) {
	s := openTestStore(t)
	cp, err := s.Create("run", TriggerSignal, testState(1))
	require.NoError(t, err)

	sum := cp.Summary()
	assert.Contains(t, sum, cp.ID.String()[:8])
	assert.Contains(t, sum, "signal")
	assert.Contains(t, sum, "1 turn, 1 action")
}
