// SPDX-License-Identifier: MIT

package tasks

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestCreateAndFind(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(Params{Alpha: 0.5, Seeds: []string{"TP53", "BRCA1"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, SubmittedState, created.State)

	found, err := s.Find(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, SubmittedState, found.State)
	assert.Equal(t, 0.5, found.Params.Alpha)
	assert.Equal(t, []string{"TP53", "BRCA1"}, found.Params.Seeds)

	_, err = s.Find("no-such-task")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveStates(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)

	require.NoError(t, s.Move(task, ProcessingState, nil))
	assert.Equal(t, ProcessingState, task.State)

	found, err := s.Find(task.ID)
	require.NoError(t, err)
	assert.Equal(t, ProcessingState, found.State)

	// same-state move is a no-op
	require.NoError(t, s.Move(task, ProcessingState, nil))

	require.NoError(t, s.Move(task, DoneState, nil))
	found, err = s.Find(task.ID)
	require.NoError(t, err)
	assert.Equal(t, DoneState, found.State)
	assert.Empty(t, found.Params.Error)
}

func TestMoveFoldsErrorIntoDone(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)
	require.NoError(t, s.Move(task, ProcessingState, nil))

	require.NoError(t, s.Move(task, ProcessingState, errors.New("no seeds found in network")))

	found, err := s.Find(task.ID)
	require.NoError(t, err)
	assert.Equal(t, DoneState, found.State)
	assert.Equal(t, "no seeds found in network", found.Params.Error)
}

func TestResultRoundTrip(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)

	_, ok, err := s.Result(task)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveResult(task, map[string]float64{"A": 1.0, "B": 0.25}))

	raw, ok, err := s.Result(task)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"B":0.25`)
}

func TestSaveAndOpenNetwork(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)

	require.NoError(t, s.SaveNetwork(task, strings.NewReader("A\tB\t1.0\n")))

	rc, err := s.OpenNetwork(task)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "A\tB\t1.0\n", string(buf[:n]))
}

func TestNextSubmittedSkipsAndReapsProblems(t *testing.T) {
	s := newTestStore(t)

	good, err := s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)

	// corrupt a second task so it cannot be loaded
	bad, err := s.Create(Params{Alpha: 0.3, Seeds: []string{"B"}, RemoteIP: "10.0.0.8"})
	require.NoError(t, err)
	badDir := s.Dir(bad)
	require.NoError(t, os.WriteFile(filepath.Join(badDir, TaskFile), []byte("{not json"), 0o640))

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		next, err := s.NextSubmitted()
		require.NoError(t, err)
		if next == nil {
			break
		}
		seen[next.ID] = true
		require.NoError(t, s.Move(next, ProcessingState, nil))
	}
	assert.True(t, seen[good.ID])
	assert.False(t, seen[bad.ID])

	assert.Equal(t, 1, s.ReapProblems())
	_, err = os.Stat(badDir)
	assert.True(t, os.IsNotExist(err))

	// the reaped task lands in done with an error, still addressable
	reaped, err := s.Find(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, DoneState, reaped.State)
	assert.Equal(t, "Unknown error with task", reaped.Params.Error)

	// reaping twice is harmless
	assert.Equal(t, 0, s.ReapProblems())
}

func TestQueueDepth(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 0, s.QueueDepth())

	t1, err := s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)
	_, err = s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.8"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.QueueDepth())

	require.NoError(t, s.Move(t1, ProcessingState, nil))
	assert.Equal(t, 1, s.QueueDepth())
}

func TestIndexHint(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	defer idx.Close() //nolint:errcheck

	s, err := NewStore(t.TempDir(), idx)
	require.NoError(t, err)

	task, err := s.Create(Params{Alpha: 0.2, Seeds: []string{"A"}, RemoteIP: "10.0.0.7"})
	require.NoError(t, err)

	state, ok, err := idx.State(task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SubmittedState, state)

	require.NoError(t, s.Move(task, DoneState, nil))
	state, _, err = idx.State(task.ID)
	require.NoError(t, err)
	assert.Equal(t, DoneState, state)

	// a stale index entry must not hide a task
	require.NoError(t, idx.SetState(task.ID, SubmittedState))
	found, err := s.Find(task.ID)
	require.NoError(t, err)
	assert.Equal(t, DoneState, found.State)
}

func TestIPDir(t *testing.T) {
	assert.Equal(t, "10.0.0.7", ipDir("10.0.0.7"))
	assert.Equal(t, "unknown", ipDir("  "))
	assert.Equal(t, "__1", ipDir("::1"))
}
