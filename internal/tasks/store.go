// SPDX-License-Identifier: MIT

package tasks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/netboost/netboost/internal/log"
)

// Store manages task directories under a single root. All mutating
// operations write through renameio so a crash never leaves a partially
// written task.json or result.json behind.
type Store struct {
	root  string
	index *Index

	mu       sync.Mutex
	problems map[string]struct{} // directories that failed to load
}

// NewStore opens (and creates if needed) a task tree rooted at root.
// idx may be nil; the store then falls back to scanning on every Find.
func NewStore(root string, idx *Index) (*Store, error) {
	for _, state := range []string{SubmittedState, ProcessingState, DoneState} {
		if err := os.MkdirAll(filepath.Join(root, state), 0o750); err != nil {
			return nil, fmt.Errorf("tasks: create state dir: %w", err)
		}
	}
	return &Store{
		root:     root,
		index:    idx,
		problems: make(map[string]struct{}),
	}, nil
}

// Root returns the task tree root.
func (s *Store) Root() string { return s.root }

// Dir returns the directory a task currently occupies.
func (s *Store) Dir(t *Task) string {
	return filepath.Join(s.root, t.State, ipDir(t.Params.RemoteIP), t.ID)
}

// Create stores a new task in the submitted state and returns it.
func (s *Store) Create(p Params) (*Task, error) {
	t := &Task{
		ID:     uuid.NewString(),
		State:  SubmittedState,
		Params: p,
	}
	dir := s.Dir(t)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("tasks: create task dir: %w", err)
	}
	if err := s.writeParams(dir, p); err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := s.index.SetState(t.ID, SubmittedState); err != nil {
			logger := log.WithComponent("tasks")
			logger.Warn().Err(err).Str("id", t.ID).Msg("index write failed")
		}
	}
	return t, nil
}

// SaveNetwork persists the resolved network into the task directory.
func (s *Store) SaveNetwork(t *Task, r io.Reader) error {
	pf, err := renameio.NewPendingFile(filepath.Join(s.Dir(t), NetworkFile), renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("tasks: stage network: %w", err)
	}
	defer pf.Cleanup() //nolint:errcheck
	if _, err := io.Copy(pf, r); err != nil {
		return fmt.Errorf("tasks: write network: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("tasks: commit network: %w", err)
	}
	return nil
}

// OpenNetwork opens the stored network file for reading.
func (s *Store) OpenNetwork(t *Task) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir(t), NetworkFile))
	if err != nil {
		return nil, fmt.Errorf("tasks: open network: %w", err)
	}
	return f, nil
}

// Find locates a task by id. The index, when present, is consulted for a
// state hint first, but the hit is always verified against the tree; on a
// stale hint or index miss every state directory is scanned.
func (s *Store) Find(id string) (*Task, error) {
	if s.index != nil {
		if state, ok, err := s.index.State(id); err == nil && ok {
			if t, err := s.findIn(state, id); err == nil {
				return t, nil
			}
		}
	}
	for _, state := range []string{DoneState, ProcessingState, SubmittedState} {
		if t, err := s.findIn(state, id); err == nil {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) findIn(state, id string) (*Task, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, state, "*", id))
	if err != nil || len(matches) == 0 {
		return nil, ErrNotFound
	}
	p, err := s.readParams(matches[0])
	if err != nil {
		return nil, err
	}
	return &Task{ID: id, State: state, Params: p}, nil
}

// Move transitions a task to another state. A Move to the same state is a
// no-op. When taskErr is non-nil the destination is forced to done and the
// error message is folded into the stored parameters, so a failed task is
// reported through the same status document as a finished one.
func (s *Store) Move(t *Task, newState string, taskErr error) error {
	if taskErr != nil {
		newState = DoneState
	}
	if newState == t.State && taskErr == nil {
		return nil
	}
	oldDir := s.Dir(t)
	t.State = newState
	newDir := s.Dir(t)
	if err := os.MkdirAll(filepath.Dir(newDir), 0o750); err != nil {
		return fmt.Errorf("tasks: prepare move: %w", err)
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return fmt.Errorf("tasks: move: %w", err)
	}
	if taskErr != nil {
		t.Params.Error = taskErr.Error()
		if err := s.writeParams(newDir, t.Params); err != nil {
			return err
		}
	}
	if s.index != nil {
		if err := s.index.SetState(t.ID, newState); err != nil {
			logger := log.WithComponent("tasks")
			logger.Warn().Err(err).Str("id", t.ID).Msg("index write failed")
		}
	}
	return nil
}

// SaveResult writes the diffusion output as result.json.
func (s *Store) SaveResult(t *Task, result any) error {
	buf, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("tasks: marshal result: %w", err)
	}
	path := filepath.Join(s.Dir(t), ResultFile)
	if err := renameio.WriteFile(path, buf, 0o640); err != nil {
		return fmt.Errorf("tasks: write result: %w", err)
	}
	return nil
}

// Result loads result.json for a task. The boolean reports whether a
// result file exists.
func (s *Store) Result(t *Task) (json.RawMessage, bool, error) {
	buf, err := os.ReadFile(filepath.Join(s.Dir(t), ResultFile))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tasks: read result: %w", err)
	}
	return json.RawMessage(buf), true, nil
}

// NextSubmitted returns the oldest loadable submitted task, or nil when the
// queue is empty. Directories whose task.json cannot be read are remembered
// on the problem list and skipped until ReapProblems removes them.
func (s *Store) NextSubmitted() (*Task, error) {
	dirs, err := s.submittedDirs()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		s.mu.Lock()
		_, bad := s.problems[dir]
		s.mu.Unlock()
		if bad {
			continue
		}
		p, err := s.readParams(dir)
		if err != nil {
			logger := log.WithComponent("tasks")
			logger.Warn().Err(err).Str("dir", dir).Msg("unreadable task, deferring to reap")
			s.mu.Lock()
			s.problems[dir] = struct{}{}
			s.mu.Unlock()
			continue
		}
		return &Task{ID: filepath.Base(dir), State: SubmittedState, Params: p}, nil
	}
	return nil, nil
}

// QueueDepth counts tasks waiting in the submitted state.
func (s *Store) QueueDepth() int {
	dirs, err := s.submittedDirs()
	if err != nil {
		return 0
	}
	return len(dirs)
}

// ReapProblems moves every directory on the problem list into the done
// state with an error recorded in task.json, then clears the list. The
// task stays addressable, so a client polling the id receives the error
// document instead of a gone response. Returns how many were moved.
func (s *Store) ReapProblems() int {
	s.mu.Lock()
	problems := make([]string, 0, len(s.problems))
	for dir := range s.problems {
		problems = append(problems, dir)
	}
	s.problems = make(map[string]struct{})
	s.mu.Unlock()

	logger := log.WithComponent("tasks")
	n := 0
	for _, dir := range problems {
		id := filepath.Base(dir)
		doneDir := filepath.Join(s.root, DoneState, filepath.Base(filepath.Dir(dir)), id)
		if err := os.MkdirAll(filepath.Dir(doneDir), 0o750); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("reap failed")
			continue
		}
		if err := os.Rename(dir, doneDir); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("reap failed")
			continue
		}
		// The params that landed the task here may be unreadable, so a
		// fresh document carries the error.
		p, err := s.readParams(doneDir)
		if err != nil {
			p = Params{}
		}
		if p.RemoteIP == "" {
			p.RemoteIP = filepath.Base(filepath.Dir(doneDir))
		}
		p.Error = "Unknown error with task"
		if err := s.writeParams(doneDir, p); err != nil {
			logger.Warn().Err(err).Str("dir", doneDir).Msg("reap: error write failed")
		}
		if s.index != nil {
			_ = s.index.SetState(id, DoneState)
		}
		n++
	}
	return n
}

// submittedDirs lists submitted task directories, oldest first.
func (s *Store) submittedDirs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, SubmittedState, "*", "*"))
	if err != nil {
		return nil, fmt.Errorf("tasks: scan submitted: %w", err)
	}
	type entry struct {
		dir string
		mod int64
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || !fi.IsDir() {
			continue
		}
		entries = append(entries, entry{dir: m, mod: fi.ModTime().UnixNano()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod < entries[j].mod })
	dirs := make([]string, len(entries))
	for i, e := range entries {
		dirs[i] = e.dir
	}
	return dirs, nil
}

func (s *Store) writeParams(dir string, p Params) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("tasks: marshal params: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, TaskFile), buf, 0o640); err != nil {
		return fmt.Errorf("tasks: write params: %w", err)
	}
	return nil
}

func (s *Store) readParams(dir string) (Params, error) {
	buf, err := os.ReadFile(filepath.Join(dir, TaskFile))
	if err != nil {
		return Params{}, fmt.Errorf("tasks: read params: %w", err)
	}
	var p Params
	if err := json.Unmarshal(buf, &p); err != nil {
		return Params{}, fmt.Errorf("tasks: decode params: %w", err)
	}
	return p, nil
}
