// SPDX-License-Identifier: MIT

// Package runner drains the submitted task queue. Each pass claims the
// oldest task, resolves its network, runs the diffusion and files the
// result or the failure back into the task tree.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/netboost/netboost/internal/diffusion"
	"github.com/netboost/netboost/internal/log"
	"github.com/netboost/netboost/internal/metrics"
	"github.com/netboost/netboost/internal/tasks"
)

// reapEvery is how many idle passes go by between problem-list sweeps.
const reapEvery = 3

// BigGIMSource resolves a BigGIM column to SIF rows.
type BigGIMSource interface {
	ColumnSIF(ctx context.Context, column string) ([]byte, error)
}

// NDExSource resolves an NDEx network UUID to SIF rows.
type NDExSource interface {
	NetworkSIF(ctx context.Context, uuid string) ([]byte, error)
}

// Runner polls the task store and processes submitted tasks one at a
// time.
type Runner struct {
	store    *tasks.Store
	biggim   BigGIMSource
	ndex     NDExSource
	interval time.Duration

	mu       sync.Mutex
	lastPoll time.Time
}

// New builds a runner. interval is the sleep between empty polls.
func New(store *tasks.Store, biggim BigGIMSource, ndex NDExSource, interval time.Duration) *Runner {
	return &Runner{
		store:    store,
		biggim:   biggim,
		ndex:     ndex,
		interval: interval,
	}
}

// LastPoll reports when the previous poll pass finished, for readiness
// probes.
func (r *Runner) LastPoll() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPoll
}

// Run polls until the context is cancelled. A filesystem watch on the
// submitted tree shortcuts the sleep when a new task arrives; after
// every reapEvery idle passes the unloadable task directories are swept
// away.
func (r *Runner) Run(ctx context.Context) error {
	logger := log.WithComponent("runner")

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("filesystem watch unavailable, polling only")
	} else {
		defer watcher.Close() //nolint:errcheck
		if err := watcher.Add(filepath.Join(r.store.Root(), tasks.SubmittedState)); err != nil {
			logger.Warn().Err(err).Msg("cannot watch submitted tree, polling only")
		} else {
			events = make(chan fsnotify.Event, 1)
			go forwardEvents(ctx, watcher, events)
		}
	}

	logger.Info().Dur("interval", r.interval).Msg("runner started")

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	idle := 0
	for {
		processed := r.Poll(ctx)
		metrics.SetQueueDepth(r.store.QueueDepth())

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if processed > 0 {
			idle = 0
			continue
		}
		idle++
		if idle%reapEvery == 0 {
			if n := r.store.ReapProblems(); n > 0 {
				logger.Info().Int("count", n).Msg("reaped unloadable task directories")
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-events:
		case <-timer.C:
		}
	}
}

// forwardEvents collapses the watcher stream into wake-up signals and
// drops watcher errors after logging them.
func forwardEvents(ctx context.Context, watcher *fsnotify.Watcher, out chan<- fsnotify.Event) {
	logger := log.WithComponent("runner")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			select {
			case out <- ev:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("filesystem watch error")
		}
	}
}

// Poll processes submitted tasks until the queue is empty or the context
// is cancelled, returning how many tasks it handled.
func (r *Runner) Poll(ctx context.Context) int {
	processed := 0
	for ctx.Err() == nil {
		task, err := r.store.NextSubmitted()
		if err != nil {
			logger := log.WithComponent("runner")
			logger.Error().Err(err).Msg("queue scan failed")
			break
		}
		if task == nil {
			break
		}
		r.process(ctx, task)
		processed++
	}
	r.mu.Lock()
	r.lastPoll = time.Now()
	r.mu.Unlock()
	return processed
}

// process runs one task to completion. A panic in the pipeline fails the
// task instead of the runner.
func (r *Runner) process(ctx context.Context, task *tasks.Task) {
	ctx = log.ContextWithTaskID(ctx, task.ID)
	logger := log.WithComponentFromContext(ctx, "runner")
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic_value", rec).Str("id", task.ID).Msg("panic while processing task")
			metrics.RecordTaskFailed("panic")
			_ = r.store.Move(task, tasks.DoneState, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if err := r.store.Move(task, tasks.ProcessingState, nil); err != nil {
		logger.Error().Err(err).Str("id", task.ID).Msg("cannot claim task")
		metrics.RecordTaskFailed("store")
		return
	}

	logger.Info().
		Str("event", "runner.task_started").
		Str("id", task.ID).
		Str("source", task.Params.Source()).
		Msg("processing task")

	reason, err := r.execute(ctx, task)
	if err != nil {
		logger.Warn().Err(err).Str("id", task.ID).Str("reason", reason).Msg("task failed")
		metrics.RecordTaskFailed(reason)
		if mvErr := r.store.Move(task, tasks.DoneState, err); mvErr != nil {
			logger.Error().Err(mvErr).Str("id", task.ID).Msg("cannot record task failure")
		}
		return
	}

	if err := r.store.Move(task, tasks.DoneState, nil); err != nil {
		logger.Error().Err(err).Str("id", task.ID).Msg("cannot finish task")
		metrics.RecordTaskFailed("store")
		return
	}
	metrics.RecordTaskCompleted(time.Since(start))
	logger.Info().
		Str("event", "runner.task_done").
		Str("id", task.ID).
		Dur("duration", time.Since(start)).
		Msg("task finished")
}

// execute performs the diffusion pipeline and reports a failure reason
// label alongside the error.
func (r *Runner) execute(ctx context.Context, task *tasks.Task) (string, error) {
	if err := r.resolveNetwork(ctx, task); err != nil {
		return "network", err
	}

	rc, err := r.store.OpenNetwork(task)
	if err != nil {
		return "network", err
	}
	defer rc.Close() //nolint:errcheck

	network, err := diffusion.ParseSIF(rc)
	if err != nil {
		return "network", err
	}

	result, err := diffusion.Run(network, task.Params.Seeds, task.Params.Alpha)
	if err != nil {
		return "seeds", err
	}
	metrics.RecordDiffusionIterations(result.Iterations)

	if err := r.store.SaveResult(task, result.Scores); err != nil {
		return "store", err
	}
	return "", nil
}

// resolveNetwork makes sure network.sif exists in the task directory,
// fetching it from BigGIM or NDEx when the task was submitted without an
// upload.
func (r *Runner) resolveNetwork(ctx context.Context, task *tasks.Task) error {
	rc, err := r.store.OpenNetwork(task)
	if err == nil {
		return rc.Close()
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var sif []byte
	switch {
	case task.Params.Column != "":
		if r.biggim == nil {
			return fmt.Errorf("biggim source not configured")
		}
		sif, err = r.biggim.ColumnSIF(ctx, task.Params.Column)
	case task.Params.NDExID != "":
		if r.ndex == nil {
			return fmt.Errorf("ndex source not configured")
		}
		sif, err = r.ndex.NetworkSIF(ctx, task.Params.NDExID)
	default:
		return fmt.Errorf("task has no network source")
	}
	if err != nil {
		return err
	}
	return r.store.SaveNetwork(task, bytes.NewReader(sif))
}
