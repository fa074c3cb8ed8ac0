// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker is a long-running background subsystem, e.g. the embedded task
// runner.
type Worker interface {
	Run(ctx context.Context) error
}

// App owns the runtime lifecycle: background workers plus the server
// manager. Any worker or server failure tears the whole process down.
type App struct {
	logger  zerolog.Logger
	manager *Manager
	workers []Worker
}

// NewApp creates the orchestrator.
func NewApp(logger zerolog.Logger, manager *Manager, workers ...Worker) *App {
	return &App{
		logger:  logger,
		manager: manager,
		workers: workers,
	}
}

// Run starts everything and blocks until ctx is cancelled or a fatal
// error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, w := range a.workers {
		w := w
		g.Go(func() error {
			err := w.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Str("event", "worker.failed").Msg("background worker failed")
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return g.Wait()
}
