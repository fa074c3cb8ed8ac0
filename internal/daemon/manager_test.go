// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestNewManagerRequiresAPIHandler(t *testing.T) {
	_, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop()})
	require.Error(t, err)
}

func TestShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.NoError(t, err)

	err = m.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrManagerNotStarted)
}

func TestStartAndCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	m, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	err = m.Start(ctx)
	assert.Error(t, err)
	cancel()
	time.Sleep(50 * time.Millisecond)
}

func TestShutdownHooksRunLIFO(t *testing.T) {
	m, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.NoError(t, err)

	var order []string
	m.RegisterShutdownHook("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.RegisterShutdownHook("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestShutdownHookErrorsReported(t *testing.T) {
	m, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.NoError(t, err)

	m.RegisterShutdownHook("broken", func(ctx context.Context) error {
		return errors.New("close failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	err = <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

type fakeWorker struct {
	err     error
	started chan struct{}
}

func (w *fakeWorker) Run(ctx context.Context) error {
	close(w.started)
	if w.err != nil {
		return w.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestAppWorkerFailureStopsEverything(t *testing.T) {
	m, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.NoError(t, err)

	w := &fakeWorker{err: errors.New("worker exploded"), started: make(chan struct{})}
	app := NewApp(zerolog.Nop(), m, w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = app.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker exploded")
}

func TestAppCleanShutdown(t *testing.T) {
	m, err := NewManager(testConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.NoError(t, err)

	w := &fakeWorker{started: make(chan struct{})}
	app := NewApp(zerolog.Nop(), m, w)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	<-w.started
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestAppWithoutManager(t *testing.T) {
	app := NewApp(zerolog.Nop(), nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
