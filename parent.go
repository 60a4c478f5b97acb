package testhost

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultParentPollInterval is how often the parent process is probed.
const DefaultParentPollInterval = time.Second

// ParentWatcher calls a callback once the watched parent process exits.
type ParentWatcher struct {
	pid      int
	interval time.Duration
	logger   log.Logger
	alive    func(pid int) bool
	onExit   func()

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewParentWatcher creates a watcher of pid that calls onExit when it is gone.
func NewParentWatcher(pid int, interval time.Duration, logger log.Logger, onExit func()) *ParentWatcher {
	return &ParentWatcher{
		pid:      pid,
		interval: interval,
		logger:   logger,
		alive:    processAlive,
		onExit:   onExit,
		done:     make(chan struct{}),
	}
}

// Start begins watching. A parent that cannot be found is logged and not
// watched.
func (w *ParentWatcher) Start(ctx context.Context) error {
	if w.onExit == nil {
		return errors.New("exit callback is required")
	}
	if !w.alive(w.pid) {
		w.logger.Info("Failed to register for parent process exit, parent process was not found", "pid", w.pid)
		return nil
	}

	w.done = make(chan struct{})
	w.running.Store(true)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if w.alive(w.pid) {
					continue
				}
				w.logger.Info("Parent process has exited, stopping", "pid", w.pid)
				w.running.Store(false)
				w.onExit()
				return

			case <-w.done:
				return

			case <-ctx.Done():
				w.running.Store(false)
				return
			}
		}
	}()
	return nil
}

// Stop stops watching. It does not call the exit callback.
func (w *ParentWatcher) Stop() error {
	if !w.running.Swap(false) {
		return nil
	}
	close(w.done)
	return nil
}

// Stopped returns true if the watcher is not watching.
func (w *ParentWatcher) Stopped() bool {
	return !w.running.Load()
}

// WaitForShutdown blocks until the watching goroutine has terminated.
func (w *ParentWatcher) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("Timed out waiting for parent watcher to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
