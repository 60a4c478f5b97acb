// Package testhost is the op-testhost service: it resolves the command line
// into a run request and runs it either once in batch mode or on behalf of a
// design-time client connected over a socket.
package testhost

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/engine/gotest"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// TestHost implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &TestHost{}

// ErrParentExited stops the host once the watched parent process is gone.
var ErrParentExited = errors.New("parent process exited")

// TestHost runs one invocation of the host.
type TestHost struct {
	config   *Config
	version  string
	executor TestExecutor
	watcher  *ParentWatcher

	out io.Writer
	in  io.Reader

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelCauseFunc

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Options override the host's collaborators.
type Options struct {
	// Engine defaults to the Go test binary engine.
	Engine engine.Engine
	Out    io.Writer
	In     io.Reader
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts Options) (*TestHost, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Engine == nil {
		eng, err := gotest.New(config.Log, config.GoBinary)
		if err != nil {
			return nil, fmt.Errorf("failed to create engine: %w", err)
		}
		opts.Engine = eng
	}

	config.Log.Debug("Creating test host with config",
		"inputs", config.Inputs,
		"assemblies", len(config.Request.Assemblies),
		"designTime", config.Request.DesignTime,
		"list", config.Request.List,
		"reporter", config.Reporter,
		"port", config.Port)

	h := &TestHost{
		config:           config,
		version:          version,
		out:              opts.Out,
		in:               opts.In,
		shutdownCallback: shutdownCallback,
	}

	if config.Port != nil {
		executor, err := NewDesignTimeExecutor(opts.Engine, config, opts.Out)
		if err != nil {
			return nil, fmt.Errorf("failed to create design-time host: %w", err)
		}
		h.executor = executor
	} else {
		h.executor = NewBatchExecutor(opts.Engine, config, opts.Out)
	}

	if config.ParentProcessID != 0 {
		h.watcher = NewParentWatcher(config.ParentProcessID, DefaultParentPollInterval, config.Log, func() {
			h.stop(ErrParentExited)
		})
	}
	return h, nil
}

// Start performs the run. It returns once the run is over: with a
// FailureError when tests failed, else nil after requesting shutdown.
// Start implements the cliapp.Lifecycle interface.
func (h *TestHost) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	h.running.Store(true)
	defer h.running.Store(false)

	if h.watcher != nil {
		if err := h.watcher.Start(ctx); err != nil {
			return NewHostError(err)
		}
		defer h.watcher.Stop() //nolint:errcheck
	}

	if !h.config.NoLogo {
		fmt.Fprintln(h.out, Header())
	}

	failures, err := h.executor.Execute(ctx)
	if errors.Is(context.Cause(ctx), ErrParentExited) {
		return NewHostError(ErrParentExited)
	}
	if err != nil {
		h.config.Log.Error("Run failed", "error", err)
		return err
	}

	if h.config.Wait {
		h.waitForEnter()
	}

	if failures > 0 {
		h.config.Log.Warn("Run completed with failures", "failures", failures)
		return NewFailureError(failures)
	}

	go func() {
		h.shutdownCallback(nil)
	}()
	return nil
}

func (h *TestHost) waitForEnter() {
	fmt.Fprintln(h.out)
	fmt.Fprint(h.out, "Press ENTER to continue...")
	_, _ = bufio.NewReader(h.in).ReadString('\n')
	fmt.Fprintln(h.out)
}

func (h *TestHost) stop(cause error) {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel(cause)
	}
}

// Stop cancels a run in progress. Assemblies already started run to completion.
// Stop implements the cliapp.Lifecycle interface.
func (h *TestHost) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping op-testhost")
	h.stop(context.Canceled)
	if h.watcher != nil {
		return h.watcher.WaitForShutdown(ctx)
	}
	return nil
}

// Stopped returns true if no run is in progress.
// Stopped implements the cliapp.Lifecycle interface.
func (h *TestHost) Stopped() bool {
	return !h.running.Load()
}
