package testhost

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testhost/channel"
	"github.com/ethereum-optimism/infra/op-testhost/designtime"
	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/logging"
	"github.com/ethereum-optimism/infra/op-testhost/reporting"
	"github.com/ethereum-optimism/infra/op-testhost/runner"
)

// TestExecutor performs the work of one host invocation and returns the
// failure count of the run.
type TestExecutor interface {
	Execute(ctx context.Context) (int, error)
}

// BatchExecutor runs the request once and reports to the console and to
// result files.
type BatchExecutor struct {
	engine   engine.Engine
	config   *Config
	reporter reporting.Reporter
	logger   log.Logger
}

// NewBatchExecutor creates a new BatchExecutor.
func NewBatchExecutor(eng engine.Engine, config *Config, out io.Writer) *BatchExecutor {
	return &BatchExecutor{
		engine:   eng,
		config:   config,
		reporter: reporting.NewReporter(config.Reporter, reporting.Options{Out: out, NoColor: config.NoColor}),
		logger:   config.Log,
	}
}

func (e *BatchExecutor) Execute(ctx context.Context) (int, error) {
	sink := reporting.NewConsoleSink(e.reporter, e.config.Request.DesignTime)
	r, err := runner.New(runner.Config{
		Engine:        e.engine,
		Log:           e.logger,
		Reporter:      sink,
		DiscoverySink: sink,
		ExecutionSink: sink,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create runner: %w", err)
	}

	req := e.config.Request
	failures, report, err := r.Run(ctx, &req)
	if err != nil {
		return 0, NewUsageError(err)
	}
	if ctx.Err() != nil && len(report.Assemblies) < len(req.Assemblies) {
		e.logger.Warn("Run cancelled", "run_id", r.RunID(), "started", len(report.Assemblies))
	}

	if req.List {
		return failures, nil
	}
	if len(e.config.Transforms) > 0 {
		if err := reporting.WriteTransforms(sink.Report(r.RunID()), e.config.Transforms); err != nil {
			return failures, err
		}
	}
	if e.config.LogDir != "" {
		fileLogger, err := logging.NewFileLogger(e.config.LogDir, r.RunID())
		if err != nil {
			return failures, fmt.Errorf("failed to create file logger: %w", err)
		}
		if err := fileLogger.WriteReport(sink.Report(r.RunID())); err != nil {
			return failures, fmt.Errorf("failed to write test logs: %w", err)
		}
		e.logger.Info("Wrote test logs", "dir", fileLogger.Dir())
	}
	return failures, nil
}

// DesignTimeExecutor serves a single design-time client on a port.
type DesignTimeExecutor struct {
	host *designtime.Host
	port int
}

// NewDesignTimeExecutor creates a new DesignTimeExecutor.
func NewDesignTimeExecutor(eng engine.Engine, config *Config, out io.Writer) (*DesignTimeExecutor, error) {
	host, err := designtime.New(designtime.Config{
		Engine:   eng,
		Log:      config.Log,
		Reporter: reporting.NewReporter(config.Reporter, reporting.Options{Out: out, NoColor: config.NoColor}),
		Request:  config.Request,
		Out:      out,
	})
	if err != nil {
		return nil, err
	}
	return &DesignTimeExecutor{host: host, port: *config.Port}, nil
}

// Execute serves the client. A served client always yields a zero failure
// count; test failures were reported over the socket.
func (e *DesignTimeExecutor) Execute(ctx context.Context) (int, error) {
	if err := e.host.ListenAndServe(ctx, e.port); err != nil {
		if channel.IsBindError(err) {
			return 0, NewHostError(err)
		}
		return 0, err
	}
	return 0, nil
}
