package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/metrics"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// RunReport is the outcome of a run.
type RunReport struct {
	RunID    string
	Parallel bool
	// Assemblies holds one report per assembly that was started, in request order.
	Assemblies []*AssemblyReport
	// Summary is nil when no assembly recorded a summary.
	Summary *types.RunSummary
	Elapsed time.Duration
}

// Config holds configuration for creating a new runner
type Config struct {
	Engine engine.Engine
	Log    log.Logger
	// Reporter receives lifecycle messages; defaults to NopReporter.
	Reporter Reporter
	// DiscoverySink receives listed tests; defaults to discarding them.
	DiscoverySink DiscoverySink
	// ExecutionSink receives test events; defaults to discarding them.
	ExecutionSink ExecutionSink
	// RunID identifies the run in logs and reports; generated when empty.
	RunID string
}

// Runner fans the assemblies of a request out to the assembly executor and
// consolidates their summaries.
type Runner struct {
	engine    engine.Engine
	log       log.Logger
	reporter  Reporter
	discovery DiscoverySink
	execution ExecutionSink
	runID     string
}

// New creates a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	if cfg.DiscoverySink == nil {
		cfg.DiscoverySink = nopSink{}
	}
	if cfg.ExecutionSink == nil {
		cfg.ExecutionSink = nopSink{}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	return &Runner{
		engine:    cfg.Engine,
		log:       cfg.Log.New("run_id", cfg.RunID),
		reporter:  cfg.Reporter,
		discovery: cfg.DiscoverySink,
		execution: cfg.ExecutionSink,
		runID:     cfg.RunID,
	}, nil
}

// RunID returns the identifier of the runner's run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes req. Cancelling ctx stops assemblies that have not started yet;
// started assemblies run to completion. The returned failure count is 1 when
// any assembly faulted, else the number of failed tests. An error is only
// returned when the request cannot be run at all.
func (r *Runner) Run(ctx context.Context, req *RunRequest) (int, *RunReport, error) {
	if err := req.Validate(); err != nil {
		return 0, nil, err
	}

	ctx, span := otel.Tracer("op-testhost").Start(ctx, "run")
	defer span.End()

	wd, err := os.Getwd()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	defer func() {
		if err := os.Chdir(wd); err != nil {
			r.log.Error("Failed to restore working directory", "dir", wd, "err", err)
		}
	}()

	collector := NewResultCollector(r.runID)
	executor := &AssemblyExecutor{
		engine:    r.engine,
		log:       r.log,
		reporter:  r.reporter,
		discovery: r.discovery,
		execution: r.execution,
		collector: collector,
		tracer:    otel.Tracer("op-testhost"),
	}

	parallel := req.parallelizeAssemblies()
	span.SetAttributes(
		attribute.String("run.id", r.runID),
		attribute.Bool("run.parallel", parallel),
		attribute.Int("run.assemblies", len(req.Assemblies)))
	r.log.Info("Starting run",
		"assemblies", len(req.Assemblies),
		"parallel", parallel,
		"designTime", req.DesignTime,
		"list", req.List)

	start := time.Now()
	reports := make([]*AssemblyReport, len(req.Assemblies))
	if parallel {
		p := pool.New()
		for i, asm := range req.Assemblies {
			p.Go(func() {
				reports[i] = executor.Run(ctx, req, asm)
			})
		}
		p.Wait()
	} else {
		for i, asm := range req.Assemblies {
			reports[i] = executor.Run(ctx, req, asm)
		}
	}
	elapsed := time.Since(start)

	report := &RunReport{
		RunID:    r.runID,
		Parallel: parallel,
		Elapsed:  elapsed,
	}
	for _, ar := range reports {
		if ar != nil {
			report.Assemblies = append(report.Assemblies, ar)
		}
	}
	if collector.Len() > 0 {
		report.Summary = collector.Finalize(elapsed)
		r.reporter.RunFinished(report.Summary)
	}

	failures := collector.FailureCount()
	metrics.RecordRun(r.runID, failures, elapsed)
	r.log.Info("Run finished",
		"failures", failures,
		"started", len(report.Assemblies),
		"skipped", len(req.Assemblies)-len(report.Assemblies),
		"duration", elapsed)
	return failures, report, nil
}
