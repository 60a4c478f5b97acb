package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/metrics"
	"github.com/ethereum-optimism/infra/op-testhost/protocol"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

const eventBufferSize = 64

// AssemblyState is the position of an assembly in its pipeline.
type AssemblyState int

const (
	StateConfigured AssemblyState = iota
	StateDiscovering
	StateFiltering
	StateListing
	StateExecuting
	StateDone
	StateFaulted
)

func (s AssemblyState) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateDiscovering:
		return "discovering"
	case StateFiltering:
		return "filtering"
	case StateListing:
		return "listing"
	case StateExecuting:
		return "executing"
	case StateDone:
		return "done"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AssemblyReport is what one assembly's pipeline produced. A faulted assembly
// still yields a report.
type AssemblyReport struct {
	Assembly   types.Assembly
	State      AssemblyState
	Discovered int
	Tests      []*types.Test
	Results    []*types.TestResult
	// Summary is nil when the assembly was only listed or faulted before executing.
	Summary *types.ExecutionSummary
	Err     error
}

// AssemblyExecutor drives one assembly through discovery, filtering and
// listing or execution.
type AssemblyExecutor struct {
	engine    engine.Engine
	log       log.Logger
	reporter  Reporter
	discovery DiscoverySink
	execution ExecutionSink
	collector *ResultCollector
	tracer    trace.Tracer
}

// Run processes asm. It returns nil without doing anything when ctx is
// already cancelled; once started the assembly runs to completion.
func (e *AssemblyExecutor) Run(ctx context.Context, req *RunRequest, asm types.Assembly) (report *AssemblyReport) {
	if ctx.Err() != nil {
		e.log.Info("Skipping assembly, run cancelled", "assembly", asm.Path)
		metrics.RecordAssembly(metrics.AssemblySkipped)
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("assembly %s", asm.Key()))
	defer span.End()

	logger := e.log.New("assembly", asm.Key())
	report = &AssemblyReport{Assembly: asm, State: StateConfigured}

	defer func() {
		if r := recover(); r != nil {
			e.fault(logger, span, report, pkgerrors.Errorf("panic: %v", r))
		}
	}()

	discoveryOpts, executionOpts := configure(req, asm)
	logger.Debug("Assembly configured",
		"diagnostics", discoveryOpts.DiagnosticMessages,
		"preEnumerateTheories", discoveryOpts.PreEnumerateTheories,
		"disableParallelization", executionOpts.DisableParallelization,
		"maxParallelThreads", executionOpts.MaxParallelThreads)

	e.transition(logger, report, StateDiscovering)
	e.reporter.AssemblyDiscoveryStarting(asm)
	tests, err := e.discover(ctx, asm, discoveryOpts, req.includeSourceInfo())
	if err != nil {
		e.fault(logger, span, report, err)
		return report
	}
	report.Discovered = len(tests)

	var wire map[string]*protocol.Test
	if req.DesignTime {
		wire = protocol.ConvertTests(tests, false)
		for _, sink := range []any{e.discovery, e.execution} {
			if ws, ok := sink.(WireTestSink); ok {
				ws.UseWireTests(wire)
			}
		}
	}

	e.transition(logger, report, StateFiltering)
	filtered := filterTests(req, tests, wire)
	report.Tests = filtered
	e.reporter.AssemblyDiscoveryFinished(asm, len(tests), len(filtered))
	span.SetAttributes(
		attribute.Int("tests.discovered", len(tests)),
		attribute.Int("tests.to_run", len(filtered)))

	if req.List {
		e.transition(logger, report, StateListing)
		for _, t := range filtered {
			if err := e.discovery.SendTest(t); err != nil {
				e.fault(logger, span, report, err)
				return report
			}
		}
		e.transition(logger, report, StateDone)
		metrics.RecordAssembly(metrics.AssemblyListed)
		return report
	}

	e.transition(logger, report, StateExecuting)
	var summary types.ExecutionSummary
	if len(filtered) > 0 {
		e.reporter.AssemblyExecutionStarting(asm)
		summary, err = e.execute(ctx, logger, asm, filtered, executionOpts, discoveryOpts.DiagnosticMessages, report)
		e.reporter.AssemblyExecutionFinished(asm, summary)
	}
	report.Summary = &summary
	if recErr := e.collector.RecordSummary(asm.Key(), summary); recErr != nil {
		e.fault(logger, span, report, recErr)
		return report
	}
	if err != nil {
		e.fault(logger, span, report, err)
		return report
	}

	e.transition(logger, report, StateDone)
	metrics.RecordAssembly(metrics.AssemblyCompleted)
	logger.Info("Assembly finished",
		"total", summary.Total,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.Time)
	return report
}

func (e *AssemblyExecutor) transition(logger log.Logger, report *AssemblyReport, to AssemblyState) {
	logger.Debug("Assembly state", "from", report.State, "to", to)
	report.State = to
}

// fault marks the run failed and reports err with its full chain. The assembly's
// siblings are unaffected.
func (e *AssemblyExecutor) fault(logger log.Logger, span trace.Span, report *AssemblyReport, err error) {
	faultErr := &AssemblyFaultedError{Assembly: report.Assembly.Path, State: report.State, Err: err}
	report.State = StateFaulted
	report.Err = faultErr

	e.collector.MarkFailed()
	span.RecordError(faultErr)
	span.SetStatus(codes.Error, faultErr.Error())
	metrics.RecordAssembly(metrics.AssemblyFaulted)
	metrics.RecordErrorDetails("assembly_faulted", err)
	logger.Error("Assembly faulted", "state", faultErr.State, "err", fmt.Sprintf("%+v", err))
	e.reporter.AssemblyFaulted(report.Assembly, faultErr)
}

// configure derives the engine options from the assembly configuration and
// the run-level overrides.
func configure(req *RunRequest, asm types.Assembly) (engine.DiscoveryOptions, engine.ExecutionOptions) {
	cfg := asm.Config
	diagnostics := req.DiagnosticMessages || types.BoolOr(cfg.DiagnosticMessages, false)

	discovery := engine.DiscoveryOptions{
		DiagnosticMessages: diagnostics,
		// Theories are only pre-enumerated for design-time clients.
		PreEnumerateTheories: req.DesignTime && types.BoolOr(cfg.PreEnumerateTheories, true),
	}

	execution := engine.ExecutionOptions{
		DiagnosticMessages:     diagnostics,
		DisableParallelization: !types.BoolOr(cfg.ParallelizeTestCollections, true),
		MaxParallelThreads:     types.IntOr(cfg.MaxParallelThreads, 0),
	}
	if req.MaxParallelThreads != nil {
		execution.MaxParallelThreads = *req.MaxParallelThreads
	}
	if req.ParallelizeTestCollections != nil {
		execution.DisableParallelization = !*req.ParallelizeTestCollections
	}
	return discovery, execution
}

// filterTests applies the explicit design-time names when given, else the filters.
func filterTests(req *RunRequest, tests []*types.Test, wire map[string]*protocol.Test) []*types.Test {
	if !req.DesignTime || len(req.DesignTimeFullyQualifiedNames) == 0 {
		return req.Filters.Filter(tests)
	}
	wanted := make(map[string]struct{}, len(req.DesignTimeFullyQualifiedNames))
	for _, name := range req.DesignTimeFullyQualifiedNames {
		wanted[name] = struct{}{}
	}
	filtered := make([]*types.Test, 0, len(wanted))
	for _, t := range tests {
		fqn := t.FullyQualifiedName
		if w, ok := wire[t.ID]; ok {
			fqn = w.FullyQualifiedName
		}
		if _, ok := wanted[fqn]; ok {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// startEngine runs call in its own goroutine and returns the event stream,
// closed once call returns. A panicking engine is turned into a failed EventDone.
func startEngine(call func(events chan<- engine.Event)) <-chan engine.Event {
	events := make(chan engine.Event, eventBufferSize)
	go func() {
		start := time.Now()
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				events <- engine.Done(time.Since(start), pkgerrors.Errorf("engine panic: %v", r))
			}
		}()
		call(events)
	}()
	return events
}

func (e *AssemblyExecutor) discover(ctx context.Context, asm types.Assembly, opts engine.DiscoveryOptions, includeSourceInfo bool) ([]*types.Test, error) {
	events := startEngine(func(events chan<- engine.Event) {
		e.engine.Discover(ctx, asm, opts, includeSourceInfo, events)
	})

	var tests []*types.Test
	seen := make(map[string]bool)
	for ev := range events {
		switch ev.Kind {
		case engine.EventTestFound:
			if ev.Test == nil || seen[ev.Test.ID] {
				continue
			}
			seen[ev.Test.ID] = true
			tests = append(tests, ev.Test)
		case engine.EventDiagnostic:
			if opts.DiagnosticMessages {
				e.reporter.DiagnosticMessage(asm, ev.Message)
			}
		case engine.EventDone:
			if ev.Err != nil {
				return nil, fmt.Errorf("discovery failed: %w", ev.Err)
			}
			return tests, nil
		}
	}
	return nil, fmt.Errorf("discovery of %s ended without completion", asm.Path)
}

// execute runs tests and routes their events to the execution sink. Results
// are matched to tests by ID. A sink failure stops forwarding but the engine
// is still drained to completion.
func (e *AssemblyExecutor) execute(ctx context.Context, logger log.Logger, asm types.Assembly, tests []*types.Test, opts engine.ExecutionOptions, diagnostics bool, report *AssemblyReport) (types.ExecutionSummary, error) {
	known := make(map[string]*types.Test, len(tests))
	for _, t := range tests {
		known[t.ID] = t
	}

	events := startEngine(func(events chan<- engine.Event) {
		e.engine.Execute(ctx, asm, tests, opts, events)
	})

	var summary types.ExecutionSummary
	var sinkErr error
	finished := make(map[string]bool, len(tests))
	for ev := range events {
		switch ev.Kind {
		case engine.EventTestStarting:
			if ev.Test == nil || known[ev.Test.ID] == nil {
				logger.Warn("Engine started an unknown test", "test", ev.Test)
				continue
			}
			if sinkErr == nil {
				sinkErr = e.execution.RecordStart(known[ev.Test.ID])
			}
		case engine.EventTestFinished:
			if ev.Result == nil || ev.Result.Test == nil || known[ev.Result.Test.ID] == nil {
				logger.Warn("Engine reported a result for an unknown test")
				continue
			}
			if finished[ev.Result.Test.ID] {
				logger.Warn("Engine reported a test twice", "test", ev.Result.Test)
				continue
			}
			finished[ev.Result.Test.ID] = true
			ev.Result.Test = known[ev.Result.Test.ID]
			ev.Result.Finalize()

			summary.Add(ev.Result)
			report.Results = append(report.Results, ev.Result)
			metrics.RecordTestResult(asm.Key(), ev.Result.Outcome)
			if sinkErr == nil {
				sinkErr = e.execution.RecordResult(ev.Result)
			}
		case engine.EventDiagnostic:
			if diagnostics {
				e.reporter.DiagnosticMessage(asm, ev.Message)
			}
		case engine.EventDone:
			summary.Time = ev.Elapsed
			if ev.Err != nil {
				summary.Errors++
				return summary, fmt.Errorf("execution failed: %w", ev.Err)
			}
			if sinkErr != nil {
				return summary, fmt.Errorf("failed to deliver results: %w", sinkErr)
			}
			return summary, nil
		}
	}
	return summary, fmt.Errorf("execution of %s ended without completion", asm.Path)
}
