package runner

import (
	"github.com/ethereum-optimism/infra/op-testhost/protocol"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// DiscoverySink receives the tests of a listing run.
type DiscoverySink interface {
	SendTest(test *types.Test) error
}

// ExecutionSink receives test start and finish events.
type ExecutionSink interface {
	RecordStart(test *types.Test) error
	RecordResult(result *types.TestResult) error
}

// WireTestSink is implemented by sinks that speak the design-time protocol.
// Before listing or executing an assembly the executor hands them the wire
// form of its tests, keyed by engine test ID.
type WireTestSink interface {
	UseWireTests(tests map[string]*protocol.Test)
}

// Reporter receives the lifecycle messages of a run. Implementations must be
// safe for concurrent use, as assemblies may run in parallel.
type Reporter interface {
	AssemblyDiscoveryStarting(asm types.Assembly)
	AssemblyDiscoveryFinished(asm types.Assembly, discovered, toRun int)
	AssemblyExecutionStarting(asm types.Assembly)
	AssemblyExecutionFinished(asm types.Assembly, summary types.ExecutionSummary)
	DiagnosticMessage(asm types.Assembly, message string)
	AssemblyFaulted(asm types.Assembly, err error)
	RunFinished(summary *types.RunSummary)
}

// NopReporter ignores every message.
type NopReporter struct{}

var _ Reporter = NopReporter{}

func (NopReporter) AssemblyDiscoveryStarting(types.Assembly) {}
func (NopReporter) AssemblyDiscoveryFinished(types.Assembly, int, int) {}
func (NopReporter) AssemblyExecutionStarting(types.Assembly) {}
func (NopReporter) AssemblyExecutionFinished(types.Assembly, types.ExecutionSummary) {}
func (NopReporter) DiagnosticMessage(types.Assembly, string) {}
func (NopReporter) AssemblyFaulted(types.Assembly, error) {}
func (NopReporter) RunFinished(*types.RunSummary) {}

type nopSink struct{}

func (nopSink) SendTest(*types.Test) error { return nil }
func (nopSink) RecordStart(*types.Test) error { return nil }
func (nopSink) RecordResult(*types.TestResult) error { return nil }
