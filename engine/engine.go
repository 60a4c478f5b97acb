// Package engine defines the boundary between the orchestrator and the
// framework that actually enumerates and runs tests.
//
// An engine call streams Events into the channel it is given and always ends
// with exactly one EventDone. The caller drains the channel until it sees it.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// EventKind discriminates engine events
type EventKind int

const (
	EventTestFound EventKind = iota
	EventTestStarting
	EventTestFinished
	EventDiagnostic
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventTestFound:
		return "test-found"
	case EventTestStarting:
		return "test-starting"
	case EventTestFinished:
		return "test-finished"
	case EventDiagnostic:
		return "diagnostic"
	case EventDone:
		return "done"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single notification from an engine.
type Event struct {
	Kind EventKind

	// Test is set for EventTestFound and EventTestStarting.
	Test *types.Test
	// Result is set for EventTestFinished.
	Result *types.TestResult
	// Message is set for EventDiagnostic.
	Message string

	// Err and Elapsed are set on EventDone.
	Err     error
	Elapsed time.Duration
}

// Done builds the terminating event.
func Done(elapsed time.Duration, err error) Event {
	return Event{Kind: EventDone, Elapsed: elapsed, Err: err}
}

// DiscoveryOptions configure a discovery call.
type DiscoveryOptions struct {
	DiagnosticMessages   bool
	PreEnumerateTheories bool
}

// ExecutionOptions configure an execution call.
type ExecutionOptions struct {
	DiagnosticMessages     bool
	DisableParallelization bool
	// MaxParallelThreads is 0 for the engine default and -1 for unlimited.
	MaxParallelThreads int
}

// Engine discovers and executes the tests of an assembly.
type Engine interface {
	// Discover streams EventTestFound and EventDiagnostic events, then EventDone.
	Discover(ctx context.Context, asm types.Assembly, opts DiscoveryOptions, includeSourceInfo bool, events chan<- Event)
	// Execute runs tests, streaming start, finish and diagnostic events, then EventDone.
	// Results reference the *types.Test values passed in.
	Execute(ctx context.Context, asm types.Assembly, tests []*types.Test, opts ExecutionOptions, events chan<- Event)
}
