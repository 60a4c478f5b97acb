// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// Assembly scripts the behaviour of one assembly, looked up by its key.
type Assembly struct {
	Package string
	// Tests are the method names discovered, in order.
	Tests []string
	// Traits attaches "name=value" traits to tests by method name.
	Traits map[string][]string
	// Outcomes overrides the default passed outcome by method name.
	Outcomes map[string]types.TestOutcome
	// Diagnostics are emitted at the start of every call.
	Diagnostics []string

	DiscoverErr   error
	DiscoverPanic any
	ExecuteErr    error
	ExecutePanic  any

	// Started, when set, is closed as Execute begins.
	Started chan struct{}
	// Release, when set, blocks Execute after the first test starts until closed.
	Release chan struct{}
	// TestDelay is slept before each test finishes.
	TestDelay time.Duration
}

// Engine is a fake engine.Engine.
type Engine struct {
	Assemblies map[string]*Assembly

	mu             sync.Mutex
	discoverCalls  map[string]int
	executeCalls   map[string]int
	lastDiscovery  map[string]engine.DiscoveryOptions
	lastExecution  map[string]engine.ExecutionOptions
	sourceInfoSeen map[string]bool
}

var _ engine.Engine = (*Engine)(nil)

// New returns a fake engine serving the given assemblies.
func New(assemblies map[string]*Assembly) *Engine {
	return &Engine{
		Assemblies:     assemblies,
		discoverCalls:  make(map[string]int),
		executeCalls:   make(map[string]int),
		lastDiscovery:  make(map[string]engine.DiscoveryOptions),
		lastExecution:  make(map[string]engine.ExecutionOptions),
		sourceInfoSeen: make(map[string]bool),
	}
}

func (e *Engine) Discover(ctx context.Context, asm types.Assembly, opts engine.DiscoveryOptions, includeSourceInfo bool, events chan<- engine.Event) {
	start := time.Now()
	key := asm.Key()

	e.mu.Lock()
	e.discoverCalls[key]++
	e.lastDiscovery[key] = opts
	e.sourceInfoSeen[key] = includeSourceInfo
	script := e.Assemblies[key]
	e.mu.Unlock()

	if script == nil {
		events <- engine.Done(time.Since(start), nil)
		return
	}
	if script.DiscoverPanic != nil {
		panic(script.DiscoverPanic)
	}
	for _, d := range script.Diagnostics {
		events <- engine.Event{Kind: engine.EventDiagnostic, Message: d}
	}
	if script.DiscoverErr != nil {
		events <- engine.Done(time.Since(start), script.DiscoverErr)
		return
	}
	for _, name := range script.Tests {
		t := types.NewTest(asm.Path, script.Package, name)
		for _, tr := range script.Traits[name] {
			if k, v, ok := strings.Cut(tr, "="); ok {
				t.Traits[k] = append(t.Traits[k], v)
			}
		}
		if includeSourceInfo {
			t.CodeFilePath = name + "_test.go"
			t.LineNumber = 1
		}
		events <- engine.Event{Kind: engine.EventTestFound, Test: t}
	}
	events <- engine.Done(time.Since(start), nil)
}

func (e *Engine) Execute(ctx context.Context, asm types.Assembly, tests []*types.Test, opts engine.ExecutionOptions, events chan<- engine.Event) {
	start := time.Now()
	key := asm.Key()

	e.mu.Lock()
	e.executeCalls[key]++
	e.lastExecution[key] = opts
	script := e.Assemblies[key]
	e.mu.Unlock()

	if script == nil {
		script = &Assembly{}
	}
	if script.Started != nil {
		close(script.Started)
	}
	if script.ExecutePanic != nil {
		panic(script.ExecutePanic)
	}
	for _, d := range script.Diagnostics {
		events <- engine.Event{Kind: engine.EventDiagnostic, Message: d}
	}
	if script.ExecuteErr != nil {
		events <- engine.Done(time.Since(start), script.ExecuteErr)
		return
	}
	for i, t := range tests {
		events <- engine.Event{Kind: engine.EventTestStarting, Test: t}
		if i == 0 && script.Release != nil {
			<-script.Release
		}
		if script.TestDelay > 0 {
			time.Sleep(script.TestDelay)
		}
		outcome := types.TestOutcomePassed
		if o, ok := script.Outcomes[t.Method]; ok {
			outcome = o
		}
		now := time.Now()
		result := &types.TestResult{
			Test:      t,
			Outcome:   outcome,
			StartTime: now,
			EndTime:   now,
		}
		if outcome == types.TestOutcomeFailed {
			result.ErrorMessage = t.Method + " failed"
		}
		result.Finalize()
		events <- engine.Event{Kind: engine.EventTestFinished, Result: result}
	}
	events <- engine.Done(time.Since(start), nil)
}

// DiscoverCalls returns how many times the assembly was discovered.
func (e *Engine) DiscoverCalls(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.discoverCalls[key]
}

// ExecuteCalls returns how many times the assembly was executed.
func (e *Engine) ExecuteCalls(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeCalls[key]
}

// LastDiscoveryOptions returns the options of the latest discovery of key.
func (e *Engine) LastDiscoveryOptions(key string) (engine.DiscoveryOptions, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDiscovery[key], e.sourceInfoSeen[key]
}

// LastExecutionOptions returns the options of the latest execution of key.
func (e *Engine) LastExecutionOptions(key string) engine.ExecutionOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastExecution[key]
}
