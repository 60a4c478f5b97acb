package gotest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// Actions reported by test2json
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPause  = "pause"
	ActionCont   = "cont"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// TestEvent is a single line of test2json output.
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Output  string
	Elapsed float64
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}

type pendingTest struct {
	test   *types.Test
	start  time.Time
	output []string
}

// resultBuilder turns a stream of test2json events into engine events for the
// requested top-level tests. Subtest output is folded into its parent.
type resultBuilder struct {
	tests       map[string]*types.Test
	order       []*types.Test
	running     map[string]*pendingTest
	finished    map[string]bool
	diagnostics bool
	emit        func(engine.Event)

	failures int
}

func newResultBuilder(tests []*types.Test, diagnostics bool, emit func(engine.Event)) *resultBuilder {
	byName := make(map[string]*types.Test, len(tests))
	for _, t := range tests {
		byName[t.Method] = t
	}
	return &resultBuilder{
		tests:       byName,
		order:       tests,
		running:     make(map[string]*pendingTest),
		finished:    make(map[string]bool),
		diagnostics: diagnostics,
		emit:        emit,
	}
}

func (b *resultBuilder) handle(event TestEvent) {
	if event.Test == "" {
		if event.Action == ActionOutput && b.diagnostics {
			if msg := strings.TrimRight(event.Output, "\r\n"); strings.TrimSpace(msg) != "" {
				b.emit(engine.Event{Kind: engine.EventDiagnostic, Message: msg})
			}
		}
		return
	}

	root, _, isSubTest := strings.Cut(event.Test, "/")
	test, ok := b.tests[root]
	if !ok || b.finished[root] {
		return
	}

	pending := b.running[root]
	if pending == nil {
		pending = &pendingTest{test: test, start: event.Time}
		b.running[root] = pending
		b.emit(engine.Event{Kind: engine.EventTestStarting, Test: test})
	}

	switch event.Action {
	case ActionOutput:
		pending.output = append(pending.output, strings.TrimRight(event.Output, "\r\n"))
	case ActionPass, ActionFail, ActionSkip:
		if isSubTest {
			return
		}
		b.complete(pending, event)
	}
}

func (b *resultBuilder) complete(pending *pendingTest, event TestEvent) {
	name := pending.test.Method
	delete(b.running, name)
	b.finished[name] = true

	duration := time.Duration(event.Elapsed * float64(time.Second))
	result := &types.TestResult{
		Test:      pending.test,
		Outcome:   outcomeFor(event.Action),
		Duration:  duration,
		StartTime: pending.start,
		EndTime:   event.Time,
	}
	if result.StartTime.IsZero() && !event.Time.IsZero() {
		result.StartTime = event.Time.Add(-duration)
	}
	b.fill(result, pending.output)
	b.emit(engine.Event{Kind: engine.EventTestFinished, Result: result})
}

// fill attaches output and, for failures, the error message and stack.
func (b *resultBuilder) fill(result *types.TestResult, output []string) {
	var messages []string
	for _, line := range output {
		if isFramingLine(line) {
			continue
		}
		messages = append(messages, line)
	}
	for _, m := range messages {
		// A fresh result is never finalized.
		_ = result.AppendMessage(m)
	}
	if result.Outcome == types.TestOutcomeFailed {
		b.failures++
		result.ErrorMessage, result.ErrorStackTrace = splitFailure(messages)
	}
	result.Finalize()
}

// abort fails every requested test that did not finish, after the binary
// exited. reason describes why.
func (b *resultBuilder) abort(reason string, now time.Time) {
	for _, t := range b.order {
		if b.finished[t.Method] {
			continue
		}
		pending := b.running[t.Method]
		if pending == nil {
			pending = &pendingTest{test: t, start: now}
			b.emit(engine.Event{Kind: engine.EventTestStarting, Test: t})
		}
		delete(b.running, t.Method)
		b.finished[t.Method] = true

		result := &types.TestResult{
			Test:      t,
			Outcome:   types.TestOutcomeFailed,
			StartTime: pending.start,
			EndTime:   now,
			Duration:  now.Sub(pending.start),
		}
		b.fill(result, pending.output)
		if result.ErrorMessage == "" {
			result.ErrorMessage = reason
		} else {
			result.ErrorMessage = reason + ": " + result.ErrorMessage
		}
		b.emit(engine.Event{Kind: engine.EventTestFinished, Result: result})
	}
}

func (b *resultBuilder) incomplete() bool {
	return len(b.finished) < len(b.order)
}

func outcomeFor(action string) types.TestOutcome {
	switch action {
	case ActionPass:
		return types.TestOutcomePassed
	case ActionSkip:
		return types.TestOutcomeSkipped
	default:
		return types.TestOutcomeFailed
	}
}

var framingPrefixes = []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS:", "--- FAIL:", "--- SKIP:"}

func isFramingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	for _, p := range framingPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// splitFailure separates the failure text from a panic stack, if any.
func splitFailure(messages []string) (string, string) {
	for i, m := range messages {
		if strings.HasPrefix(strings.TrimSpace(m), "panic:") {
			msg := strings.TrimSpace(m)
			return msg, strings.Join(messages[i+1:], "\n")
		}
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, strings.TrimSpace(m))
	}
	return strings.Join(lines, "\n"), ""
}
