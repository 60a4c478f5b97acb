package reporting

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testhost/runner"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// AssemblyNode accumulates everything known about one assembly for result files.
type AssemblyNode struct {
	Key        string
	Path       string
	ConfigPath string
	StartTime  time.Time
	Discovered int
	Results    []*types.TestResult
	Summary    types.ExecutionSummary
	Executed   bool
	// Errors is the error chain of a fault, outermost first.
	Errors []string
}

// ConsoleSink is the batch-mode sink: it forwards every event to a reporter
// and keeps the results of each assembly until the run is over.
type ConsoleSink struct {
	reporter   Reporter
	designTime bool

	mu         sync.Mutex
	assemblies map[string]*AssemblyNode
	summary    *types.RunSummary
}

var (
	_ runner.Reporter      = (*ConsoleSink)(nil)
	_ runner.DiscoverySink = (*ConsoleSink)(nil)
	_ runner.ExecutionSink = (*ConsoleSink)(nil)
)

// NewConsoleSink creates a sink forwarding to reporter. designTime selects
// how listed tests are printed.
func NewConsoleSink(reporter Reporter, designTime bool) *ConsoleSink {
	return &ConsoleSink{
		reporter:   reporter,
		designTime: designTime,
		assemblies: make(map[string]*AssemblyNode),
	}
}

// node returns the node of asm, creating it on first use. Callers hold s.mu.
func (s *ConsoleSink) node(asm types.Assembly) *AssemblyNode {
	n, ok := s.assemblies[asm.Key()]
	if !ok {
		n = &AssemblyNode{Key: asm.Key(), Path: asm.Path, ConfigPath: asm.ConfigPath, StartTime: time.Now()}
		s.assemblies[asm.Key()] = n
	}
	return n
}

// nodeForTest returns the node of the assembly a test belongs to. Callers hold s.mu.
func (s *ConsoleSink) nodeForTest(t *types.Test) *AssemblyNode {
	return s.node(types.Assembly{Path: t.Assembly})
}

func (s *ConsoleSink) AssemblyDiscoveryStarting(asm types.Assembly) {
	s.mu.Lock()
	s.node(asm)
	s.mu.Unlock()
	s.reporter.AssemblyDiscoveryStarting(asm)
}

func (s *ConsoleSink) AssemblyDiscoveryFinished(asm types.Assembly, discovered, toRun int) {
	s.mu.Lock()
	s.node(asm).Discovered = discovered
	s.mu.Unlock()
	s.reporter.AssemblyDiscoveryFinished(asm, discovered, toRun)
}

func (s *ConsoleSink) AssemblyExecutionStarting(asm types.Assembly) {
	s.reporter.AssemblyExecutionStarting(asm)
}

func (s *ConsoleSink) AssemblyExecutionFinished(asm types.Assembly, summary types.ExecutionSummary) {
	s.mu.Lock()
	n := s.node(asm)
	n.Summary = summary
	n.Executed = true
	s.mu.Unlock()
	s.reporter.AssemblyExecutionFinished(asm, summary)
}

func (s *ConsoleSink) DiagnosticMessage(asm types.Assembly, message string) {
	s.reporter.DiagnosticMessage(asm, message)
}

func (s *ConsoleSink) AssemblyFaulted(asm types.Assembly, err error) {
	s.mu.Lock()
	s.node(asm).Errors = runner.ErrorChain(err)
	s.mu.Unlock()
	s.reporter.AssemblyFaulted(asm, err)
}

func (s *ConsoleSink) RunFinished(summary *types.RunSummary) {
	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()
	s.reporter.RunFinished(summary)
}

// SendTest prints a listed test.
func (s *ConsoleSink) SendTest(t *types.Test) error {
	s.reporter.TestListed(t, s.designTime)
	return nil
}

// RecordStart forwards a test start.
func (s *ConsoleSink) RecordStart(t *types.Test) error {
	s.reporter.TestStarting(t)
	return nil
}

// RecordResult keeps r and forwards it.
func (s *ConsoleSink) RecordResult(r *types.TestResult) error {
	s.mu.Lock()
	n := s.nodeForTest(r.Test)
	n.Results = append(n.Results, r)
	s.mu.Unlock()
	s.reporter.TestFinished(r)
	return nil
}

// Report snapshots the accumulated assemblies, sorted by key.
func (s *ConsoleSink) Report(runID string) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &Report{RunID: runID, Timestamp: time.Now()}
	keys := make([]string, 0, len(s.assemblies))
	for k := range s.assemblies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n := *s.assemblies[k]
		n.Results = append([]*types.TestResult(nil), n.Results...)
		report.Assemblies = append(report.Assemblies, &n)
		report.Total.Merge(n.Summary)
	}
	if s.summary != nil {
		report.Total = s.summary.Total
		report.Elapsed = s.summary.Elapsed
	}
	return report
}
