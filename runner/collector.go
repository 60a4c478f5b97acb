package runner

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// ResultCollector aggregates per-assembly summaries. It is safe for concurrent use.
type ResultCollector struct {
	runID string

	mu        sync.Mutex
	summaries map[string]types.ExecutionSummary

	failed atomic.Bool
}

// NewResultCollector creates a collector for the run identified by runID.
func NewResultCollector(runID string) *ResultCollector {
	return &ResultCollector{
		runID:     runID,
		summaries: make(map[string]types.ExecutionSummary),
	}
}

// RecordSummary stores the summary of one assembly. A key may only be recorded once.
func (c *ResultCollector) RecordSummary(key string, summary types.ExecutionSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.summaries[key]; exists {
		return &DuplicateKeyError{Key: key}
	}
	c.summaries[key] = summary
	return nil
}

// MarkFailed records that an assembly failed outside of its test results.
func (c *ResultCollector) MarkFailed() {
	c.failed.Store(true)
}

// HasFailures reports whether an assembly faulted or any recorded summary has failed tests.
func (c *ResultCollector) HasFailures() bool {
	return c.FailureCount() > 0
}

// FailureCount is 1 if an assembly faulted, else the number of failed tests
// across all recorded summaries.
func (c *ResultCollector) FailureCount() int {
	if c.failed.Load() {
		return 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failures := 0
	for _, s := range c.summaries {
		failures += s.Failed
	}
	return failures
}

// Len returns the number of recorded summaries.
func (c *ResultCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.summaries)
}

// Finalize builds the consolidated summary, sorted by assembly key.
func (c *ResultCollector) Finalize(elapsed time.Duration) *types.RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.summaries))
	for k := range c.summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	summary := &types.RunSummary{
		RunID:      c.runID,
		Assemblies: make([]types.AssemblySummary, 0, len(keys)),
		Elapsed:    elapsed,
	}
	for _, k := range keys {
		s := c.summaries[k]
		summary.Assemblies = append(summary.Assemblies, types.AssemblySummary{Key: k, Summary: s})
		summary.Total.Merge(s)
	}
	return summary
}
