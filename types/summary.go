package types

import (
	"time"
)

// ExecutionSummary aggregates the results of one assembly's run.
// The zero value is the summary of an assembly where no tests matched.
type ExecutionSummary struct {
	Total   int
	Failed  int
	Skipped int
	Errors  int
	Time    time.Duration
}

// Passed returns the number of tests that neither failed nor were skipped.
func (s ExecutionSummary) Passed() int {
	return s.Total - s.Failed - s.Skipped
}

// Add accumulates a test result into the summary.
func (s *ExecutionSummary) Add(r *TestResult) {
	s.Total++
	switch r.Outcome {
	case TestOutcomeFailed:
		s.Failed++
	case TestOutcomeSkipped:
		s.Skipped++
	}
}

// Merge adds other's counts and time to s.
func (s *ExecutionSummary) Merge(other ExecutionSummary) {
	s.Total += other.Total
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.Time += other.Time
}

// AssemblySummary pairs an assembly key with its summary.
type AssemblySummary struct {
	Key     string
	Summary ExecutionSummary
}

// RunSummary is the consolidated cross-assembly summary of a run.
// Assemblies are sorted by key.
type RunSummary struct {
	RunID      string
	Assemblies []AssemblySummary
	Total      ExecutionSummary
	Elapsed    time.Duration
}
