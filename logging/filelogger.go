// Package logging writes the results of a batch run to a directory of plain
// text log files: one file per test, sorted into passed, failed and skipped
// directories, plus a combined all.log and a summary.log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testhost/reporting"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

const (
	RunDirectoryPrefix = "testrun-"
	AllLogsFileName    = "all.log"
	SummaryFileName    = "summary.log"
)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	err     error
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues data for writing.
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()
	if af.stopped {
		return fmt.Errorf("write to closed file %s", af.file.Name())
	}
	af.queue <- data
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()
	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil && af.err == nil {
			af.err = err
		}
	}
}

// Close flushes the queue and closes the file. It returns the first write error.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return nil
	}
	af.stopped = true
	close(af.queue)
	af.mu.Unlock()

	af.wg.Wait()
	closeErr := af.file.Close()
	if af.err != nil {
		return af.err
	}
	return closeErr
}

// FileLogger writes the log files of one run under <baseDir>/testrun-<runID>.
type FileLogger struct {
	runID   string
	logDir  string
	allLogs *AsyncFile

	mu    sync.Mutex
	names map[string]int
}

// NewFileLogger creates the run directory and its outcome subdirectories.
func NewFileLogger(baseDir, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, outcome := range []types.TestOutcome{types.TestOutcomePassed, types.TestOutcomeFailed, types.TestOutcomeSkipped} {
		dir := filepath.Join(logDir, string(outcome))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	allLogs, err := NewAsyncFile(filepath.Join(logDir, AllLogsFileName))
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		runID:   runID,
		logDir:  logDir,
		allLogs: allLogs,
		names:   make(map[string]int),
	}, nil
}

// Dir returns the run directory.
func (l *FileLogger) Dir() string {
	return l.logDir
}

// LogTestResult appends the result to all.log and writes its own file.
func (l *FileLogger) LogTestResult(r *types.TestResult) error {
	if err := l.allLogs.Write([]byte(formatAllLogsEntry(r))); err != nil {
		return err
	}

	path := filepath.Join(l.logDir, string(r.Outcome), l.testFilename(r.Test)+".log")
	if err := os.WriteFile(path, []byte(formatTestLog(r)), 0644); err != nil {
		return fmt.Errorf("failed to write test log %s: %w", path, err)
	}
	return nil
}

// LogSummary writes summary.log.
func (l *FileLogger) LogSummary(summary string) error {
	path := filepath.Join(l.logDir, SummaryFileName)
	if err := os.WriteFile(path, []byte(summary), 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}

// Complete flushes all.log.
func (l *FileLogger) Complete() error {
	return l.allLogs.Close()
}

// WriteReport logs every result of report followed by its summary.
func (l *FileLogger) WriteReport(report *reporting.Report) error {
	for _, n := range report.Assemblies {
		for _, r := range n.Results {
			if err := l.LogTestResult(r); err != nil {
				return err
			}
		}
	}
	if err := l.LogSummary(formatSummary(report)); err != nil {
		return err
	}
	return l.Complete()
}

// testFilename is unique within the run; repeated names get a numeric suffix.
func (l *FileLogger) testFilename(t *types.Test) string {
	name := safeFilename(types.AssemblyKey(t.Assembly) + "_" + t.Method)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.names[name]++
	if n := l.names[name]; n > 1 {
		name = fmt.Sprintf("%s_%d", name, n)
	}
	return name
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	return strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	).Replace(s)
}

func formatAllLogsEntry(r *types.TestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&b, "│ TEST: %-64s │\n", truncateString(r.Test.DisplayName, 64))
	fmt.Fprintf(&b, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&b, "│ Outcome:  %-62s │\n", r.Outcome)
	fmt.Fprintf(&b, "│ Assembly: %-62s │\n", truncateString(types.AssemblyKey(r.Test.Assembly), 62))
	fmt.Fprintf(&b, "│ Package:  %-62s │\n", truncateString(r.Test.Namespace, 62))
	fmt.Fprintf(&b, "│ Duration: %-62s │\n", r.Duration)
	fmt.Fprintf(&b, "└─────────────────────────────────────────────────────────────────────┘\n\n")
	writeDetails(&b, r)
	return b.String()
}

func formatTestLog(r *types.TestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Test:     %s\n", r.Test.FullyQualifiedName)
	fmt.Fprintf(&b, "Assembly: %s\n", r.Test.Assembly)
	fmt.Fprintf(&b, "Outcome:  %s\n", r.Outcome)
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration)
	if !r.StartTime.IsZero() {
		fmt.Fprintf(&b, "Started:  %s\n", r.StartTime.Format(time.RFC3339))
	}
	if r.Test.CodeFilePath != "" {
		fmt.Fprintf(&b, "Source:   %s:%d\n", r.Test.CodeFilePath, r.Test.LineNumber)
	}
	fmt.Fprintln(&b)
	writeDetails(&b, r)
	return b.String()
}

func writeDetails(b *strings.Builder, r *types.TestResult) {
	if r.ErrorMessage != "" {
		heading := "ERROR"
		if r.Outcome == types.TestOutcomeSkipped {
			heading = "SKIP REASON"
		}
		fmt.Fprintf(b, "%s:\n%s\n", heading, strings.Repeat("~", len(heading)+1))
		fmt.Fprintf(b, "%s\n\n", indentText(stripansi.Strip(r.ErrorMessage), "  "))
	}
	if r.ErrorStackTrace != "" {
		fmt.Fprintf(b, "STACK TRACE:\n~~~~~~~~~~~~\n")
		fmt.Fprintf(b, "%s\n\n", indentText(stripansi.Strip(r.ErrorStackTrace), "  "))
	}
	if len(r.Messages) > 0 {
		fmt.Fprintf(b, "OUTPUT:\n~~~~~~~\n")
		fmt.Fprintf(b, "%s\n", indentText(stripansi.Strip(strings.Join(r.Messages, "\n")), "  "))
	}
}

func formatSummary(report *reporting.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:       %s\n", report.RunID)
	fmt.Fprintf(&b, "Timestamp: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Elapsed:   %s\n\n", report.Elapsed)
	for _, n := range report.Assemblies {
		s := n.Summary
		fmt.Fprintf(&b, "%s: total %d, passed %d, failed %d, skipped %d, errors %d, time %s\n",
			n.Key, s.Total, s.Passed(), s.Failed, s.Skipped, s.Errors, s.Time)
		for _, e := range n.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	t := report.Total
	fmt.Fprintf(&b, "\nTotal: %d, Passed: %d, Failed: %d, Skipped: %d, Errors: %d\n",
		t.Total, t.Passed(), t.Failed, t.Skipped, t.Errors)
	return b.String()
}

// indentText adds indentation to each non-empty line
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// truncateString truncates a string to the specified max length
// and adds an ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
