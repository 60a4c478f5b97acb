// Package reporting renders run events for humans and machines: console
// reporters selected by a command line switch, a batching sink that feeds
// them, and result file transforms written once the run is over.
package reporting

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testhost/runner"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// Reporter renders run events. Implementations are safe for concurrent use.
type Reporter interface {
	runner.Reporter
	TestStarting(t *types.Test)
	TestFinished(r *types.TestResult)
	// TestListed prints a listed test, by fully qualified name for design-time runs.
	TestListed(t *types.Test, designTime bool)
}

// Options configures a reporter.
type Options struct {
	// Out defaults to os.Stdout.
	Out     io.Writer
	NoColor bool
}

// ReporterFactory builds a reporter selectable by its switch name.
type ReporterFactory struct {
	Description string
	New         func(opts Options) Reporter
}

// DefaultReporter is used when no switch selects another one.
const DefaultReporter = "default"

// Reporters maps switch names to reporters.
var Reporters = map[string]ReporterFactory{
	DefaultReporter: {
		Description: "show failures, skips and a summary table",
		New: func(opts Options) Reporter {
			return newConsoleReporter(opts, verbosityDefault)
		},
	},
	"verbose": {
		Description: "show verbose progress messages",
		New: func(opts Options) Reporter {
			return newConsoleReporter(opts, verbosityVerbose)
		},
	},
	"quiet": {
		Description: "do not show progress messages",
		New: func(opts Options) Reporter {
			return newConsoleReporter(opts, verbosityQuiet)
		},
	},
	"json": {
		Description: "show progress messages in JSON format",
		New:         newJSONReporter,
	},
}

// Switches returns the names of the reporters that can be selected, sorted.
func Switches() []string {
	names := make([]string, 0, len(Reporters))
	for name := range Reporters {
		if name != DefaultReporter {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// NewReporter builds the named reporter, falling back to the default one.
func NewReporter(name string, opts Options) Reporter {
	factory, ok := Reporters[name]
	if !ok {
		factory = Reporters[DefaultReporter]
	}
	return factory.New(opts)
}

// lockedWriter serializes writes of whole blocks and strips colors when asked to.
type lockedWriter struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
}

func newLockedWriter(opts Options) *lockedWriter {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &lockedWriter{out: out, noColor: opts.NoColor}
}

// write emits lines as one block.
func (w *lockedWriter) write(lines ...string) {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	text := b.String()
	if w.noColor {
		text = stripansi.Strip(text)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.out, text)
}

// assemblyName is the display name of an assembly: its file name without extension.
func assemblyName(asm types.Assembly) string {
	key := asm.Key()
	return strings.TrimSuffix(key, filepath.Ext(key))
}

// indent prefixes every line of s.
func indent(prefix, s string) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return lines
}
