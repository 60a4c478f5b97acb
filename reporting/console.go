package reporting

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testhost/runner"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

type verbosity int

const (
	verbosityQuiet verbosity = iota
	verbosityDefault
	verbosityVerbose
)

var (
	colorFail   = text.Colors{text.FgRed}
	colorSkip   = text.Colors{text.FgYellow}
	colorPass   = text.Colors{text.FgGreen}
	colorDim    = text.Colors{text.FgHiBlack}
	colorNotice = text.Colors{text.FgYellow}
)

// consoleReporter prints human readable progress.
type consoleReporter struct {
	w         *lockedWriter
	verbosity verbosity
}

var _ Reporter = (*consoleReporter)(nil)

func newConsoleReporter(opts Options, v verbosity) *consoleReporter {
	return &consoleReporter{w: newLockedWriter(opts), verbosity: v}
}

func (c *consoleReporter) AssemblyDiscoveryStarting(asm types.Assembly) {
	if c.verbosity < verbosityDefault {
		return
	}
	c.w.write(fmt.Sprintf("Discovering: %s", assemblyName(asm)))
}

func (c *consoleReporter) AssemblyDiscoveryFinished(asm types.Assembly, discovered, toRun int) {
	switch c.verbosity {
	case verbosityVerbose:
		c.w.write(fmt.Sprintf("Discovered:  %s (found %d of %d tests)", assemblyName(asm), toRun, discovered))
	case verbosityDefault:
		c.w.write(fmt.Sprintf("Discovered:  %s", assemblyName(asm)))
	}
}

func (c *consoleReporter) AssemblyExecutionStarting(asm types.Assembly) {
	if c.verbosity < verbosityDefault {
		return
	}
	c.w.write(fmt.Sprintf("Starting:    %s", assemblyName(asm)))
}

func (c *consoleReporter) AssemblyExecutionFinished(asm types.Assembly, summary types.ExecutionSummary) {
	switch c.verbosity {
	case verbosityVerbose:
		c.w.write(fmt.Sprintf("Finished:    %s (%d tests, %d failed, %d skipped, %s)",
			assemblyName(asm), summary.Total, summary.Failed, summary.Skipped, formatDuration(summary.Time)))
	case verbosityDefault:
		c.w.write(fmt.Sprintf("Finished:    %s", assemblyName(asm)))
	}
}

func (c *consoleReporter) DiagnosticMessage(asm types.Assembly, message string) {
	c.w.write(colorNotice.Sprintf("   %s: %s", assemblyName(asm), message))
}

func (c *consoleReporter) AssemblyFaulted(asm types.Assembly, err error) {
	lines := []string{colorFail.Sprintf("%s [FAULTED]", assemblyName(asm))}
	for _, l := range runner.ErrorChain(err) {
		lines = append(lines, colorFail.Sprint(l))
	}
	c.w.write(lines...)
}

func (c *consoleReporter) TestStarting(t *types.Test) {
	if c.verbosity < verbosityVerbose {
		return
	}
	c.w.write(colorDim.Sprintf("    %s [STARTING]", t.DisplayName))
}

func (c *consoleReporter) TestFinished(r *types.TestResult) {
	switch r.Outcome {
	case types.TestOutcomeFailed:
		lines := []string{colorFail.Sprintf("    %s [FAIL]", r.Test.DisplayName)}
		if r.ErrorMessage != "" {
			lines = append(lines, indent("      ", colorFail.Sprint(r.ErrorMessage))...)
		}
		if r.ErrorStackTrace != "" {
			lines = append(lines, "      Stack Trace:")
			lines = append(lines, indent("        ", r.ErrorStackTrace)...)
		}
		if len(r.Messages) > 0 {
			lines = append(lines, "      Output:")
			for _, m := range r.Messages {
				lines = append(lines, indent("        ", m)...)
			}
		}
		c.w.write(lines...)
	case types.TestOutcomeSkipped:
		if c.verbosity < verbosityDefault {
			return
		}
		lines := []string{colorSkip.Sprintf("    %s [SKIP]", r.Test.DisplayName)}
		if r.ErrorMessage != "" {
			lines = append(lines, indent("      ", colorSkip.Sprint(r.ErrorMessage))...)
		}
		c.w.write(lines...)
	default:
		if c.verbosity < verbosityVerbose {
			return
		}
		c.w.write(colorPass.Sprintf("    %s [PASS]", r.Test.DisplayName) + colorDim.Sprintf(" (%s)", formatDuration(r.Duration)))
	}
}

func (c *consoleReporter) TestListed(t *types.Test, designTime bool) {
	if designTime {
		c.w.write(t.FullyQualifiedName)
		return
	}
	c.w.write(t.DisplayName)
}

func (c *consoleReporter) RunFinished(summary *types.RunSummary) {
	if c.verbosity == verbosityQuiet {
		total := summary.Total
		c.w.write(fmt.Sprintf("=== TEST EXECUTION SUMMARY === Total: %d, Errors: %d, Failed: %d, Skipped: %d, Time: %s",
			total.Total, total.Errors, total.Failed, total.Skipped, formatDuration(summary.Elapsed)))
		return
	}
	c.w.write(summaryTable(summary))
}
