package testhost

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/ethereum-optimism/infra/op-testhost/reporting"
)

// Header is the first line printed by the host unless -nologo is given.
func Header() string {
	return fmt.Sprintf("op-testhost (%d-bit %s/%s)", strconv.IntSize, runtime.GOOS, runtime.GOARCH)
}

// WantsUsage reports whether the arguments ask for the usage text.
func WantsUsage(args []string) bool {
	if len(args) == 0 {
		return true
	}
	for _, arg := range args {
		if arg == "-?" {
			return true
		}
	}
	return false
}

// PrintUsage writes the header and the usage text. Reporters and result
// formats are listed from their registries.
func PrintUsage(w io.Writer) {
	lines := []string{
		Header(),
		"",
		"usage: op-testhost <project.yaml | project.toml | binary.test> [...] [options] [reporter] [resultFormat filename [...]]",
		"",
		"Valid options:",
		"  -nologo                : do not show the header line",
		"  -nocolor               : do not output results with colors",
		"  -parallel option       : set parallelization based on option",
		"                         :   none        - turn off all parallelization",
		"                         :   collections - only parallelize tests within an assembly",
		"                         :   assemblies  - only parallelize assemblies",
		"                         :   all         - parallelize tests and assemblies",
		"  -maxthreads count      : maximum thread count for in-assembly parallelization",
		"                         :   default   - run with default (1 thread per CPU thread)",
		"                         :   unlimited - run with unbounded thread count",
		"                         :   (number)  - limit the thread count to 'count'",
		"  -wait                  : wait for input after completion",
		"  -diagnostics           : enable diagnostics messages for all test assemblies",
		"  -logdir dir            : write one log file per test under dir",
		"  -trait \"name=value\"    : only run tests with matching name/value traits",
		"                         : if specified more than once, acts as an OR operation",
		"  -notrait \"name=value\"  : do not run tests with matching name/value traits",
		"                         : if specified more than once, acts as an AND operation",
		"  -method \"name\"         : run a given test (should be fully specified;",
		"                         : i.e., 'example.com/pkg.TestFoo')",
		"                         : if specified more than once, acts as an OR operation",
		"  -class \"name\"          : run all tests of a given class (should be fully",
		"                         : specified; i.e., 'example.com/pkg.TestFoo')",
		"                         : if specified more than once, acts as an OR operation",
		"  -namespace \"name\"      : run all tests in a given package (i.e.,",
		"                         : 'example.com/pkg')",
		"                         : if specified more than once, acts as an OR operation",
		"",
	}

	lines = append(lines, "Reporters: (optional, choose only one)")
	for _, name := range reporting.Switches() {
		lines = append(lines, fmt.Sprintf("  -%s : %s", padRight(name, 21), reporting.Reporters[name].Description))
	}
	lines = append(lines, "")

	lines = append(lines, "Result formats: (optional, choose one or more)")
	for _, name := range reporting.TransformNames() {
		lines = append(lines, fmt.Sprintf("  %s : %s", padRight(fmt.Sprintf("-%s <filename>", name), 22), reporting.Transforms[name].Description))
	}

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
