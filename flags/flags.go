package flags

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testhost/reporting"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TESTHOST"

// ParallelMode selects which levels of a run are parallelized.
type ParallelMode string

const (
	ParallelNone        ParallelMode = "none"
	ParallelCollections ParallelMode = "collections"
	ParallelAssemblies  ParallelMode = "assemblies"
	ParallelAll         ParallelMode = "all"
)

// ValidParallelModes returns all valid parallel modes
func ValidParallelModes() []ParallelMode {
	return []ParallelMode{ParallelNone, ParallelCollections, ParallelAssemblies, ParallelAll}
}

func (p ParallelMode) String() string {
	return string(p)
}

// IsValid reports whether p is a known mode.
func (p ParallelMode) IsValid() bool {
	for _, mode := range ValidParallelModes() {
		if p == mode {
			return true
		}
	}
	return false
}

// Assemblies reports whether assemblies run alongside each other.
func (p ParallelMode) Assemblies() bool {
	return p == ParallelAssemblies || p == ParallelAll
}

// Collections reports whether tests within an assembly run in parallel.
func (p ParallelMode) Collections() bool {
	return p == ParallelCollections || p == ParallelAll
}

const (
	MaxThreadsDefault   = "default"
	MaxThreadsUnlimited = "unlimited"
)

// ValueError reports a flag value rejected while the command line is parsed.
type ValueError struct {
	Flag string
	Err  error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("incorrect argument value for -%s: %v", e.Flag, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

func validateParallel(value string) error {
	if !ParallelMode(value).IsValid() {
		return &ValueError{Flag: "parallel", Err: fmt.Errorf("%s (must be one of: %s, %s, %s, %s)",
			value, ParallelNone, ParallelCollections, ParallelAssemblies, ParallelAll)}
	}
	return nil
}

func validateMaxThreads(value string) error {
	switch value {
	case MaxThreadsDefault, MaxThreadsUnlimited:
		return nil
	}
	if n, err := strconv.Atoi(value); err != nil || n < 1 {
		return &ValueError{Flag: "maxthreads", Err: fmt.Errorf("%s (must be %q, %q or a positive integer)",
			value, MaxThreadsDefault, MaxThreadsUnlimited)}
	}
	return nil
}

var (
	NoLogo = &cli.BoolFlag{
		Name:    "nologo",
		Usage:   "Do not show the header line",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NOLOGO"),
	}
	NoColor = &cli.BoolFlag{
		Name:    "nocolor",
		Usage:   "Do not output results with colors",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NOCOLOR"),
	}
	Parallel = &cli.StringFlag{
		Name:    "parallel",
		Usage:   "Set parallelization: none, collections (tests within an assembly), assemblies, or all",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL"),
		Action: func(ctx *cli.Context, value string) error {
			return validateParallel(value)
		},
	}
	MaxThreads = &cli.StringFlag{
		Name:    "maxthreads",
		Usage:   "Maximum thread count for in-assembly parallelization: default (1 per CPU), unlimited, or a number",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAXTHREADS"),
		Action: func(ctx *cli.Context, value string) error {
			return validateMaxThreads(value)
		},
	}
	Wait = &cli.BoolFlag{
		Name:    "wait",
		Usage:   "Wait for input after completion",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WAIT"),
	}
	Diagnostics = &cli.BoolFlag{
		Name:    "diagnostics",
		Usage:   "Enable diagnostic messages for all test assemblies",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DIAGNOSTICS"),
	}
	Trait = &cli.StringSliceFlag{
		Name:    "trait",
		Usage:   "Only run tests with matching name=value traits; OR-combined when repeated",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TRAIT"),
	}
	NoTrait = &cli.StringSliceFlag{
		Name:    "notrait",
		Usage:   "Do not run tests with matching name=value traits; AND-combined when repeated",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NOTRAIT"),
	}
	Method = &cli.StringSliceFlag{
		Name:    "method",
		Usage:   "Run a given test (fully specified, eg. 'example.com/pkg.TestFoo'); OR-combined when repeated",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METHOD"),
	}
	Class = &cli.StringSliceFlag{
		Name:    "class",
		Usage:   "Run all tests of a given class (eg. 'example.com/pkg.TestFoo'); OR-combined when repeated",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CLASS"),
	}
	Namespace = &cli.StringSliceFlag{
		Name:    "namespace",
		Usage:   "Run all tests in a given package and below (eg. 'example.com/pkg'); OR-combined when repeated",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NAMESPACE"),
	}
	DesignTime = &cli.BoolFlag{
		Name:    "designtime",
		Usage:   "Run on behalf of a design-time client",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DESIGNTIME"),
	}
	List = &cli.BoolFlag{
		Name:    "list",
		Usage:   "List the tests instead of running them",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIST"),
	}
	Test = &cli.StringSliceFlag{
		Name:    "test",
		Usage:   "Run the test with this fully qualified name (design-time only); repeatable",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST"),
	}
	Port = &cli.StringFlag{
		Name:    "port",
		Usage:   "Port to listen on for a design-time client (0 picks a free port)",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PORT"),
	}
	ParentProcessID = &cli.StringFlag{
		Name:    "parentProcessId",
		Usage:   "Exit when the process with this id exits",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARENT_PROCESS_ID"),
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary used to run test2json",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to write per-test log files to, one testrun-<id> directory per run",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   7301,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Health check server listening port, served alongside metrics when they are enabled",
	}
)

// ReporterFlags are the reporter switches, one per registered reporter.
var ReporterFlags []cli.Flag

// TransformFlags are the result file switches, one per registered transform.
var TransformFlags []cli.Flag

var optionalFlags = []cli.Flag{
	NoLogo,
	NoColor,
	Parallel,
	MaxThreads,
	Wait,
	Diagnostics,
	Trait,
	NoTrait,
	Method,
	Class,
	Namespace,
	DesignTime,
	List,
	Test,
	Port,
	ParentProcessID,
	GoBinary,
	LogDir,
	HealthzPort,
}
var Flags []cli.Flag

func init() {
	for _, name := range reporting.Switches() {
		ReporterFlags = append(ReporterFlags, &cli.BoolFlag{
			Name:    name,
			Usage:   reporting.Reporters[name].Description,
			EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, envName(name)),
		})
	}
	for _, name := range reporting.TransformNames() {
		TransformFlags = append(TransformFlags, &cli.StringFlag{
			Name:    name,
			Usage:   reporting.Transforms[name].Description,
			EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, envName(name)),
		})
	}
	optionalFlags = append(optionalFlags, ReporterFlags...)
	optionalFlags = append(optionalFlags, TransformFlags...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

func envName(flagName string) string {
	return strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// CheckRequired validates flag combinations that urfave/cli cannot express.
func CheckRequired(ctx *cli.Context) error {
	var reporters []string
	for _, f := range ReporterFlags {
		if ctx.Bool(f.Names()[0]) {
			reporters = append(reporters, f.Names()[0])
		}
	}
	if len(reporters) > 1 {
		return fmt.Errorf("only one reporter may be chosen, got %s", strings.Join(reporters, ", "))
	}
	if ctx.IsSet(Test.Name) && !ctx.Bool(DesignTime.Name) {
		return fmt.Errorf("flag %s requires %s", Test.Name, DesignTime.Name)
	}
	return opflags.CheckRequiredXor(ctx)
}
