package testhost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testhost/filter"
	"github.com/ethereum-optimism/infra/op-testhost/flags"
	"github.com/ethereum-optimism/infra/op-testhost/project"
	"github.com/ethereum-optimism/infra/op-testhost/reporting"
	"github.com/ethereum-optimism/infra/op-testhost/runner"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// ErrNoInputs is returned when neither a project file nor a test binary was given.
var ErrNoInputs = errors.New("no project files or test binaries given")

// Config holds the application configuration
type Config struct {
	// Inputs are the project files and test binaries given on the command line.
	Inputs  []string
	Request runner.RunRequest

	Reporter   string
	Transforms []reporting.TransformTarget
	NoLogo     bool
	NoColor    bool
	Wait       bool
	// LogDir receives per-test log files of batch runs when set.
	LogDir string

	// Port is set when a design-time client is served over a socket.
	Port *int
	// ParentProcessID is watched when non-zero; the host stops once it exits.
	ParentProcessID int
	GoBinary        string
	Log             log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, NewUsageError(err)
	}

	cfg := &Config{
		Inputs:   ctx.Args().Slice(),
		Reporter: reporting.DefaultReporter,
		NoLogo:   ctx.Bool(flags.NoLogo.Name),
		NoColor:  ctx.Bool(flags.NoColor.Name),
		Wait:     ctx.Bool(flags.Wait.Name),
		GoBinary: ctx.String(flags.GoBinary.Name),
		Log:      log,
	}

	// Host settings are checked before anything is loaded.
	if s := ctx.String(flags.ParentProcessID.Name); s != "" {
		pid, err := ParseProcessID(s)
		if err != nil {
			return nil, NewHostError(err)
		}
		cfg.ParentProcessID = pid
	}
	if ctx.IsSet(flags.Port.Name) {
		port, err := ParsePort(ctx.String(flags.Port.Name))
		if err != nil {
			return nil, NewHostError(err)
		}
		cfg.Port = &port
	}

	if dir := ctx.String(flags.LogDir.Name); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, NewUsageError(fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", dir, err))
		}
		cfg.LogDir = abs
	}

	for _, f := range flags.ReporterFlags {
		if name := f.Names()[0]; ctx.Bool(name) {
			cfg.Reporter = name
		}
	}
	for _, f := range flags.TransformFlags {
		name := f.Names()[0]
		path := ctx.String(name)
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, NewUsageError(fmt.Errorf("failed to resolve absolute path for %s output '%s': %w", name, path, err))
		}
		cfg.Transforms = append(cfg.Transforms, reporting.TransformTarget{Name: name, Path: abs})
	}

	req := &cfg.Request
	req.DiagnosticMessages = ctx.Bool(flags.Diagnostics.Name)
	req.DesignTime = ctx.Bool(flags.DesignTime.Name) || cfg.Port != nil
	req.List = ctx.Bool(flags.List.Name)
	req.DesignTimeFullyQualifiedNames = ctx.StringSlice(flags.Test.Name)

	if ctx.IsSet(flags.Parallel.Name) {
		assemblies, collections, err := ParseParallel(ctx.String(flags.Parallel.Name))
		if err != nil {
			return nil, NewUsageError(err)
		}
		req.ParallelizeAssemblies = assemblies
		req.ParallelizeTestCollections = collections
	}
	if ctx.IsSet(flags.MaxThreads.Name) {
		maxThreads, err := ParseMaxThreads(ctx.String(flags.MaxThreads.Name))
		if err != nil {
			return nil, NewUsageError(err)
		}
		req.MaxParallelThreads = maxThreads
	}

	filters, err := parseFilters(ctx)
	if err != nil {
		return nil, NewUsageError(err)
	}
	req.Filters = filters

	if len(cfg.Inputs) == 0 {
		return nil, NewUsageError(ErrNoInputs)
	}
	assemblies, err := ResolveInputs(cfg.Inputs, filters)
	if err != nil {
		return nil, NewUsageError(err)
	}
	req.Assemblies = assemblies

	if err := req.Validate(); err != nil {
		return nil, NewUsageError(err)
	}
	return cfg, nil
}

func parseFilters(ctx *cli.Context) (*filter.Filters, error) {
	f := filter.New()
	for _, t := range ctx.StringSlice(flags.Trait.Name) {
		if err := f.AddTrait(t); err != nil {
			return nil, err
		}
	}
	for _, t := range ctx.StringSlice(flags.NoTrait.Name) {
		if err := f.AddNoTrait(t); err != nil {
			return nil, err
		}
	}
	for _, m := range ctx.StringSlice(flags.Method.Name) {
		if err := f.AddMethod(m); err != nil {
			return nil, err
		}
	}
	for _, c := range ctx.StringSlice(flags.Class.Name) {
		f.AddClass(c)
	}
	for _, n := range ctx.StringSlice(flags.Namespace.Name) {
		f.AddNamespace(n)
	}
	return f, nil
}

// ResolveInputs turns the command line inputs into assemblies, in order.
// Project files contribute their assemblies and add their filters to f.
func ResolveInputs(inputs []string, f *filter.Filters) ([]types.Assembly, error) {
	var assemblies []types.Assembly
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for '%s': %w", input, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("file not found: %s", input)
		}

		if project.IsProjectFile(abs) {
			p, err := project.Load(abs)
			if err != nil {
				return nil, err
			}
			if err := p.Filters.Apply(f); err != nil {
				return nil, fmt.Errorf("project %s: %w", input, err)
			}
			assemblies = append(assemblies, p.Assemblies...)
			continue
		}

		asm, err := project.LoadAssembly(abs, "")
		if err != nil {
			return nil, err
		}
		assemblies = append(assemblies, asm)
	}
	return assemblies, nil
}

// ParseParallel maps a parallel mode to the assembly and collection settings.
func ParseParallel(mode string) (assemblies, collections *bool, err error) {
	m := flags.ParallelMode(mode)
	if !m.IsValid() {
		return nil, nil, fmt.Errorf("incorrect argument value for -parallel: %s", mode)
	}
	a, c := m.Assemblies(), m.Collections()
	return &a, &c, nil
}

// ParseMaxThreads maps a thread count setting to the request value.
func ParseMaxThreads(value string) (*int, error) {
	var n int
	switch value {
	case flags.MaxThreadsDefault:
		n = 0
	case flags.MaxThreadsUnlimited:
		n = runner.MaxThreadsUnlimited
	default:
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("incorrect argument value for -maxthreads: %s", value)
		}
		n = parsed
	}
	return &n, nil
}

// ParsePort validates a design-time port. Port 0 picks a free port.
func ParsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s is not a valid port number", value)
	}
	return port, nil
}

// ParseProcessID validates a parent process id.
func ParseProcessID(value string) (int, error) {
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid process id '%s': process id must be a positive integer", value)
	}
	return pid, nil
}
