// Package gotest runs compiled Go test binaries (go test -c output).
//
// Discovery lists tests with -test.list; execution runs the binary under
// go tool test2json and turns its event stream into engine events.
package gotest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// DefaultGoBinary is used to run go tool test2json.
const DefaultGoBinary = "go"

const maxEventLineBytes = 16 * 1024 * 1024

// Engine implements engine.Engine for Go test binaries.
type Engine struct {
	log      log.Logger
	goBinary string
	sources  *sourceIndex
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine that uses goBinary for test2json.
func New(logger log.Logger, goBinary string) (*Engine, error) {
	if goBinary == "" {
		goBinary = DefaultGoBinary
	}
	sources, err := newSourceIndex(sourceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create source index: %w", err)
	}
	return &Engine{
		log:      logger.New("component", "gotest"),
		goBinary: goBinary,
		sources:  sources,
	}, nil
}

func (e *Engine) Discover(ctx context.Context, asm types.Assembly, opts engine.DiscoveryOptions, includeSourceInfo bool, events chan<- engine.Event) {
	start := time.Now()
	err := e.discover(ctx, asm, opts, includeSourceInfo, events)
	events <- engine.Done(time.Since(start), err)
}

func (e *Engine) discover(ctx context.Context, asm types.Assembly, opts engine.DiscoveryOptions, includeSourceInfo bool, events chan<- engine.Event) error {
	if opts.PreEnumerateTheories {
		e.log.Debug("Go test binaries cannot pre-enumerate subtests; listing top-level tests only", "assembly", asm.Path)
	}

	traits, err := compileTraits(asm.Config.Traits)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, asm.Path, "-test.list", ".")
	cmd.Dir = e.workDir(asm)
	cmd.Env = environ(asm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Debug("Listing tests", "assembly", asm.Path, "command", cmd.String())
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("failed to list tests of %s: %w: %s", asm.Path, err, strings.TrimSpace(stderr.String()))
	}

	var locs map[string]location
	if includeSourceInfo {
		locs, err = e.sources.Lookup(packagePath(asm), asm.Config.SourceDir)
		if err != nil {
			e.log.Debug("No source information", "assembly", asm.Path, "err", err)
			if opts.DiagnosticMessages {
				events <- engine.Event{Kind: engine.EventDiagnostic, Message: fmt.Sprintf("source information unavailable: %v", err)}
			}
		}
	}

	pkg := packagePath(asm)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if !isRunnable(name) {
			continue
		}
		t := types.NewTest(asm.Path, pkg, name)
		traits.apply(t)
		if loc, ok := locs[name]; ok {
			t.CodeFilePath = loc.File
			t.LineNumber = loc.Line
		}
		events <- engine.Event{Kind: engine.EventTestFound, Test: t}
	}
	return scanner.Err()
}

func (e *Engine) Execute(ctx context.Context, asm types.Assembly, tests []*types.Test, opts engine.ExecutionOptions, events chan<- engine.Event) {
	start := time.Now()
	err := e.execute(ctx, asm, tests, opts, events)
	events <- engine.Done(time.Since(start), err)
}

func (e *Engine) execute(ctx context.Context, asm types.Assembly, tests []*types.Test, opts engine.ExecutionOptions, events chan<- engine.Event) error {
	if len(tests) == 0 {
		return nil
	}

	args := e.buildTestArgs(asm, tests, opts)
	cmd := exec.CommandContext(ctx, e.goBinary, args...)
	cmd.Dir = e.workDir(asm)
	cmd.Env = environ(asm)
	stderr := newTailBuffer(defaultStderrTailBytes)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open test output: %w", err)
	}

	e.log.Debug("Running tests",
		"assembly", asm.Path,
		"dir", cmd.Dir,
		"tests", len(tests),
		"command", cmd.String())

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.goBinary, err)
	}

	builder := newResultBuilder(tests, opts.DiagnosticMessages, func(ev engine.Event) {
		events <- ev
	})
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		event, err := parseTestEvent(line)
		if err != nil {
			if opts.DiagnosticMessages {
				events <- engine.Event{Kind: engine.EventDiagnostic, Message: string(line)}
			}
			continue
		}
		builder.handle(event)
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if builder.incomplete() {
		reason := "test binary exited before the test completed"
		if waitErr != nil {
			reason = fmt.Sprintf("%s (%v)", reason, waitErr)
		}
		builder.abort(reason, time.Now())
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			events <- engine.Event{Kind: engine.EventDiagnostic, Message: tail}
		}
	}

	if scanErr != nil {
		return fmt.Errorf("failed to read test output: %w", scanErr)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && builder.failures > 0 {
		// Failing tests make the binary exit non-zero.
		return nil
	}
	if waitErr != nil {
		return fmt.Errorf("test binary %s failed: %w", asm.Path, waitErr)
	}
	return nil
}

func (e *Engine) buildTestArgs(asm types.Assembly, tests []*types.Test, opts engine.ExecutionOptions) []string {
	names := make([]string, 0, len(tests))
	for _, t := range tests {
		names = append(names, regexp.QuoteMeta(t.Method))
	}
	sort.Strings(names)

	args := []string{
		"tool", "test2json", "-t",
		"-p", packagePath(asm),
		binaryPath(asm),
		"-test.v=test2json",
		"-test.run", "^(" + strings.Join(names, "|") + ")$",
	}
	if parallel := parallelism(opts, len(tests)); parallel > 0 {
		args = append(args, "-test.parallel", strconv.Itoa(parallel))
	}
	return args
}

// parallelism maps the execution options onto -test.parallel; 0 keeps the binary's default.
func parallelism(opts engine.ExecutionOptions, tests int) int {
	switch {
	case opts.DisableParallelization:
		return 1
	case opts.MaxParallelThreads < 0:
		return max(tests, 1)
	default:
		return opts.MaxParallelThreads
	}
}

// workDir is the package source directory when known, as go test would use,
// else the directory holding the binary.
func (e *Engine) workDir(asm types.Assembly) string {
	if asm.Config.SourceDir != "" {
		if dir, err := resolvePackageDir(packagePath(asm), asm.Config.SourceDir); err == nil {
			return dir
		}
	}
	return filepath.Dir(binaryPath(asm))
}

func binaryPath(asm types.Assembly) string {
	if abs, err := filepath.Abs(asm.Path); err == nil {
		return abs
	}
	return asm.Path
}

// packagePath is the configured import path, else the binary name without its .test suffix.
func packagePath(asm types.Assembly) string {
	if asm.Config.Package != "" {
		return asm.Config.Package
	}
	return strings.TrimSuffix(filepath.Base(asm.Path), ".test")
}

func environ(asm types.Assembly) []string {
	env := os.Environ()
	keys := make([]string, 0, len(asm.Config.Env))
	for k := range asm.Config.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+asm.Config.Env[k])
	}
	return env
}
