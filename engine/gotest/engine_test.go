package gotest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

func TestBuildTestArgs(t *testing.T) {
	e, err := New(log.NewLogger(log.DiscardHandler()), "")
	require.NoError(t, err)

	asm := types.Assembly{Path: "/bin/store.test", Config: types.AssemblyConfig{Package: "github.com/acme/store"}}
	tests := []*types.Test{
		types.NewTest(asm.Path, "github.com/acme/store", "TestPut"),
		types.NewTest(asm.Path, "github.com/acme/store", "TestGet"),
	}

	args := e.buildTestArgs(asm, tests, engine.ExecutionOptions{})
	assert.Equal(t, []string{
		"tool", "test2json", "-t",
		"-p", "github.com/acme/store",
		"/bin/store.test",
		"-test.v=test2json",
		"-test.run", "^(TestGet|TestPut)$",
	}, args)

	args = e.buildTestArgs(asm, tests, engine.ExecutionOptions{MaxParallelThreads: -1})
	assert.Equal(t, []string{"-test.parallel", "2"}, args[len(args)-2:])

	args = e.buildTestArgs(asm, tests, engine.ExecutionOptions{MaxParallelThreads: 8, DisableParallelization: true})
	assert.Equal(t, []string{"-test.parallel", "1"}, args[len(args)-2:])
}

func TestPackagePath(t *testing.T) {
	assert.Equal(t, "store", packagePath(types.Assembly{Path: "/tmp/store.test"}))
	assert.Equal(t, "github.com/acme/store", packagePath(types.Assembly{
		Path:   "/tmp/store.test",
		Config: types.AssemblyConfig{Package: "github.com/acme/store"},
	}))
}

func TestTraitRules(t *testing.T) {
	rules, err := compileTraits(map[string][]string{
		"^TestDB":  {"category=db", "speed=slow"},
		"Fast$":    {"speed=fast"},
		"TestDBIO": {"category=db"},
	})
	require.NoError(t, err)

	db := types.NewTest("a.test", "pkg", "TestDBIO")
	rules.apply(db)
	assert.Equal(t, []string{"db"}, db.Traits["category"], "duplicate traits are applied once")
	assert.Equal(t, []string{"slow"}, db.Traits["speed"])

	fast := types.NewTest("a.test", "pkg", "TestParseFast")
	rules.apply(fast)
	assert.Equal(t, map[string][]string{"speed": {"fast"}}, fast.Traits)

	_, err = compileTraits(map[string][]string{"(": {"a=b"}})
	assert.Error(t, err)
	_, err = compileTraits(map[string][]string{"Test": {"novalue"}})
	assert.Error(t, err)
}

const integrationTests = `package sample

import "testing"

func TestPasses(t *testing.T) { t.Log("hello") }

func TestFails(t *testing.T) { t.Error("expected failure") }

func TestSkips(t *testing.T) { t.Skip("not today") }
`

// buildSample compiles a small test binary with the local go toolchain.
func buildSample(t *testing.T) (types.Assembly, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test binary build in short mode")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not available")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/sample\n\ngo 1.21\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample_test.go"), []byte(integrationTests), 0644))

	binary := filepath.Join(dir, "sample.test")
	cmd := exec.Command(goBin, "test", "-c", "-o", binary, ".")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "go test -c: %s", out)

	return types.Assembly{
		Path: binary,
		Config: types.AssemblyConfig{
			Package:   "example.com/sample",
			SourceDir: dir,
			Traits:    map[string][]string{"Fails": {"kind=broken"}},
		},
	}, goBin
}

func drain(events <-chan engine.Event) []engine.Event {
	var out []engine.Event
	for ev := range events {
		out = append(out, ev)
		if ev.Kind == engine.EventDone {
			return out
		}
	}
	return out
}

func TestDiscoverAndExecute(t *testing.T) {
	asm, goBin := buildSample(t)
	e, err := New(log.NewLogger(log.DiscardHandler()), goBin)
	require.NoError(t, err)
	ctx := context.Background()

	events := make(chan engine.Event, 16)
	go e.Discover(ctx, asm, engine.DiscoveryOptions{}, true, events)
	discovered := drain(events)

	var tests []*types.Test
	for _, ev := range discovered {
		if ev.Kind == engine.EventTestFound {
			tests = append(tests, ev.Test)
		}
	}
	last := discovered[len(discovered)-1]
	require.Equal(t, engine.EventDone, last.Kind)
	require.NoError(t, last.Err)
	require.Len(t, tests, 3)
	assert.Equal(t, "example.com/sample.TestPasses", tests[0].FullyQualifiedName)
	assert.Equal(t, 5, tests[0].LineNumber)
	assert.Equal(t, []string{"broken"}, tests[1].Traits["kind"])

	events = make(chan engine.Event, 16)
	go e.Execute(ctx, asm, tests, engine.ExecutionOptions{}, events)
	executed := drain(events)

	outcomes := make(map[string]types.TestOutcome)
	for _, ev := range executed {
		if ev.Kind == engine.EventTestFinished {
			outcomes[ev.Result.Test.Method] = ev.Result.Outcome
		}
	}
	last = executed[len(executed)-1]
	require.Equal(t, engine.EventDone, last.Kind)
	require.NoError(t, last.Err, "failing tests are not an engine error")
	assert.Equal(t, map[string]types.TestOutcome{
		"TestPasses": types.TestOutcomePassed,
		"TestFails":  types.TestOutcomeFailed,
		"TestSkips":  types.TestOutcomeSkipped,
	}, outcomes)
}

func TestDiscoverMissingBinary(t *testing.T) {
	e, err := New(log.NewLogger(log.DiscardHandler()), "")
	require.NoError(t, err)

	events := make(chan engine.Event, 4)
	go e.Discover(context.Background(), types.Assembly{Path: filepath.Join(t.TempDir(), "missing.test")}, engine.DiscoveryOptions{}, false, events)
	got := drain(events)
	require.Len(t, got, 1)
	assert.Error(t, got[0].Err)
}
