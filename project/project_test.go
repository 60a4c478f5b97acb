package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testhost/filter"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIsProjectFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"tests.yaml", true},
		{"tests.YML", true},
		{"tests.toml", true},
		{"pkg.test", false},
		{"pkg.test.testhost.yaml", false},
		{"bin/pkg", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsProjectFile(tt.path), tt.path)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bin/alpha.test.testhost.yaml", `
parallelize_assembly: true
max_parallel_threads: 2
package: example.com/alpha
traits:
  TestSlow*: ["Category=slow"]
`)
	writeFile(t, dir, "conf/beta.yaml", `
diagnostic_messages: true
env:
  FOO: bar
`)
	path := writeFile(t, dir, "tests.yaml", `
assemblies:
  - path: bin/alpha.test
    max_parallel_threads: 4
  - path: bin/beta.test
    config: conf/beta.yaml
    env:
      BAZ: qux
filters:
  traits: ["Category=fast"]
  namespaces: ["example.com/alpha"]
`)

	p, err := Load(path)
	require.NoError(t, err)
	require.Len(t, p.Assemblies, 2)

	alpha := p.Assemblies[0]
	assert.Equal(t, filepath.Join(dir, "bin", "alpha.test"), alpha.Path)
	assert.Equal(t, alpha.Path+AssemblyConfigSuffix, alpha.ConfigPath)
	assert.True(t, types.BoolOr(alpha.Config.ParallelizeAssembly, false))
	assert.Equal(t, 4, types.IntOr(alpha.Config.MaxParallelThreads, 0), "inline settings override the config file")
	assert.Equal(t, "example.com/alpha", alpha.Config.Package)
	assert.Equal(t, map[string][]string{"TestSlow*": {"Category=slow"}}, alpha.Config.Traits)

	beta := p.Assemblies[1]
	assert.Equal(t, filepath.Join(dir, "conf", "beta.yaml"), beta.ConfigPath)
	assert.True(t, types.BoolOr(beta.Config.DiagnosticMessages, false))
	assert.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, beta.Config.Env)

	assert.Equal(t, []string{"Category=fast"}, p.Filters.Traits)
	assert.Equal(t, []string{"example.com/alpha"}, p.Filters.Namespaces)
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tests.toml", `
[[assemblies]]
path = "/abs/pkg.test"
parallelize_test_collections = false
max_parallel_threads = -1

[assemblies.traits]
"TestDB*" = ["Category=db"]

[filters]
notraits = ["Category=db"]
methods = ["Test*Fast"]
`)

	p, err := Load(path)
	require.NoError(t, err)
	require.Len(t, p.Assemblies, 1)

	asm := p.Assemblies[0]
	assert.Equal(t, "/abs/pkg.test", asm.Path)
	assert.Empty(t, asm.ConfigPath)
	require.NotNil(t, asm.Config.ParallelizeTestCollections)
	assert.False(t, *asm.Config.ParallelizeTestCollections)
	assert.Equal(t, -1, types.IntOr(asm.Config.MaxParallelThreads, 0))
	assert.Equal(t, map[string][]string{"TestDB*": {"Category=db"}}, asm.Config.Traits)
	assert.Equal(t, []string{"Category=db"}, p.Filters.NoTraits)
	assert.Equal(t, []string{"Test*Fast"}, p.Filters.Methods)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "empty",
			file:    "tests.yaml",
			content: "",
			wantErr: "project validation failed",
		},
		{
			name:    "no assemblies",
			file:    "tests.yaml",
			content: "assemblies: []\n",
			wantErr: "project validation failed",
		},
		{
			name:    "missing path",
			file:    "tests.yaml",
			content: "assemblies:\n  - parallelize_assembly: true\n",
			wantErr: "project validation failed",
		},
		{
			name:    "unknown assembly setting",
			file:    "tests.yaml",
			content: "assemblies:\n  - path: a.test\n    parallel: yes\n",
			wantErr: "project validation failed",
		},
		{
			name:    "bad thread count",
			file:    "tests.yaml",
			content: "assemblies:\n  - path: a.test\n    max_parallel_threads: -2\n",
			wantErr: "project validation failed",
		},
		{
			name:    "malformed trait",
			file:    "tests.toml",
			content: "[[assemblies]]\npath = \"a.test\"\n[filters]\ntraits = [\"nope\"]\n",
			wantErr: "project validation failed",
		},
		{
			name:    "malformed toml",
			file:    "tests.toml",
			content: "[[assemblies]\n",
			wantErr: "parsing project file",
		},
		{
			name:    "missing config file",
			file:    "tests.yaml",
			content: "assemblies:\n  - path: a.test\n    config: missing.yaml\n",
			wantErr: "reading assembly config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading project file")
}

func TestLoadAssembly(t *testing.T) {
	dir := t.TempDir()

	t.Run("no config", func(t *testing.T) {
		asm, err := LoadAssembly(filepath.Join(dir, "plain.test"), "")
		require.NoError(t, err)
		assert.Empty(t, asm.ConfigPath)
		assert.Equal(t, types.AssemblyConfig{}, asm.Config)
	})

	t.Run("sidecar", func(t *testing.T) {
		binary := filepath.Join(dir, "pkg.test")
		writeFile(t, dir, "pkg.test"+AssemblyConfigSuffix, "pre_enumerate_theories: true\n")
		asm, err := LoadAssembly(binary, "")
		require.NoError(t, err)
		assert.Equal(t, binary+AssemblyConfigSuffix, asm.ConfigPath)
		assert.True(t, types.BoolOr(asm.Config.PreEnumerateTheories, false))
	})

	t.Run("empty sidecar", func(t *testing.T) {
		binary := filepath.Join(dir, "empty.test")
		writeFile(t, dir, "empty.test"+AssemblyConfigSuffix, "\n")
		asm, err := LoadAssembly(binary, "")
		require.NoError(t, err)
		assert.Equal(t, types.AssemblyConfig{}, asm.Config)
	})

	t.Run("invalid sidecar", func(t *testing.T) {
		binary := filepath.Join(dir, "bad.test")
		writeFile(t, dir, "bad.test"+AssemblyConfigSuffix, "max_parallel_threads: lots\n")
		_, err := LoadAssembly(binary, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "assembly config validation failed")
	})
}

func TestMerge(t *testing.T) {
	yes, no := true, false
	two := 2
	base := types.AssemblyConfig{
		ParallelizeAssembly: &yes,
		Package:             "example.com/pkg",
		Traits:              map[string][]string{"A": {"k=v"}},
	}
	overlay := types.AssemblyConfig{
		ParallelizeAssembly: &no,
		MaxParallelThreads:  &two,
		Traits:              map[string][]string{"B": {"k=w"}},
	}

	got := Merge(base, overlay)
	assert.False(t, *got.ParallelizeAssembly)
	assert.Equal(t, 2, *got.MaxParallelThreads)
	assert.Equal(t, "example.com/pkg", got.Package)
	assert.Equal(t, map[string][]string{"A": {"k=v"}, "B": {"k=w"}}, got.Traits)
	assert.Len(t, base.Traits, 1, "base is not modified")

	assert.Equal(t, base, Merge(base, types.AssemblyConfig{}))
}

func TestFilterSpec_Apply(t *testing.T) {
	spec := FilterSpec{
		Traits:     []string{"Category=fast"},
		NoTraits:   []string{"Category=flaky"},
		Methods:    []string{"TestOne"},
		Classes:    []string{"example.com/pkg.TestOne"},
		Namespaces: []string{"example.com/pkg/"},
	}
	f := filter.New()
	require.NoError(t, spec.Apply(f))
	assert.Equal(t, map[string][]string{"Category": {"fast"}}, f.IncludedTraits)
	assert.Equal(t, map[string][]string{"Category": {"flaky"}}, f.ExcludedTraits)
	assert.Equal(t, []string{"TestOne"}, f.IncludedMethods)
	assert.Equal(t, []string{"example.com/pkg.TestOne"}, f.IncludedClasses)
	assert.Equal(t, []string{"example.com/pkg"}, f.IncludedNamespaces)

	require.Error(t, FilterSpec{Traits: []string{"broken"}}.Apply(filter.New()))
}
