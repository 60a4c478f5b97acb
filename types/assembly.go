package types

// Assembly is a compiled test binary and its configuration.
type Assembly struct {
	Path       string
	ConfigPath string
	Config     AssemblyConfig
}

// Key returns the key the assembly's summary is recorded under.
func (a Assembly) Key() string {
	return AssemblyKey(a.Path)
}

// AssemblyConfig holds the per-assembly settings read from
// <binary>.testhost.yaml or from a project file.
type AssemblyConfig struct {
	// ParallelizeAssembly allows this assembly to run alongside others.
	ParallelizeAssembly *bool `yaml:"parallelize_assembly,omitempty" toml:"parallelize_assembly,omitempty" json:"parallelize_assembly,omitempty"`

	// ParallelizeTestCollections allows tests within the assembly to run in parallel.
	ParallelizeTestCollections *bool `yaml:"parallelize_test_collections,omitempty" toml:"parallelize_test_collections,omitempty" json:"parallelize_test_collections,omitempty"`

	// MaxParallelThreads caps in-assembly parallelism; 0 leaves the engine default, -1 is unlimited.
	MaxParallelThreads *int `yaml:"max_parallel_threads,omitempty" toml:"max_parallel_threads,omitempty" json:"max_parallel_threads,omitempty"`

	DiagnosticMessages *bool `yaml:"diagnostic_messages,omitempty" toml:"diagnostic_messages,omitempty" json:"diagnostic_messages,omitempty"`

	PreEnumerateTheories *bool `yaml:"pre_enumerate_theories,omitempty" toml:"pre_enumerate_theories,omitempty" json:"pre_enumerate_theories,omitempty"`

	// Package is the import path the binary was built from.
	Package string `yaml:"package,omitempty" toml:"package,omitempty" json:"package,omitempty"`

	// SourceDir locates the package sources for code file and line information.
	SourceDir string `yaml:"source_dir,omitempty" toml:"source_dir,omitempty" json:"source_dir,omitempty"`

	// Traits maps a test name pattern to "name=value" traits.
	Traits map[string][]string `yaml:"traits,omitempty" toml:"traits,omitempty" json:"traits,omitempty"`
	Env    map[string]string   `yaml:"env,omitempty" toml:"env,omitempty" json:"env,omitempty"`
}

// BoolOr returns *b, or def when b is unset.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// IntOr returns *i, or def when i is unset.
func IntOr(i *int, def int) int {
	if i == nil {
		return def
	}
	return *i
}
