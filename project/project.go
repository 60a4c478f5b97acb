// Package project loads project files, which list the assemblies of a run
// together with their configuration and filters, and the per-assembly
// configuration files found next to test binaries.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-testhost/filter"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// AssemblyConfigSuffix is appended to a test binary's path to locate its configuration.
const AssemblyConfigSuffix = ".testhost.yaml"

// Entry is one assembly of a project file. Settings given inline override
// those of the assembly's configuration file.
type Entry struct {
	Path                 string `yaml:"path" toml:"path"`
	Config               string `yaml:"config,omitempty" toml:"config,omitempty"`
	types.AssemblyConfig `yaml:",inline"`
}

// FilterSpec lists the filters a project applies to every assembly.
type FilterSpec struct {
	Traits     []string `yaml:"traits,omitempty" toml:"traits,omitempty"`
	NoTraits   []string `yaml:"notraits,omitempty" toml:"notraits,omitempty"`
	Methods    []string `yaml:"methods,omitempty" toml:"methods,omitempty"`
	Classes    []string `yaml:"classes,omitempty" toml:"classes,omitempty"`
	Namespaces []string `yaml:"namespaces,omitempty" toml:"namespaces,omitempty"`
}

// Apply adds the project's filters to f.
func (s FilterSpec) Apply(f *filter.Filters) error {
	for _, t := range s.Traits {
		if err := f.AddTrait(t); err != nil {
			return err
		}
	}
	for _, t := range s.NoTraits {
		if err := f.AddNoTrait(t); err != nil {
			return err
		}
	}
	for _, m := range s.Methods {
		if err := f.AddMethod(m); err != nil {
			return err
		}
	}
	for _, c := range s.Classes {
		f.AddClass(c)
	}
	for _, n := range s.Namespaces {
		f.AddNamespace(n)
	}
	return nil
}

type file struct {
	Assemblies []Entry     `yaml:"assemblies" toml:"assemblies"`
	Filters    *FilterSpec `yaml:"filters,omitempty" toml:"filters,omitempty"`
}

// Project is a loaded project file with its assemblies resolved.
type Project struct {
	Path       string
	Assemblies []types.Assembly
	Filters    FilterSpec
}

// IsProjectFile reports whether path names a project file rather than a test binary.
func IsProjectFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml":
		return !strings.HasSuffix(path, AssemblyConfigSuffix)
	default:
		return false
	}
}

// Load reads, validates and resolves a YAML or TOML project file. Relative
// paths inside the file are relative to the file's directory.
func Load(path string) (*Project, error) {
	log.Debug("Reading project file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}

	var f file
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = decodeTOML(data, &f)
	} else {
		err = decodeYAML(data, &f, ValidateProject)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing project file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	p := &Project{Path: path}
	if f.Filters != nil {
		p.Filters = *f.Filters
	}
	for _, e := range f.Assemblies {
		asm, err := resolve(dir, e)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", path, err)
		}
		p.Assemblies = append(p.Assemblies, asm)
	}
	return p, nil
}

func decodeYAML(data []byte, out any, validate func(any) error) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := validate(doc); err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	return dec.Decode(out)
}

func decodeTOML(data []byte, out any) error {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := ValidateProject(doc); err != nil {
		return err
	}
	md, err := toml.Decode(string(data), out)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys %v", undecoded)
	}
	return nil
}

func resolve(dir string, e Entry) (types.Assembly, error) {
	asm := types.Assembly{Path: absolute(dir, e.Path)}
	configPath := ""
	if e.Config != "" {
		configPath = absolute(dir, e.Config)
	}

	base, err := LoadAssembly(asm.Path, configPath)
	if err != nil {
		return asm, err
	}
	base.Config = Merge(base.Config, e.AssemblyConfig)
	return base, nil
}

func absolute(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// LoadAssembly describes the test binary at path. Its configuration is read
// from configPath, or from the file beside the binary when configPath is
// empty and that file exists.
func LoadAssembly(path, configPath string) (types.Assembly, error) {
	asm := types.Assembly{Path: path}
	if configPath == "" {
		sidecar := path + AssemblyConfigSuffix
		if _, err := os.Stat(sidecar); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return asm, nil
			}
			return asm, fmt.Errorf("checking assembly config: %w", err)
		}
		configPath = sidecar
	}

	cfg, err := LoadAssemblyConfig(configPath)
	if err != nil {
		return asm, err
	}
	asm.ConfigPath = configPath
	asm.Config = cfg
	return asm, nil
}

// LoadAssemblyConfig reads and validates a YAML assembly configuration file.
func LoadAssemblyConfig(path string) (types.AssemblyConfig, error) {
	var cfg types.AssemblyConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading assembly config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := decodeYAML(data, &cfg, ValidateAssemblyConfig); err != nil {
		return cfg, fmt.Errorf("parsing assembly config %s: %w", path, err)
	}
	return cfg, nil
}

// Merge returns base with every setting present in overlay replaced.
// Traits and environment variables are merged key by key.
func Merge(base, overlay types.AssemblyConfig) types.AssemblyConfig {
	out := base
	if overlay.ParallelizeAssembly != nil {
		out.ParallelizeAssembly = overlay.ParallelizeAssembly
	}
	if overlay.ParallelizeTestCollections != nil {
		out.ParallelizeTestCollections = overlay.ParallelizeTestCollections
	}
	if overlay.MaxParallelThreads != nil {
		out.MaxParallelThreads = overlay.MaxParallelThreads
	}
	if overlay.DiagnosticMessages != nil {
		out.DiagnosticMessages = overlay.DiagnosticMessages
	}
	if overlay.PreEnumerateTheories != nil {
		out.PreEnumerateTheories = overlay.PreEnumerateTheories
	}
	if overlay.Package != "" {
		out.Package = overlay.Package
	}
	if overlay.SourceDir != "" {
		out.SourceDir = overlay.SourceDir
	}
	out.Traits = mergeMap(base.Traits, overlay.Traits)
	out.Env = mergeMap(base.Env, overlay.Env)
	return out
}

func mergeMap[V any](base, overlay map[string]V) map[string]V {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]V, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
