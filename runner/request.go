package runner

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-testhost/filter"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// MaxThreadsUnlimited lets the engine run every test of an assembly at once.
const MaxThreadsUnlimited = -1

// RunRequest describes one run. It must not be modified while the run is in progress.
type RunRequest struct {
	// ParallelizeAssemblies overrides the assemblies' own configuration when set.
	ParallelizeAssemblies *bool
	// ParallelizeTestCollections overrides in-assembly parallelism when set.
	ParallelizeTestCollections *bool
	// MaxParallelThreads overrides the in-assembly thread cap when set;
	// 0 is the engine default and MaxThreadsUnlimited removes the cap.
	MaxParallelThreads *int
	DiagnosticMessages bool

	Filters    *filter.Filters
	Assemblies []types.Assembly

	// DesignTime runs on behalf of a design-time client.
	DesignTime bool
	// List only lists the filtered tests.
	List bool
	// DesignTimeFullyQualifiedNames restricts a design-time run to these tests.
	// Empty applies Filters instead.
	DesignTimeFullyQualifiedNames []string
}

// Validate checks the request can be run.
func (r *RunRequest) Validate() error {
	if len(r.Assemblies) == 0 {
		return fmt.Errorf("no assemblies to run")
	}
	seen := make(map[string]string, len(r.Assemblies))
	for _, asm := range r.Assemblies {
		if asm.Path == "" {
			return fmt.Errorf("assembly with empty path")
		}
		if prev, ok := seen[asm.Key()]; ok {
			return fmt.Errorf("assemblies %s and %s share the key %q", prev, asm.Path, asm.Key())
		}
		seen[asm.Key()] = asm.Path
	}
	if r.MaxParallelThreads != nil && *r.MaxParallelThreads < MaxThreadsUnlimited {
		return fmt.Errorf("invalid max parallel threads %d", *r.MaxParallelThreads)
	}
	return nil
}

// parallelizeAssemblies is the explicit setting, else true only when every
// assembly allows it.
func (r *RunRequest) parallelizeAssemblies() bool {
	if r.ParallelizeAssemblies != nil {
		return *r.ParallelizeAssemblies
	}
	for _, asm := range r.Assemblies {
		if !types.BoolOr(asm.Config.ParallelizeAssembly, false) {
			return false
		}
	}
	return len(r.Assemblies) > 0
}

// includeSourceInfo is only needed when listing for a design-time client.
func (r *RunRequest) includeSourceInfo() bool {
	return r.DesignTime && r.List
}
