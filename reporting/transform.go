package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// Report is the input of result file transforms.
type Report struct {
	RunID      string
	Timestamp  time.Time
	Elapsed    time.Duration
	Assemblies []*AssemblyNode
	Total      types.ExecutionSummary
}

// Transform writes a report in one result file format.
type Transform struct {
	Description string
	Write       func(w io.Writer, report *Report) error
}

// Transforms maps switch names to result file formats.
var Transforms = map[string]Transform{
	"xml": {
		Description: "output results to XML file",
		Write:       writeXML,
	},
	"html": {
		Description: "output results to HTML file",
		Write:       writeHTML,
	},
}

// TransformNames returns the names of the available transforms, sorted.
func TransformNames() []string {
	names := make([]string, 0, len(Transforms))
	for name := range Transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TransformTarget pairs a transform with the file it writes.
type TransformTarget struct {
	Name string
	Path string
}

// WriteTransforms writes report to every target.
func WriteTransforms(report *Report, targets []TransformTarget) error {
	for _, target := range targets {
		transform, ok := Transforms[target.Name]
		if !ok {
			return fmt.Errorf("unknown result format %q", target.Name)
		}
		if err := writeFile(target.Path, report, transform); err != nil {
			return fmt.Errorf("failed to write %s results to %s: %w", target.Name, target.Path, err)
		}
	}
	return nil
}

func writeFile(path string, report *Report, transform Transform) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return transform.Write(f, report)
}
