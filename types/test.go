package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TestOutcome represents the possible outcomes of a test execution
type TestOutcome string

const (
	TestOutcomePassed  TestOutcome = "passed"
	TestOutcomeFailed  TestOutcome = "failed"
	TestOutcomeSkipped TestOutcome = "skipped"
)

// ErrResultFinalized is returned when a finalized result is mutated.
var ErrResultFinalized = errors.New("test result already finalized")

// Test identifies a single discoverable test. It is immutable once discovered.
type Test struct {
	// ID is the engine-native identity, stable across discovery and execution.
	ID                 string
	DisplayName        string
	FullyQualifiedName string
	Assembly           string
	Namespace          string
	Class              string
	Method             string
	Traits             map[string][]string
	CodeFilePath       string
	LineNumber         int
}

// NewTest builds a Test for the named test function of a package inside an assembly.
// The class is the test name up to the first underscore, so TestFoo_Bar and
// TestFoo_Baz are grouped under TestFoo.
func NewTest(assembly, pkg, name string) *Test {
	class := name
	if i := strings.IndexByte(name, '_'); i > 0 {
		class = name[:i]
	}
	fqn := name
	if pkg != "" {
		fqn = pkg + "." + name
		class = pkg + "." + class
	}
	return &Test{
		ID:                 AssemblyKey(assembly) + "::" + name,
		DisplayName:        name,
		FullyQualifiedName: fqn,
		Assembly:           assembly,
		Namespace:          pkg,
		Class:              class,
		Method:             name,
		Traits:             make(map[string][]string),
	}
}

// HasTrait reports whether the test carries the trait name=value.
// Names compare case-insensitively, values exactly.
func (t *Test) HasTrait(name, value string) bool {
	for k, values := range t.Traits {
		if !strings.EqualFold(k, name) {
			continue
		}
		for _, v := range values {
			if v == value {
				return true
			}
		}
	}
	return false
}

func (t *Test) String() string {
	return t.FullyQualifiedName
}

// AssemblyKey returns the key an assembly's summary is recorded under.
func AssemblyKey(path string) string {
	return filepath.Base(path)
}

// TestResult captures the outcome of a single test run. It is created once per
// executed test; only messages may be appended, and only before Finalize.
type TestResult struct {
	Test            *Test
	Outcome         TestOutcome
	ErrorMessage    string
	ErrorStackTrace string
	Duration        time.Duration
	StartTime       time.Time
	EndTime         time.Time
	Messages        []string

	finalized bool
}

// AppendMessage adds a diagnostic message to the result.
func (r *TestResult) AppendMessage(msg string) error {
	if r.finalized {
		return fmt.Errorf("append to %s: %w", r.Test, ErrResultFinalized)
	}
	r.Messages = append(r.Messages, msg)
	return nil
}

// Finalize freezes the result. Calling it more than once is harmless.
func (r *TestResult) Finalize() {
	r.finalized = true
}

// Finalized reports whether Finalize has been called.
func (r *TestResult) Finalized() bool {
	return r.finalized
}
