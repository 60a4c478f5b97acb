package runner

import (
	"errors"
	"fmt"
	"strings"
)

// DuplicateKeyError is returned when a summary is recorded twice for one
// assembly. It indicates a bug, not a run-time condition.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("summary for assembly %q already recorded", e.Key)
}

// IsDuplicateKeyError checks if the error is or wraps a DuplicateKeyError
func IsDuplicateKeyError(err error) bool {
	var dupErr *DuplicateKeyError
	return err != nil && errors.As(err, &dupErr)
}

// AssemblyFaultedError wraps an unrecovered failure while processing one assembly.
type AssemblyFaultedError struct {
	Assembly string
	State    AssemblyState
	Err      error
}

func (e *AssemblyFaultedError) Error() string {
	return fmt.Sprintf("assembly %s faulted while %s: %v", e.Assembly, e.State, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *AssemblyFaultedError) Unwrap() error {
	return e.Err
}

// IsAssemblyFaultedError checks if the error is or wraps an AssemblyFaultedError
func IsAssemblyFaultedError(err error) bool {
	var faultErr *AssemblyFaultedError
	return err != nil && errors.As(err, &faultErr)
}

// ErrorChain renders err and every error it wraps, outermost first. Named
// error types print as "<type>: <message>"; the unnamed wrappers of the fmt
// and errors packages print their message only.
func ErrorChain(err error) []string {
	var lines []string
	for err != nil {
		typeName := fmt.Sprintf("%T", err)
		if strings.HasPrefix(typeName, "*fmt.") || strings.HasPrefix(typeName, "*errors.") {
			lines = append(lines, err.Error())
		} else {
			lines = append(lines, typeName+": "+err.Error())
		}
		err = errors.Unwrap(err)
	}
	return lines
}
