package testhost

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testhost/exitcodes"
	"github.com/ethereum-optimism/infra/op-testhost/flags"
)

// UsageError reports invalid arguments. Nothing is run and the host exits with 1.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

// Unwrap implements the errors.Unwrap interface
func (e *UsageError) Unwrap() error {
	return e.Err
}

// NewUsageError creates a new UsageError
func NewUsageError(err error) *UsageError {
	return &UsageError{Err: err}
}

// IsUsageError checks if the error is or wraps a UsageError, or a flag value
// rejected by the command line parser.
func IsUsageError(err error) bool {
	var usageErr *UsageError
	var valueErr *flags.ValueError
	return err != nil && (errors.As(err, &usageErr) || errors.As(err, &valueErr))
}

// HostError reports a problem with the host's own infrastructure, such as a
// malformed parent process id or a port that cannot be bound.
type HostError struct {
	Err error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *HostError) Unwrap() error {
	return e.Err
}

// NewHostError creates a new HostError
func NewHostError(err error) *HostError {
	return &HostError{Err: err}
}

// IsHostError checks if the error is or wraps a HostError
func IsHostError(err error) bool {
	var hostErr *HostError
	return err != nil && errors.As(err, &hostErr)
}

// FailureError carries the failure count of a completed run.
type FailureError struct {
	Failures int
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("test failure: %d failed", e.Failures)
}

// NewFailureError creates a new FailureError
func NewFailureError(failures int) *FailureError {
	return &FailureError{Failures: failures}
}

// FailureCount returns the failure count carried by err, if any.
func FailureCount(err error) (int, bool) {
	var failureErr *FailureError
	if err != nil && errors.As(err, &failureErr) {
		return failureErr.Failures, true
	}
	return 0, false
}

// ExitCode maps the outcome of the host to its process exit code. The exact
// failure count is kept in FailureError; the code saturates at 255.
func ExitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	if failures, ok := FailureCount(err); ok {
		return min(failures, exitcodes.MaxFailures)
	}
	switch {
	case IsUsageError(err):
		return exitcodes.UsageErr
	case IsHostError(err):
		return exitcodes.HostErr
	default:
		return exitcodes.UnexpectedErr
	}
}
