// Package exitcodes defines the standard exit codes used by op-testhost.
package exitcodes

// Exit code constants used by op-testhost.
//
// A completed run exits with its failure count: the number of failed tests,
// or 1 when an assembly faulted. The remaining codes report runs that never
// completed:
//
// * UsageErr (1): invalid arguments, nothing was run
// * HostErr (-1): host infrastructure failure (bad parent process id, bad port, bind failure)
// * UnexpectedErr (-2): any other host failure
//
// Negative codes are reported by the operating system modulo 256. Failure
// counts above MaxFailures are reported as MaxFailures so that a failed run
// never exits 0.
const (
	Success       = 0
	UsageErr      = 1
	HostErr       = -1
	UnexpectedErr = -2

	MaxFailures = 255
)
