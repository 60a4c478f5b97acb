package channel

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Receive once the peer has disconnected cleanly or
// the channel was closed locally.
var ErrClosed = errors.New("channel closed")

// BindError is returned when the listening socket cannot be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// IOError is returned when reading from or writing to the peer fails.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("channel %s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// DecodeError is returned for a line that is not a valid message envelope.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed message %q: %v", truncate(e.Line, 120), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsBindError checks if the error is or wraps a BindError
func IsBindError(err error) bool {
	var bindErr *BindError
	return err != nil && errors.As(err, &bindErr)
}

// IsIOError checks if the error is or wraps an IOError
func IsIOError(err error) bool {
	var ioErr *IOError
	return err != nil && errors.As(err, &ioErr)
}

// IsDecodeError checks if the error is or wraps a DecodeError
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return err != nil && errors.As(err, &decodeErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
