package designtime

import (
	"errors"
	"fmt"
)

// ProtocolError is a message the host cannot act on: an unknown type or a
// malformed payload. The client is told with an Error message before the
// connection ends.
type ProtocolError struct {
	MessageType string
	Err         error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unexpected message type: '%s'", e.MessageType)
	}
	return fmt.Sprintf("invalid %s message: %v", e.MessageType, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError checks if the error is or wraps a ProtocolError
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return err != nil && errors.As(err, &protoErr)
}
