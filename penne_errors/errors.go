// Provides common penne error definitions.
package penne_errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("penne: component not found")
	ErrInvalidContext     = errors.New("penne: invalid invocation context")
	ErrGenerationMismatch = errors.New("penne: stale identifier generation")
	ErrValidation         = errors.New("penne: payload validation failed")
	ErrNotConnected       = errors.New("penne: client is not connected")
	ErrConnect            = errors.New("penne: handshake not completed")
	ErrTimeout            = errors.New("penne: invocation timed out")
	ErrBadMessage         = errors.New("penne: malformed server message")
)

// MethodError is a failure reported by the server for a method invocation.
// It is application-level evidence, not a transport fault, and is always
// delivered to the invoking code path.
type MethodError struct {
	InvokeID string
	Code     int64
	Message  string
	Data     any
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("penne: method call %s failed: [%d] %s", e.InvokeID, e.Code, e.Message)
}
