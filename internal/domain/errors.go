package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the aggregation layer.
// They can be checked with errors.Is.
var (
	// ErrInvalidConfig is returned when a capacity or topology setting is invalid.
	ErrInvalidConfig = errors.New("rpcagg: invalid configuration")

	// ErrInvalidWorker is returned when a target worker index is out of range.
	ErrInvalidWorker = errors.New("rpcagg: invalid worker")

	// ErrUnknownHandler is returned when a handler ID is not registered.
	ErrUnknownHandler = errors.New("rpcagg: unknown handler")

	// ErrPayloadTooLarge is returned when arguments do not fit in a call record.
	ErrPayloadTooLarge = errors.New("rpcagg: payload too large")

	// ErrClosed is returned when submitting to a manager that has been torn down.
	ErrClosed = errors.New("rpcagg: closed")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("rpcagg: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("rpcagg: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("rpcagg: shutdown timeout")
)

// RemoteError is a failure reported by the remote handler.
type RemoteError struct {
	Handler uint16
	Message string
	Unknown bool
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote handler %d: %s", e.Handler, e.Message)
}

// Is reports ErrUnknownHandler for replies from processes that lack the handler.
func (e *RemoteError) Is(target error) bool {
	return e.Unknown && target == ErrUnknownHandler
}
