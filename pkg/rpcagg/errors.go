package rpcagg

import "github.com/bft-labs/rpcagg/internal/domain"

// Errors returned by the runtime. Check them with errors.Is.
var (
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrInvalidWorker   = domain.ErrInvalidWorker
	ErrUnknownHandler  = domain.ErrUnknownHandler
	ErrPayloadTooLarge = domain.ErrPayloadTooLarge
	ErrClosed          = domain.ErrClosed
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
)

// RemoteError is the error of a call whose handler failed on the target process.
type RemoteError = domain.RemoteError
