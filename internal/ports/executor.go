package ports

import "context"

// Executor runs one received call on the local process.
type Executor interface {
	// Execute runs handler for the local worker with the serialized arguments
	// and returns the serialized result. Unknown handlers return
	// domain.ErrUnknownHandler.
	Execute(ctx context.Context, handler uint16, worker int, payload []byte) ([]byte, error)
}

// ExecutorBinder is implemented by transports that run incoming calls. The
// runtime binds its executor before the first dispatch.
type ExecutorBinder interface {
	BindExecutor(exec Executor)
}
