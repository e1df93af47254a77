package rpcagg

import (
	"context"
	"fmt"

	"github.com/bft-labs/rpcagg/internal/handler"
	"github.com/bft-labs/rpcagg/internal/wire"
	"github.com/bft-labs/rpcagg/pkg/future"
)

// Registrar holds the handler table that calls are resolved against.
// Runtime and Cluster implement it.
type Registrar interface {
	handlers() *handler.Registry
}

// CallInfo describes the call a handler is running.
type CallInfo struct {
	// Worker is the global index of the worker the call was addressed to.
	Worker int
	// Handler is the registered name.
	Handler string
}

// Handler is a typed reference to a registered function.
type Handler[A, R any] struct {
	id   uint16
	name string
}

// Name returns the registered name.
func (h Handler[A, R]) Name() string { return h.name }

// ID returns the wire identifier of the handler.
func (h Handler[A, R]) ID() uint16 { return h.id }

// Register adds fn to the handler table of reg. Identifiers follow
// registration order, so every process must register the same handlers in
// the same order before calls are exchanged.
//
// Arguments and results are encoded with msgpack and must fit in a single
// call record.
func Register[A, R any](reg Registrar, name string, fn func(ctx context.Context, call CallInfo, args A) (R, error)) (Handler[A, R], error) {
	if fn == nil {
		return Handler[A, R]{}, fmt.Errorf("%w: handler %q has no function", ErrInvalidConfig, name)
	}
	id, err := reg.handlers().Register(name, func(ctx context.Context, worker int, payload []byte) ([]byte, error) {
		var args A
		if err := wire.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode arguments of %s: %w", name, err)
		}
		result, err := fn(ctx, CallInfo{Worker: worker, Handler: name}, args)
		if err != nil {
			return nil, err
		}
		return wire.Marshal(result)
	})
	if err != nil {
		return Handler[A, R]{}, err
	}
	return Handler[A, R]{id: id, name: name}, nil
}

// Lookup returns the handler registered under name. The type parameters are
// not checked against the registration.
func Lookup[A, R any](reg Registrar, name string) (Handler[A, R], bool) {
	id, ok := reg.handlers().Lookup(name)
	if !ok {
		return Handler[A, R]{}, false
	}
	return Handler[A, R]{id: id, name: name}, true
}

// Call runs h on global worker target with args, aggregated with the other
// calls to the same process. It returns once the call is buffered; when the
// buffer is full and not yet drained, Call drives progress until there is
// room. Only local validation errors are returned, remote outcomes arrive
// through the future.
func Call[A, R any](rt *Runtime, target int, h Handler[A, R], args A) (*future.Future[R], error) {
	payload, err := wire.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments of %s: %w", h.name, err)
	}
	f := future.New[R](func(raw []byte) (R, error) {
		var r R
		if err := wire.Unmarshal(raw, &r); err != nil {
			return r, fmt.Errorf("decode result of %s: %w", h.name, err)
		}
		return r, nil
	})
	if err := rt.submit(target, h.id, payload, f.Slot()); err != nil {
		return nil, err
	}
	return f, nil
}

// Await waits for f while driving rt's transport from the calling goroutine.
func Await[R any](ctx context.Context, rt *Runtime, f *future.Future[R]) (R, error) {
	return f.WaitProgress(ctx, rt.Progress)
}
