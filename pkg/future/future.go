package future

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrNotReady is returned by Get while the call is still in flight.
var ErrNotReady = errors.New("future: not ready")

// Decoder turns a raw reply payload into a typed value.
type Decoder[T any] func([]byte) (T, error)

// Future is the caller's handle to the result of a remote call.
type Future[T any] struct {
	slot   *Slot
	decode Decoder[T]

	once  sync.Once
	value T
	err   error
}

// New creates a pending future whose payload is decoded with decode.
func New[T any](decode Decoder[T]) *Future[T] {
	return &Future[T]{slot: NewSlot(), decode: decode}
}

// Slot returns the completion slot carried by the call record.
func (f *Future[T]) Slot() *Slot {
	return f.slot
}

// Ready returns true once the result has arrived.
func (f *Future[T]) Ready() bool {
	return f.slot.Ready()
}

// Done returns a channel closed when the result arrives.
func (f *Future[T]) Done() <-chan struct{} {
	return f.slot.Done()
}

// Get returns the result without blocking, or ErrNotReady.
func (f *Future[T]) Get() (T, error) {
	if !f.slot.Ready() {
		var zero T
		return zero, ErrNotReady
	}
	f.once.Do(f.resolve)
	return f.value, f.err
}

func (f *Future[T]) resolve() {
	raw, err := f.slot.Result()
	if err != nil {
		f.err = err
		return
	}
	if f.decode == nil {
		return
	}
	f.value, f.err = f.decode(raw)
}

// Wait blocks until the result arrives or ctx is done.
// Use it only when another goroutine is driving the transport.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.slot.Done():
		return f.Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitProgress polls for the result, calling progress between checks so the
// waiting goroutine keeps driving the transport itself. It yields after each
// step so timer-driven flush loops still run when the scheduler has one P.
func (f *Future[T]) WaitProgress(ctx context.Context, progress func()) (T, error) {
	for !f.slot.Ready() {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		progress()
		runtime.Gosched()
	}
	return f.Get()
}
