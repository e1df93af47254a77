package rpcagg

import "github.com/bft-labs/rpcagg/pkg/lifecycle"

// State is the lifecycle state of a Runtime.
type State = lifecycle.State

const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// DispatchEvent is emitted after a batch was handed to the transport.
type DispatchEvent struct {
	// Dest is the destination process.
	Dest    int
	Records int
	// Full is true for batches drained because they filled up, false for
	// partial batches drained by a flush.
	Full bool
}

// DispatchErrorEvent is emitted when the transport rejected a batch. Every
// call in the batch has already been completed with Error.
type DispatchErrorEvent struct {
	Error   error
	Dest    int
	Records int
}

// EventHandler receives runtime events. Calls are synchronous and happen on
// the goroutine that dispatched the batch, so implementations must return
// quickly. Dispatch callbacks run while the destination is locked for
// draining and must not call Flush or FlushAll.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnDispatch(DispatchEvent)
	OnDispatchError(DispatchErrorEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)     {}
func (BaseEventHandler) OnDispatch(DispatchEvent)           {}
func (BaseEventHandler) OnDispatchError(DispatchErrorEvent) {}

// eventEmitter adapts EventHandler to the internal emitter interfaces.
type eventEmitter struct {
	handler EventHandler
}

func (e *eventEmitter) OnStateChange(previous, current lifecycle.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{Previous: previous, Current: current, Reason: reason})
}

func (e *eventEmitter) OnDispatch(dest, records int, full bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnDispatch(DispatchEvent{Dest: dest, Records: records, Full: full})
}

func (e *eventEmitter) OnDispatchError(err error, dest, records int) {
	if e.handler == nil {
		return
	}
	e.handler.OnDispatchError(DispatchErrorEvent{Error: err, Dest: dest, Records: records})
}
