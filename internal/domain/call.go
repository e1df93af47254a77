package domain

// Completer receives the outcome of a remote call exactly once.
// Complete returns false when the slot was already written.
type Completer interface {
	Complete(result []byte, err error) bool
}

// CallRecord is a single remote call placed into an aggregation buffer.
// It is not mutated after it has been pushed.
type CallRecord struct {
	// ID correlates the reply with the caller. Unique per source process.
	ID uint64

	// Worker is the local worker index at the destination process.
	Worker uint8

	// Handler identifies the registered function to run remotely.
	Handler uint16

	// Payload is the serialized argument list.
	Payload []byte

	// Reply is the completion slot of the caller's handle. Never serialized.
	Reply Completer
}

// ReplyStatus describes how a remote call ended.
type ReplyStatus uint8

const (
	ReplyOK ReplyStatus = iota
	ReplyError
	ReplyUnknownHandler
)

// String returns a human-readable representation of the status.
func (s ReplyStatus) String() string {
	switch s {
	case ReplyOK:
		return "ok"
	case ReplyError:
		return "error"
	case ReplyUnknownHandler:
		return "unknown-handler"
	default:
		return "unknown"
	}
}

// Reply is the outcome of one call record.
type Reply struct {
	ID      uint64
	Status  ReplyStatus
	Payload []byte
}

// Err converts a non-OK reply into an error for the given handler.
func (r Reply) Err(handler uint16) error {
	switch r.Status {
	case ReplyOK:
		return nil
	case ReplyUnknownHandler:
		return &RemoteError{Handler: handler, Message: ErrUnknownHandler.Error(), Unknown: true}
	default:
		return &RemoteError{Handler: handler, Message: string(r.Payload)}
	}
}
