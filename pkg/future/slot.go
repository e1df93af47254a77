package future

import (
	"sync"
	"sync/atomic"
)

// Slot is a write-once completion cell shared by a caller and the in-flight
// call record. The first Complete wins; later writes are ignored.
type Slot struct {
	once   sync.Once
	ready  atomic.Bool
	done   chan struct{}
	result []byte
	err    error
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{done: make(chan struct{})}
}

// Complete stores the outcome and wakes waiters.
// Returns false if the slot was already completed.
func (s *Slot) Complete(result []byte, err error) bool {
	written := false
	s.once.Do(func() {
		s.result = result
		s.err = err
		s.ready.Store(true)
		close(s.done)
		written = true
	})
	return written
}

// Ready returns true once the slot has been completed.
func (s *Slot) Ready() bool {
	return s.ready.Load()
}

// Done returns a channel closed on completion.
func (s *Slot) Done() <-chan struct{} {
	return s.done
}

// Result returns the stored outcome. It is only meaningful once Ready is true.
func (s *Slot) Result() ([]byte, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	return s.result, s.err
}
