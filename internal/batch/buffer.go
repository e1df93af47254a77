package batch

import (
	"sync"

	"github.com/bft-labs/rpcagg/internal/domain"
)

// Buffer is a bounded, multi-producer aggregation buffer for one destination.
//
// Push, PopFull and PopNoFull share a single mutex, so the capacity check and
// the append are indivisible and the two drain paths never overlap. Once a
// push fills the buffer it stays full (pushes fail) until PopFull runs.
type Buffer struct {
	mu       sync.Mutex
	records  []domain.CallRecord
	capacity int
	full     bool
}

// NewBuffer creates an empty buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	b := &Buffer{}
	b.Init(capacity)
	return b
}

// Init resets the buffer to empty with a new capacity.
// Records still held are dropped; callers must drain first.
func (b *Buffer) Init(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = capacity
	b.records = make([]domain.CallRecord, 0, capacity)
	b.full = false
}

// Push appends rec if there is room.
func (b *Buffer) Push(rec domain.CallRecord) PushStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.full || len(b.records) >= b.capacity {
		return PushFail
	}
	b.records = append(b.records, rec)
	if len(b.records) == b.capacity {
		b.full = true
		return PushSuccessAndFull
	}
	return PushSuccess
}

// PopFull swaps out the full generation of records and resets the buffer.
// Only the caller that observed PushSuccessAndFull may call it.
func (b *Buffer) PopFull() []domain.CallRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.swap()
}

// PopNoFull drains whatever is present, from zero up to capacity records.
// A full buffer is left alone: its batch belongs to the pusher that filled it.
func (b *Buffer) PopNoFull() []domain.CallRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full || len(b.records) == 0 {
		return nil
	}
	return b.swap()
}

// swap must be called with mu held.
func (b *Buffer) swap() []domain.CallRecord {
	out := b.records
	b.records = make([]domain.CallRecord, 0, b.capacity)
	b.full = false
	return out
}

// Len returns the number of records currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Capacity returns the buffer capacity.
func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Full returns true while a filled batch is waiting for PopFull.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.full
}
