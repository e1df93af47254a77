package app

import (
	"sync"

	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/wire"
)

// mockTransport records dispatched batches.
type mockTransport struct {
	maxReq, maxRep int

	mu       sync.Mutex
	batches  []domain.Batch
	progress func()
	fail     error
	// onDispatch runs before the batch is recorded, outside the lock.
	onDispatch func(b *domain.Batch)

	progressCalls int
}

func newMockTransport(capacity int) *mockTransport {
	return &mockTransport{
		maxReq: wire.BatchHeaderSize + capacity*wire.RequestRecordSize,
		maxRep: wire.BatchHeaderSize + capacity*wire.ReplyRecordSize,
	}
}

func (t *mockTransport) MaxRequestPayloadSize() int { return t.maxReq }
func (t *mockTransport) MaxReplyPayloadSize() int   { return t.maxRep }

func (t *mockTransport) Progress() {
	t.mu.Lock()
	t.progressCalls++
	fn := t.progress
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *mockTransport) Dispatch(dest int, b *domain.Batch) error {
	t.mu.Lock()
	hook := t.onDispatch
	t.mu.Unlock()
	if hook != nil {
		hook(b)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.batches = append(t.batches, domain.Batch{Dest: dest, Records: append([]domain.CallRecord(nil), b.Records...)})
	return nil
}

func (t *mockTransport) Batches() []domain.Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Batch(nil), t.batches...)
}

// completeAll simulates the remote side answering every dispatched call.
func (t *mockTransport) completeAll(result []byte) {
	for _, b := range t.Batches() {
		for _, r := range b.Records {
			if r.Reply != nil {
				r.Reply.Complete(result, nil)
			}
		}
	}
}

type mockEmitter struct {
	mu     sync.Mutex
	full   int
	flush  int
	errors int
}

func (e *mockEmitter) OnDispatch(dest, records int, full bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if full {
		e.full++
	} else {
		e.flush++
	}
}

func (e *mockEmitter) OnDispatchError(err error, dest, records int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors++
}
