package app

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/rpcagg/internal/batch"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/ports"
	"github.com/bft-labs/rpcagg/internal/wire"
	"github.com/bft-labs/rpcagg/pkg/log"
)

// ManagerConfig contains optional settings for the aggregation manager.
type ManagerConfig struct {
	// Capacity lowers the negotiated capacity right after init. Zero keeps the maximum.
	Capacity int
}

// DispatchEventEmitter is called after every batch hand-off to the transport.
type DispatchEventEmitter interface {
	OnDispatch(dest, records int, full bool)
	OnDispatchError(err error, dest, records int)
}

// Stats is a snapshot of manager counters.
type Stats struct {
	// Requested is the number of records handed to the transport.
	Requested      uint64
	Dispatches     uint64
	FullDrains     uint64
	PartialFlushes uint64
	Retries        uint64
	DispatchErrors uint64
	Capacity       int
	MaxCapacity    int
}

// Manager owns one aggregation buffer per destination process and runs the
// submit, drain and flush protocol on top of a Transport.
type Manager struct {
	topo      domain.Topology
	transport ports.Transport
	logger    log.Logger
	emitter   DispatchEventEmitter

	maxCapacity int
	capacity    atomic.Int64
	capMu       sync.Mutex
	buffers     []*batch.Buffer
	// drainMu serializes pop and dispatch per destination so batches reach
	// the transport in the order their records were pushed.
	drainMu []sync.Mutex

	nextID atomic.Uint64
	closed atomic.Bool

	requested      atomic.Uint64
	dispatches     atomic.Uint64
	fullDrains     atomic.Uint64
	partialFlushes atomic.Uint64
	retries        atomic.Uint64
	dispatchErrors atomic.Uint64
}

// NewManager negotiates the batch capacity from the transport's payload
// limits and allocates one buffer per process.
func NewManager(
	cfg ManagerConfig,
	topo domain.Topology,
	transport ports.Transport,
	logger log.Logger,
	emitter DispatchEventEmitter,
) (*Manager, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	maxReq := transport.MaxRequestPayloadSize()
	maxRep := transport.MaxReplyPayloadSize()
	maxCapacity := wire.Capacity(maxReq, maxRep)
	if maxCapacity <= 0 {
		return nil, fmt.Errorf("%w: payload limits (request %d, reply %d) hold no records",
			domain.ErrInvalidConfig, maxReq, maxRep)
	}

	m := &Manager{
		topo:        topo,
		transport:   transport,
		logger:      logger,
		emitter:     emitter,
		maxCapacity: maxCapacity,
		buffers:     make([]*batch.Buffer, topo.Procs),
		drainMu:     make([]sync.Mutex, topo.Procs),
	}
	m.capacity.Store(int64(maxCapacity))
	for i := range m.buffers {
		m.buffers[i] = batch.NewBuffer(maxCapacity)
	}

	if cfg.Capacity != 0 {
		if _, err := m.SetCapacity(cfg.Capacity); err != nil {
			return nil, err
		}
	}

	logger.Info("aggregation initialized",
		log.Int("procs", topo.Procs),
		log.Int("local_workers", topo.LocalWorkers),
		log.Int("max_capacity", maxCapacity),
		log.Int("capacity", m.Capacity()),
	)
	return m, nil
}

// SetCapacity lowers the capacity to min(current, n) and re-initializes every
// buffer. It must only be called while no buffer holds unflushed records;
// records still buffered are dropped.
func (m *Manager) SetCapacity(n int) (int, error) {
	if n <= 0 {
		return m.Capacity(), fmt.Errorf("%w: capacity must be positive, got %d", domain.ErrInvalidConfig, n)
	}

	m.capMu.Lock()
	defer m.capMu.Unlock()

	current := int(m.capacity.Load())
	if n < current {
		current = n
		m.capacity.Store(int64(current))
	}
	for _, b := range m.buffers {
		b.Init(current)
	}

	m.logger.Info("capacity set", log.Int("requested", n), log.Int("capacity", current))
	return current, nil
}

// Capacity returns the current batch capacity.
func (m *Manager) Capacity() int {
	return int(m.capacity.Load())
}

// MaxCapacity returns the capacity negotiated from the transport limits.
func (m *Manager) MaxCapacity() int {
	return m.maxCapacity
}

// Topology returns the process layout the manager was built for.
func (m *Manager) Topology() domain.Topology {
	return m.topo
}

// Submit places one call for the global worker target into the buffer of its
// process. A full buffer is retried after each transport progress step until
// the record is accepted; the caller is not released before that. When the
// push fills the buffer, the batch is dispatched on this goroutine. A record
// accepted after Close started is flushed here, since the final drain may
// already have passed its buffer.
//
// Only local validation errors are returned.
func (m *Manager) Submit(target int, handler uint16, payload []byte, reply domain.Completer) error {
	if m.closed.Load() {
		return domain.ErrClosed
	}
	proc, local, err := m.topo.Locate(target)
	if err != nil {
		return err
	}
	if len(payload) > wire.MaxArgsSize {
		return fmt.Errorf("%w: %d bytes, max %d", domain.ErrPayloadTooLarge, len(payload), wire.MaxArgsSize)
	}

	rec := domain.CallRecord{
		ID:      m.nextID.Add(1),
		Worker:  uint8(local),
		Handler: handler,
		Payload: payload,
		Reply:   reply,
	}

	buf := m.buffers[proc]
	status := buf.Push(rec)
	for status == batch.PushFail {
		m.retries.Add(1)
		m.transport.Progress()
		runtime.Gosched()
		status = buf.Push(rec)
	}

	if status == batch.PushSuccessAndFull {
		m.drainFull(proc)
	} else if m.closed.Load() {
		m.drainPartial(proc)
	}
	return nil
}

// Progress drives the transport once.
func (m *Manager) Progress() {
	m.transport.Progress()
}

// Flush drains the partially filled buffers of the destinations assigned to
// local worker local and dispatches them. Returns the records dispatched.
func (m *Manager) Flush(local int) int {
	total := 0
	for _, dest := range m.topo.Assigned(local) {
		total += m.drainPartial(dest)
	}
	return total
}

// FlushAll drains every destination. It ignores the flush partition and is
// meant for teardown after submitters have stopped.
func (m *Manager) FlushAll() int {
	total := 0
	for dest := range m.buffers {
		total += m.drainPartial(dest)
	}
	return total
}

// drainFull dispatches the full batch claimed by a PushSuccessAndFull.
func (m *Manager) drainFull(dest int) {
	mu := &m.drainMu[dest]
	mu.Lock()
	defer mu.Unlock()
	m.dispatch(dest, m.buffers[dest].PopFull(), true)
}

// drainPartial dispatches whatever a non-full buffer holds.
func (m *Manager) drainPartial(dest int) int {
	mu := &m.drainMu[dest]
	mu.Lock()
	defer mu.Unlock()
	records := m.buffers[dest].PopNoFull()
	m.dispatch(dest, records, false)
	return len(records)
}

// Pending returns the number of records sitting in buffers.
func (m *Manager) Pending() int {
	n := 0
	for _, b := range m.buffers {
		n += b.Len()
	}
	return n
}

// Close drains all buffers and rejects further submissions.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	n := m.FlushAll()
	m.logger.Info("aggregation closed",
		log.Int("flushed", n),
		log.Uint64("requested", m.requested.Load()),
	)
	return nil
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	return m.closed.Load()
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Requested:      m.requested.Load(),
		Dispatches:     m.dispatches.Load(),
		FullDrains:     m.fullDrains.Load(),
		PartialFlushes: m.partialFlushes.Load(),
		Retries:        m.retries.Load(),
		DispatchErrors: m.dispatchErrors.Load(),
		Capacity:       m.Capacity(),
		MaxCapacity:    m.maxCapacity,
	}
}

// dispatch hands records to the transport. On failure every handle in the
// batch is completed with the error; there is no retry. Callers hold
// drainMu[dest], so emitter callbacks must not flush.
func (m *Manager) dispatch(dest int, records []domain.CallRecord, full bool) {
	b := domain.NewBatch(dest, records)
	if b.Empty() {
		return
	}
	m.requested.Add(uint64(b.Size()))

	if err := m.transport.Dispatch(dest, b); err != nil {
		m.dispatchErrors.Add(1)
		m.logger.Error("dispatch failed",
			log.Err(err),
			log.Int("dest", dest),
			log.Int("records", b.Size()),
		)
		b.Fail(fmt.Errorf("dispatch to process %d: %w", dest, err))
		if m.emitter != nil {
			m.emitter.OnDispatchError(err, dest, b.Size())
		}
		return
	}

	m.dispatches.Add(1)
	if full {
		m.fullDrains.Add(1)
	} else {
		m.partialFlushes.Add(1)
		m.logger.Debug("flushed partial batch", log.Int("dest", dest), log.Int("records", b.Size()))
	}
	if m.emitter != nil {
		m.emitter.OnDispatch(dest, b.Size(), full)
	}
}
