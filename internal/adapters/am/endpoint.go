// Package am implements the active-message endpoint shared by the concrete
// transports. An endpoint turns batches into request frames, runs the calls
// carried by incoming request frames and completes result handles from
// incoming reply frames. Moving bytes between processes is left to a Sender.
package am

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/ports"
	"github.com/bft-labs/rpcagg/internal/wire"
	"github.com/bft-labs/rpcagg/pkg/log"
)

// Sender delivers an encoded frame to process dest. The frame is not reused
// by the endpoint after the call.
type Sender func(dest int, frame []byte) error

type pendingCall struct {
	handler uint16
	reply   domain.Completer
}

// Stats is a snapshot of endpoint counters.
type Stats struct {
	RequestsSent    uint64
	RequestsHandled uint64
	RepliesSent     uint64
	RepliesReceived uint64
	CallsExecuted   uint64
	Outstanding     int
	DroppedFrames   uint64
	OrphanedReplies uint64
}

// Endpoint is one process's side of the active-message layer.
type Endpoint struct {
	rank   int
	send   Sender
	logger log.Logger
	ctx    context.Context

	exec atomic.Pointer[ports.Executor]

	mu          sync.Mutex
	outstanding map[uint64]pendingCall

	inboxMu sync.Mutex
	inbox   [][]byte

	requestsSent    atomic.Uint64
	requestsHandled atomic.Uint64
	repliesSent     atomic.Uint64
	repliesReceived atomic.Uint64
	callsExecuted   atomic.Uint64
	droppedFrames   atomic.Uint64
	orphanedReplies atomic.Uint64
}

// NewEndpoint creates the endpoint for process rank. ctx is passed to every
// handler the endpoint runs.
func NewEndpoint(ctx context.Context, rank int, send Sender, logger log.Logger) *Endpoint {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Endpoint{
		rank:        rank,
		send:        send,
		logger:      logger.With(log.Int("rank", rank)),
		ctx:         ctx,
		outstanding: make(map[uint64]pendingCall),
	}
}

// Rank returns the process index of the endpoint.
func (e *Endpoint) Rank() int {
	return e.rank
}

// BindExecutor sets the executor used for incoming requests.
func (e *Endpoint) BindExecutor(exec ports.Executor) {
	e.exec.Store(&exec)
}

// Dispatch encodes b as a request frame and sends it to dest. Records with a
// result handle stay outstanding until their reply arrives. If the send
// fails, nothing stays outstanding and the error is returned.
func (e *Endpoint) Dispatch(dest int, b *domain.Batch) error {
	frame, err := wire.EncodeRequest(e.rank, b)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, r := range b.Records {
		if r.Reply != nil {
			e.outstanding[r.ID] = pendingCall{handler: r.Handler, reply: r.Reply}
		}
	}
	e.mu.Unlock()

	if err := e.send(dest, frame); err != nil {
		e.forget(b.Records)
		return err
	}
	e.requestsSent.Add(1)
	return nil
}

func (e *Endpoint) forget(records []domain.CallRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		delete(e.outstanding, r.ID)
	}
}

// Deliver queues a received frame for the next Progress call. The endpoint
// takes ownership of frame.
func (e *Endpoint) Deliver(frame []byte) {
	e.inboxMu.Lock()
	e.inbox = append(e.inbox, frame)
	e.inboxMu.Unlock()
}

// Progress handles every frame queued so far. It runs without holding
// endpoint locks, so handlers may submit calls and drive progress again.
func (e *Endpoint) Progress() {
	e.inboxMu.Lock()
	frames := e.inbox
	e.inbox = nil
	e.inboxMu.Unlock()

	for _, frame := range frames {
		if err := e.handle(frame); err != nil {
			e.droppedFrames.Add(1)
			e.logger.Error("dropping frame", log.Err(err), log.Int("bytes", len(frame)))
		}
	}
}

func (e *Endpoint) handle(frame []byte) error {
	kind, err := wire.PeekKind(frame)
	if err != nil {
		return err
	}
	switch kind {
	case wire.KindRequest:
		return e.handleRequest(frame)
	default:
		return e.handleReply(frame)
	}
}

func (e *Endpoint) handleRequest(frame []byte) error {
	src, records, err := wire.DecodeRequest(frame)
	if err != nil {
		return err
	}
	e.requestsHandled.Add(1)

	replies := make([]domain.Reply, len(records))
	for i, r := range records {
		replies[i] = e.execute(r)
	}

	out, err := wire.EncodeReply(e.rank, replies)
	if err != nil {
		return fmt.Errorf("encode reply for process %d: %w", src, err)
	}
	if err := e.send(src, out); err != nil {
		return fmt.Errorf("send reply to process %d: %w", src, err)
	}
	e.repliesSent.Add(1)
	return nil
}

func (e *Endpoint) execute(r domain.CallRecord) domain.Reply {
	e.callsExecuted.Add(1)
	reply := domain.Reply{ID: r.ID}

	exec := e.exec.Load()
	if exec == nil {
		reply.Status = domain.ReplyUnknownHandler
		return reply
	}

	result, err := (*exec).Execute(e.ctx, r.Handler, int(r.Worker), r.Payload)
	switch {
	case errors.Is(err, domain.ErrUnknownHandler):
		reply.Status = domain.ReplyUnknownHandler
	case err != nil:
		reply.Status = domain.ReplyError
		reply.Payload = []byte(err.Error())
	case len(result) > wire.MaxResultSize:
		reply.Status = domain.ReplyError
		reply.Payload = []byte(fmt.Sprintf("result of %d bytes exceeds %d", len(result), wire.MaxResultSize))
	default:
		reply.Payload = result
	}
	return reply
}

func (e *Endpoint) handleReply(frame []byte) error {
	_, replies, err := wire.DecodeReply(frame)
	if err != nil {
		return err
	}
	e.repliesReceived.Add(1)

	for _, r := range replies {
		e.mu.Lock()
		call, ok := e.outstanding[r.ID]
		delete(e.outstanding, r.ID)
		e.mu.Unlock()
		if !ok {
			// Fire-and-forget calls have no handle.
			e.orphanedReplies.Add(1)
			continue
		}
		call.reply.Complete(r.Payload, r.Err(call.handler))
	}
	return nil
}

// Outstanding returns the number of handles waiting for a reply.
func (e *Endpoint) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outstanding)
}

// FailOutstanding completes every waiting handle with err. It is used when
// the transport underneath shuts down.
func (e *Endpoint) FailOutstanding(err error) int {
	e.mu.Lock()
	calls := e.outstanding
	e.outstanding = make(map[uint64]pendingCall)
	e.mu.Unlock()

	for _, c := range calls {
		c.reply.Complete(nil, err)
	}
	return len(calls)
}

// Stats returns a snapshot of the endpoint counters.
func (e *Endpoint) Stats() Stats {
	return Stats{
		RequestsSent:    e.requestsSent.Load(),
		RequestsHandled: e.requestsHandled.Load(),
		RepliesSent:     e.repliesSent.Load(),
		RepliesReceived: e.repliesReceived.Load(),
		CallsExecuted:   e.callsExecuted.Load(),
		Outstanding:     e.Outstanding(),
		DroppedFrames:   e.droppedFrames.Load(),
		OrphanedReplies: e.orphanedReplies.Load(),
	}
}
