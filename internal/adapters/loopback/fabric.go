// Package loopback connects processes that live in one address space. Each
// attached process gets an active-message endpoint and frames are handed
// between endpoint inboxes directly.
package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/rpcagg/internal/adapters/am"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/ports"
	"github.com/bft-labs/rpcagg/pkg/log"
)

// DefaultPayloadSize is the default request and reply limit, the usual
// medium active-message size.
const DefaultPayloadSize = 64 * 1024

// Option configures a Fabric.
type Option func(*Fabric)

// WithPayloadLimits sets the request and reply payload limits.
func WithPayloadLimits(request, reply int) Option {
	return func(f *Fabric) {
		f.maxRequest = request
		f.maxReply = reply
	}
}

// WithLogger sets the logger given to every endpoint.
func WithLogger(l log.Logger) Option {
	return func(f *Fabric) {
		if l != nil {
			f.logger = l
		}
	}
}

// Fabric is a set of in-process endpoints indexed by rank.
type Fabric struct {
	maxRequest int
	maxReply   int
	logger     log.Logger

	mu        sync.RWMutex
	endpoints []*am.Endpoint
}

// NewFabric creates a fabric with room for procs processes.
func NewFabric(procs int, opts ...Option) *Fabric {
	f := &Fabric{
		maxRequest: DefaultPayloadSize,
		maxReply:   DefaultPayloadSize,
		logger:     log.NewNoopLogger(),
		endpoints:  make([]*am.Endpoint, procs),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Procs returns the number of process slots.
func (f *Fabric) Procs() int {
	return len(f.endpoints)
}

// Attach creates the transport for process rank. ctx is passed to the
// handlers that process runs.
func (f *Fabric) Attach(ctx context.Context, rank int) (*Transport, error) {
	if rank < 0 || rank >= len(f.endpoints) {
		return nil, fmt.Errorf("%w: rank %d outside [0, %d)", domain.ErrInvalidConfig, rank, len(f.endpoints))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endpoints[rank] != nil {
		return nil, fmt.Errorf("%w: rank %d already attached", domain.ErrInvalidConfig, rank)
	}
	ep := am.NewEndpoint(ctx, rank, f.deliver, f.logger)
	f.endpoints[rank] = ep
	return &Transport{fabric: f, endpoint: ep}, nil
}

func (f *Fabric) deliver(dest int, frame []byte) error {
	f.mu.RLock()
	var ep *am.Endpoint
	if dest >= 0 && dest < len(f.endpoints) {
		ep = f.endpoints[dest]
	}
	f.mu.RUnlock()

	if ep == nil {
		return fmt.Errorf("loopback: process %d is not attached", dest)
	}
	// Frames are freshly encoded per send, so ownership moves with them.
	ep.Deliver(frame)
	return nil
}

// Transport is one process's view of the fabric.
type Transport struct {
	fabric   *Fabric
	endpoint *am.Endpoint
}

var (
	_ ports.Transport      = (*Transport)(nil)
	_ ports.ExecutorBinder = (*Transport)(nil)
)

// MaxRequestPayloadSize returns the request limit of the fabric.
func (t *Transport) MaxRequestPayloadSize() int { return t.fabric.maxRequest }

// MaxReplyPayloadSize returns the reply limit of the fabric.
func (t *Transport) MaxReplyPayloadSize() int { return t.fabric.maxReply }

// Progress handles the frames delivered to this process.
func (t *Transport) Progress() { t.endpoint.Progress() }

// Dispatch sends b to process dest.
func (t *Transport) Dispatch(dest int, b *domain.Batch) error {
	return t.endpoint.Dispatch(dest, b)
}

// BindExecutor sets the executor for calls addressed to this process.
func (t *Transport) BindExecutor(exec ports.Executor) {
	t.endpoint.BindExecutor(exec)
}

// Endpoint exposes the underlying endpoint.
func (t *Transport) Endpoint() *am.Endpoint {
	return t.endpoint
}
