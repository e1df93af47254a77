// Package tcp carries active-message frames between processes over TCP.
//
// Every process listens on its own peer address and lazily dials one
// outgoing connection per destination. Frames are prefixed with their
// length as a big-endian uint32.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/rpcagg/internal/adapters/am"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/ports"
	"github.com/bft-labs/rpcagg/pkg/lifecycle"
	"github.com/bft-labs/rpcagg/pkg/log"
)

const (
	DefaultPayloadSize = 64 * 1024
	DefaultDialTimeout = 30 * time.Second

	lengthSize = 4
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("tcp: transport closed")

// Config holds the settings of one TCP process.
type Config struct {
	// Rank is this process's index into Peers.
	Rank int
	// Peers lists host:port for every process, indexed by rank.
	Peers []string

	MaxRequestPayload int
	MaxReplyPayload   int

	// DialTimeout bounds how long a first send waits for a peer to come up.
	DialTimeout time.Duration
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MaxRequestPayload == 0 {
		c.MaxRequestPayload = DefaultPayloadSize
	}
	if c.MaxReplyPayload == 0 {
		c.MaxReplyPayload = DefaultPayloadSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Peers) == 0 {
		return fmt.Errorf("%w: peers are required", domain.ErrInvalidConfig)
	}
	if c.Rank < 0 || c.Rank >= len(c.Peers) {
		return fmt.Errorf("%w: rank %d outside [0, %d)", domain.ErrInvalidConfig, c.Rank, len(c.Peers))
	}
	if c.MaxRequestPayload <= 0 || c.MaxReplyPayload <= 0 {
		return fmt.Errorf("%w: payload limits must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

type peerConn struct {
	mu   sync.Mutex
	conn net.Conn
	w    *bufio.Writer
}

// Transport is a ports.Transport over TCP.
type Transport struct {
	cfg      Config
	logger   log.Logger
	endpoint *am.Endpoint
	maxFrame int

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group

	listener net.Listener

	mu      sync.Mutex
	dialing map[int]*sync.Mutex
	out     map[int]*peerConn
	in      map[net.Conn]struct{}

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
}

var (
	_ ports.Transport      = (*Transport)(nil)
	_ ports.ExecutorBinder = (*Transport)(nil)
)

// New creates a transport. Start must be called before use.
func New(cfg Config, logger log.Logger) (*Transport, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	t := &Transport{
		cfg:      cfg,
		logger:   logger.With(log.String("transport", "tcp")),
		maxFrame: max(cfg.MaxRequestPayload, cfg.MaxReplyPayload),
		dialing:  make(map[int]*sync.Mutex),
		out:      make(map[int]*peerConn),
		in:       make(map[net.Conn]struct{}),
	}
	t.endpoint = am.NewEndpoint(context.Background(), cfg.Rank, t.send, t.logger)
	return t, nil
}

// Start listens on the peer address of this rank and begins accepting
// connections. Canceling ctx stops the accept and read loops.
func (t *Transport) Start(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRunning
	}

	addr := t.cfg.Peers[t.cfg.Rank]
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.running.Store(false)
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	t.listener = ln

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.group, t.ctx = errgroup.WithContext(t.ctx)

	t.group.Go(t.acceptLoop)

	t.logger.Info("tcp transport started",
		log.Int("rank", t.cfg.Rank),
		log.String("addr", ln.Addr().String()),
		log.Int("peers", len(t.cfg.Peers)),
	)
	return nil
}

// Addr returns the listening address, or nil before Start.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Close stops accepting, closes every connection and fails the handles still
// waiting for replies.
func (t *Transport) Close() error {
	if !t.running.CompareAndSwap(true, false) {
		return nil
	}
	t.cancel()
	_ = t.listener.Close()

	t.mu.Lock()
	for _, pc := range t.out {
		_ = pc.conn.Close()
	}
	for c := range t.in {
		_ = c.Close()
	}
	t.out = make(map[int]*peerConn)
	t.mu.Unlock()

	err := t.group.Wait()
	if n := t.endpoint.FailOutstanding(ErrClosed); n > 0 {
		t.logger.Warn("failed outstanding calls on close", log.Int("calls", n))
	}
	t.logger.Info("tcp transport stopped",
		log.Uint64("frames_sent", t.framesSent.Load()),
		log.Uint64("frames_received", t.framesReceived.Load()),
	)
	if err != nil && !isClosedErr(err) {
		return err
	}
	return nil
}

// MaxRequestPayloadSize returns the configured request limit.
func (t *Transport) MaxRequestPayloadSize() int { return t.cfg.MaxRequestPayload }

// MaxReplyPayloadSize returns the configured reply limit.
func (t *Transport) MaxReplyPayloadSize() int { return t.cfg.MaxReplyPayload }

// Progress handles received frames.
func (t *Transport) Progress() {
	t.endpoint.Progress()
}

// Dispatch sends b to process dest.
func (t *Transport) Dispatch(dest int, b *domain.Batch) error {
	if !t.running.Load() {
		return ErrClosed
	}
	return t.endpoint.Dispatch(dest, b)
}

// BindExecutor sets the executor for incoming calls.
func (t *Transport) BindExecutor(exec ports.Executor) {
	t.endpoint.BindExecutor(exec)
}

func (t *Transport) send(dest int, frame []byte) error {
	if dest == t.cfg.Rank {
		t.endpoint.Deliver(frame)
		t.framesSent.Add(1)
		return nil
	}
	if dest < 0 || dest >= len(t.cfg.Peers) {
		return fmt.Errorf("%w: no peer %d", domain.ErrInvalidConfig, dest)
	}
	if len(frame) > t.maxFrame {
		return fmt.Errorf("%w: frame of %d bytes", domain.ErrPayloadTooLarge, len(frame))
	}

	pc, err := t.conn(dest)
	if err != nil {
		return err
	}
	if err := pc.write(frame); err != nil {
		t.dropConn(dest, pc)
		return fmt.Errorf("send to %s: %w", t.cfg.Peers[dest], err)
	}
	t.framesSent.Add(1)
	return nil
}

func (pc *peerConn) write(frame []byte) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	var hdr [lengthSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := pc.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := pc.w.Write(frame); err != nil {
		return err
	}
	return pc.w.Flush()
}

// conn returns the outgoing connection to dest, dialing it on first use.
// Peers that are not up yet are retried with backoff until DialTimeout.
func (t *Transport) conn(dest int) (*peerConn, error) {
	t.mu.Lock()
	if pc, ok := t.out[dest]; ok {
		t.mu.Unlock()
		return pc, nil
	}
	dmu, ok := t.dialing[dest]
	if !ok {
		dmu = &sync.Mutex{}
		t.dialing[dest] = dmu
	}
	t.mu.Unlock()

	dmu.Lock()
	defer dmu.Unlock()

	t.mu.Lock()
	if pc, ok := t.out[dest]; ok {
		t.mu.Unlock()
		return pc, nil
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.DialTimeout)
	defer cancel()

	addr := t.cfg.Peers[dest]
	backoff := lifecycle.NewBackoff(10*time.Millisecond, time.Second)
	var d net.Dialer
	for {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			pc := &peerConn{conn: c, w: bufio.NewWriter(c)}
			t.mu.Lock()
			if !t.running.Load() {
				t.mu.Unlock()
				_ = c.Close()
				return nil, ErrClosed
			}
			t.out[dest] = pc
			t.mu.Unlock()
			t.logger.Debug("connected to peer", log.Int("peer", dest), log.String("addr", addr))
			return pc, nil
		}
		t.logger.Debug("peer not reachable yet",
			log.Int("peer", dest),
			log.Err(err),
			log.Duration("backoff", backoff.Current()),
		)
		if werr := backoff.Wait(ctx); werr != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
	}
}

func (t *Transport) dropConn(dest int, pc *peerConn) {
	t.mu.Lock()
	if t.out[dest] == pc {
		delete(t.out, dest)
	}
	t.mu.Unlock()
	_ = pc.conn.Close()
}

func (t *Transport) acceptLoop() error {
	for {
		c, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil || isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		t.mu.Lock()
		t.in[c] = struct{}{}
		t.mu.Unlock()

		t.group.Go(func() error {
			defer func() {
				t.mu.Lock()
				delete(t.in, c)
				t.mu.Unlock()
				_ = c.Close()
			}()
			err := t.readLoop(c)
			if err != nil && t.ctx.Err() == nil {
				// One broken peer must not stop the others.
				t.logger.Warn("peer connection closed",
					log.String("remote", c.RemoteAddr().String()),
					log.Err(err),
				)
			}
			return nil
		})
	}
}

func (t *Transport) readLoop(c net.Conn) error {
	r := bufio.NewReader(c)
	var hdr [lengthSize]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || isClosedErr(err) {
				return nil
			}
			return err
		}
		n := int(binary.BigEndian.Uint32(hdr[:]))
		if n > t.maxFrame {
			return fmt.Errorf("frame of %d bytes exceeds %d", n, t.maxFrame)
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			return err
		}
		t.framesReceived.Add(1)
		t.endpoint.Deliver(frame)
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}

// Endpoint exposes the underlying active-message endpoint.
func (t *Transport) Endpoint() *am.Endpoint {
	return t.endpoint
}
