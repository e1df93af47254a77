package rpcagg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bft-labs/rpcagg/internal/adapters/loopback"
	"github.com/bft-labs/rpcagg/internal/app"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/internal/handler"
	"github.com/bft-labs/rpcagg/pkg/batch"
	"github.com/bft-labs/rpcagg/pkg/future"
	"github.com/bft-labs/rpcagg/pkg/lifecycle"
	"github.com/bft-labs/rpcagg/pkg/log"
)

// Topology is the static process layout of a job.
type Topology = domain.Topology

// Stats is a snapshot of the aggregation counters of one process.
type Stats = app.Stats

type starter interface {
	Start(ctx context.Context) error
}

// Runtime aggregates the calls of one process. Use New to create it and
// Start to run its flush loops.
//
// A Runtime is single-use: after Stop it rejects new calls.
type Runtime struct {
	config    Config
	opts      options
	logger    log.Logger
	registry  *handler.Registry
	transport Transport
	manager   *app.Manager
	flusher   *app.Flusher
	lifecycle *lifecycle.DefaultManager
	plugins   []Plugin

	mu      sync.Mutex
	running []Plugin
}

var _ Registrar = (*Runtime)(nil)

// New creates a Runtime in StateStopped. Calls may be issued before Start,
// but partial batches are only flushed by the running flush loops or by
// explicit Flush calls.
func New(cfg Config, opts ...Option) (*Runtime, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(log.Int("rank", cfg.Rank))

	registry := o.registry
	if registry == nil {
		registry = handler.NewRegistry()
	}

	transport := o.transport
	if transport == nil {
		if cfg.Procs != 1 {
			return nil, fmt.Errorf("%w: a transport is required for %d processes", ErrInvalidConfig, cfg.Procs)
		}
		lt, err := loopback.NewFabric(1, loopback.WithLogger(logger)).Attach(context.Background(), 0)
		if err != nil {
			return nil, err
		}
		transport = lt
	}

	emitter := &eventEmitter{handler: o.eventHandler}
	manager, err := app.NewManager(app.ManagerConfig{Capacity: cfg.Capacity}, cfg.Topology(), transport, logger, emitter)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		config:    cfg,
		opts:      o,
		logger:    logger,
		registry:  registry,
		transport: transport,
		manager:   manager,
		flusher:   app.NewFlusher(manager, cfg.FlushInterval, logger),
		lifecycle: lifecycle.NewManager(logger, emitter),
		plugins:   o.plugins,
	}
	if b, ok := transport.(ExecutorBinder); ok {
		b.BindExecutor(rt.executor())
	}
	return rt, nil
}

// Start starts the transport when it has a Start method, initializes plugins
// and runs one flush loop per local worker. It returns once they are running.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if r.manager.Closed() {
		return ErrClosed
	}
	if err := r.lifecycle.TransitionTo(StateStarting, "Start() called"); err != nil {
		return err
	}

	if s, ok := r.transport.(starter); ok {
		if err := s.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			_ = r.lifecycle.TransitionTo(StateCrashed, "transport start failed")
			return fmt.Errorf("start transport: %w", err)
		}
	}

	group := lifecycle.NewGroup(ctx, r.lifecycle, r.logger)
	pluginCfg := PluginConfig{
		Topology: r.config.Topology(),
		Logger:   r.logger,
		Tuner:    r,
	}
	for i, p := range r.plugins {
		if err := p.Initialize(group.Context(), pluginCfg); err != nil {
			r.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			r.shutdownPlugins(r.plugins[:i])
			r.running = nil
			r.lifecycle.Cancel()
			_ = r.lifecycle.TransitionTo(StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		r.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}
	r.running = r.plugins

	for local := 0; local < r.config.LocalWorkers; local++ {
		local := local
		group.Go(fmt.Sprintf("flusher-%d", local), func(ctx context.Context) error {
			return r.flusher.Run(ctx, local)
		})
	}

	return r.lifecycle.TransitionTo(StateRunning, "flush loops started")
}

// Stop cancels the flush loops, drains every buffer, shuts down plugins and
// closes the transport when it has a Close method. Calls still waiting for
// replies when the transport closes fail with the transport's error.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	if !r.lifecycle.CanStop() {
		r.mu.Unlock()
		return ErrNotRunning
	}
	if err := r.lifecycle.TransitionTo(StateStopping, "Stop() called"); err != nil {
		r.mu.Unlock()
		return err
	}
	r.lifecycle.Cancel()
	plugins := r.running
	r.running = nil
	r.mu.Unlock()

	err := r.lifecycle.WaitWithTimeout(r.config.ShutdownTimeout)

	_ = r.manager.Close()
	r.shutdownPlugins(plugins)

	if c, ok := r.transport.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			r.logger.Error("transport close failed", log.Err(cerr))
		}
	}

	if err != nil {
		_ = r.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
	} else {
		_ = r.lifecycle.TransitionTo(StateStopped, "graceful shutdown")
	}
	return err
}

func (r *Runtime) shutdownPlugins(plugins []Plugin) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.ShutdownTimeout)
	defer cancel()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			r.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			continue
		}
		r.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
	}
}

// Status returns the current lifecycle state.
func (r *Runtime) Status() State {
	return r.lifecycle.State()
}

// Topology returns the process layout of the runtime.
func (r *Runtime) Topology() Topology {
	return r.manager.Topology()
}

// Rank returns the index of this process.
func (r *Runtime) Rank() int {
	return r.config.Rank
}

// Progress drives the transport once: received calls run and received
// replies complete their futures.
func (r *Runtime) Progress() {
	r.manager.Progress()
}

// Flush dispatches the partial batches owned by local worker local and
// returns the number of calls sent.
func (r *Runtime) Flush(local int) int {
	return r.manager.Flush(local)
}

// FlushAll dispatches every partial batch regardless of owner.
func (r *Runtime) FlushAll() int {
	return r.manager.FlushAll()
}

// SetCapacity lowers the batch capacity to min(current, n) and returns the
// new capacity. No calls may be buffered when it is called.
func (r *Runtime) SetCapacity(n int) (int, error) {
	return r.manager.SetCapacity(n)
}

// Capacity returns the current batch capacity.
func (r *Runtime) Capacity() int {
	return r.manager.Capacity()
}

// MaxCapacity returns the capacity negotiated from the transport limits.
func (r *Runtime) MaxCapacity() int {
	return r.manager.MaxCapacity()
}

// SetFlushInterval changes how often partial batches are flushed.
func (r *Runtime) SetFlushInterval(d time.Duration) {
	r.flusher.SetInterval(d)
	r.logger.Info("flush interval changed", log.Duration("interval", r.flusher.Interval()))
}

// FlushInterval returns the current flush interval.
func (r *Runtime) FlushInterval() time.Duration {
	return r.flusher.Interval()
}

// Stats returns the aggregation counters.
func (r *Runtime) Stats() Stats {
	return r.manager.Stats()
}

func (r *Runtime) handlers() *handler.Registry {
	return r.registry
}

// submit is the untyped core of Call.
func (r *Runtime) submit(target int, id uint16, payload []byte, slot *future.Slot) error {
	var reply batch.Completer
	if slot != nil {
		reply = slot
	}
	return r.manager.Submit(target, id, payload, reply)
}

// executor runs incoming calls with global worker indices.
func (r *Runtime) executor() Executor {
	return executorFunc(func(ctx context.Context, id uint16, local int, payload []byte) ([]byte, error) {
		worker := r.config.Rank*r.config.LocalWorkers + local
		return r.registry.Execute(ctx, id, worker, payload)
	})
}

type executorFunc func(ctx context.Context, id uint16, local int, payload []byte) ([]byte, error)

func (f executorFunc) Execute(ctx context.Context, id uint16, local int, payload []byte) ([]byte, error) {
	return f(ctx, id, local, payload)
}
