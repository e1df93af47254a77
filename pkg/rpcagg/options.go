package rpcagg

import (
	"github.com/bft-labs/rpcagg/internal/handler"
	"github.com/bft-labs/rpcagg/internal/ports"
	"github.com/bft-labs/rpcagg/pkg/batch"
	"github.com/bft-labs/rpcagg/pkg/log"
)

// Transport moves batches between processes. Implementations that also
// implement ExecutorBinder run incoming calls through the runtime's
// handlers; implementations with Start(ctx) error or Close() error are
// started and closed with the runtime.
type Transport = ports.Transport

// Executor runs one incoming call.
type Executor = ports.Executor

// ExecutorBinder is implemented by transports that accept incoming calls.
type ExecutorBinder = ports.ExecutorBinder

// Batch is the unit handed to Transport.Dispatch.
type Batch = batch.Batch

// Logger is the structured logger used by the runtime.
type Logger = log.Logger

// Option configures optional behavior of a Runtime.
type Option func(*options)

type options struct {
	logger       log.Logger
	transport    ports.Transport
	eventHandler EventHandler
	plugins      []Plugin
	registry     *handler.Registry
}

func defaultOptions() options {
	return options{logger: log.NewNoopLogger()}
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTransport sets the transport. It is required when Procs > 1; a
// single-process runtime defaults to an in-process loopback.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithEventHandler sets a handler for runtime events.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) {
		o.eventHandler = h
	}
}

// WithPlugin registers a plugin to be initialized when the runtime starts.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, p)
	}
}

// withRegistry shares a handler table between the runtimes of a cluster.
func withRegistry(r *handler.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}
