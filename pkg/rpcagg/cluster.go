package rpcagg

import (
	"context"
	"errors"

	"github.com/bft-labs/rpcagg/internal/adapters/loopback"
	"github.com/bft-labs/rpcagg/internal/handler"
)

// ClusterOption configures a local cluster.
type ClusterOption func(*clusterOptions)

type clusterOptions struct {
	maxRequest, maxReply int
	runtime              []Option
}

// WithPayloadLimits sets the request and reply limits of the in-process
// fabric, which bound the negotiated capacity.
func WithPayloadLimits(request, reply int) ClusterOption {
	return func(o *clusterOptions) {
		o.maxRequest = request
		o.maxReply = reply
	}
}

// WithRuntimeOptions applies opts to every runtime of the cluster.
func WithRuntimeOptions(opts ...Option) ClusterOption {
	return func(o *clusterOptions) {
		o.runtime = append(o.runtime, opts...)
	}
}

// Cluster is a set of runtimes in one address space connected by an
// in-process fabric. They share one handler table.
type Cluster struct {
	registry *handler.Registry
	runtimes []*Runtime
}

var _ Registrar = (*Cluster)(nil)

// NewLocalCluster creates cfg.Procs runtimes. cfg.Rank is ignored.
func NewLocalCluster(cfg Config, opts ...ClusterOption) (*Cluster, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	co := clusterOptions{
		maxRequest: loopback.DefaultPayloadSize,
		maxReply:   loopback.DefaultPayloadSize,
	}
	for _, opt := range opts {
		opt(&co)
	}

	fabric := loopback.NewFabric(cfg.Procs, loopback.WithPayloadLimits(co.maxRequest, co.maxReply))
	c := &Cluster{registry: handler.NewRegistry()}
	for rank := 0; rank < cfg.Procs; rank++ {
		tr, err := fabric.Attach(context.Background(), rank)
		if err != nil {
			return nil, err
		}
		rcfg := cfg
		rcfg.Rank = rank
		rtOpts := append([]Option{WithTransport(tr), withRegistry(c.registry)}, co.runtime...)
		rt, err := New(rcfg, rtOpts...)
		if err != nil {
			return nil, err
		}
		c.runtimes = append(c.runtimes, rt)
	}
	return c, nil
}

func (c *Cluster) handlers() *handler.Registry {
	return c.registry
}

// Runtime returns the runtime of process rank.
func (c *Cluster) Runtime(rank int) *Runtime {
	return c.runtimes[rank]
}

// Runtimes returns every runtime, indexed by rank.
func (c *Cluster) Runtimes() []*Runtime {
	return append([]*Runtime(nil), c.runtimes...)
}

// Progress drives every process once.
func (c *Cluster) Progress() {
	for _, rt := range c.runtimes {
		rt.Progress()
	}
}

// Start starts every runtime.
func (c *Cluster) Start(ctx context.Context) error {
	for i, rt := range c.runtimes {
		if err := rt.Start(ctx); err != nil {
			for _, started := range c.runtimes[:i] {
				_ = started.Stop()
			}
			return err
		}
	}
	return nil
}

// Stop stops every runtime and returns the joined errors.
func (c *Cluster) Stop() error {
	var errs []error
	for _, rt := range c.runtimes {
		if err := rt.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
