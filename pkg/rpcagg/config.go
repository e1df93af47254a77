package rpcagg

import (
	"fmt"
	"time"

	"github.com/bft-labs/rpcagg/internal/app"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/pkg/lifecycle"
)

// Config describes one process of an aggregation job.
type Config struct {
	// Procs is the number of processes in the job.
	// Default: 1
	Procs int

	// LocalWorkers is the number of workers inside each process.
	// Default: 1
	LocalWorkers int

	// Rank is the index of this process, in [0, Procs).
	Rank int

	// Capacity lowers the batch capacity below the maximum negotiated from
	// the transport limits. Zero keeps the maximum.
	Capacity int

	// FlushInterval is how often partially filled batches are flushed.
	// Default: 2ms
	FlushInterval time.Duration

	// ShutdownTimeout bounds how long Stop waits for the flush loops.
	// Default: 30s
	ShutdownTimeout time.Duration
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Procs == 0 {
		c.Procs = 1
	}
	if c.LocalWorkers == 0 {
		c.LocalWorkers = 1
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = app.DefaultFlushInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = lifecycle.ShutdownTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Topology().Validate(); err != nil {
		return err
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", domain.ErrInvalidConfig)
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("%w: flush interval must not be negative", domain.ErrInvalidConfig)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown timeout must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Topology returns the process layout described by c.
func (c *Config) Topology() Topology {
	return Topology{Procs: c.Procs, LocalWorkers: c.LocalWorkers, Rank: c.Rank}
}
