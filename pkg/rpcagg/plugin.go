package rpcagg

import (
	"context"
	"time"

	"github.com/bft-labs/rpcagg/pkg/log"
)

// Plugin extends a Runtime. Plugins are initialized in registration order
// when the runtime starts and shut down in reverse order when it stops.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// Tuner exposes the runtime settings that may change while running.
type Tuner interface {
	SetFlushInterval(d time.Duration)
	FlushInterval() time.Duration
	Capacity() int
}

// PluginConfig is passed to Plugin.Initialize.
type PluginConfig struct {
	Topology Topology
	Logger   log.Logger
	Tuner    Tuner
}
