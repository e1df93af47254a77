package configwatcher

import "github.com/bft-labs/rpcagg/pkg/rpcagg"

// WithConfigWatcher returns an rpcagg Option that reloads the config file
// while the runtime runs.
//
// Usage:
//
//	rt, err := rpcagg.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.DefaultConfig(path)),
//	)
func WithConfigWatcher(cfg Config) rpcagg.Option {
	return rpcagg.WithPlugin(New(cfg))
}
