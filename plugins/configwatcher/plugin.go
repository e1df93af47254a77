// Package configwatcher reloads the rpcagg config file while the runtime is
// running. It watches the file with fsnotify and applies the settings that
// can change live; today that is flush_interval.
package configwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/rpcagg/internal/cliconfig"
	"github.com/bft-labs/rpcagg/pkg/log"
	"github.com/bft-labs/rpcagg/pkg/rpcagg"
)

// Plugin watches one config file.
type Plugin struct {
	mu sync.Mutex

	path          string
	retryInterval time.Duration
	maxRetries    int
	debounceDelay time.Duration

	logger   log.Logger
	tuner    rpcagg.Tuner
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer

	reloads atomic.Uint64
	failed  atomic.Uint64
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the config file to watch. An empty path disables the plugin.
	Path string

	// RetryInterval is the delay before re-reading a file that failed to
	// parse, usually because it was caught mid-write.
	// Default: 500 milliseconds
	RetryInterval time.Duration

	// MaxRetries bounds the re-reads after one change.
	// Default: 3
	MaxRetries int

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config for path with default timings.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		RetryInterval: 500 * time.Millisecond,
		MaxRetries:    3,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	def := DefaultConfig(cfg.Path)
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = def.DebounceDelay
	}

	return &Plugin{
		path:          cfg.Path,
		retryInterval: cfg.RetryInterval,
		maxRetries:    cfg.MaxRetries,
		debounceDelay: cfg.DebounceDelay,
		logger:        log.NewNoopLogger(),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file.
func (p *Plugin) Initialize(ctx context.Context, cfg rpcagg.PluginConfig) error {
	p.mu.Lock()
	if cfg.Logger != nil {
		p.logger = cfg.Logger.With(log.String("plugin", p.Name()))
	}
	p.tuner = cfg.Tuner
	p.mu.Unlock()

	if p.path == "" || p.tuner == nil {
		p.logger.Warn("config watcher disabled: no config file or tuner")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	p.stopDebounce()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reloads returns the number of successful reloads.
func (p *Plugin) Reloads() uint64 {
	return p.reloads.Load()
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopDebounce()
	p.wg.Add(1)
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		defer p.wg.Done()
		p.reloadWithRetry(ctx)
	})
}

// stopDebounce cancels a pending reload. A timer stopped before firing never
// runs its Done, so it is released here. Callers hold p.mu.
func (p *Plugin) stopDebounce() {
	if p.debounce != nil && p.debounce.Stop() {
		p.wg.Done()
	}
	p.debounce = nil
}

// reloadWithRetry re-reads the file until it parses or retries run out.
func (p *Plugin) reloadWithRetry(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		err := p.reload()
		if err == nil {
			p.reloads.Add(1)
			return
		}
		if attempt >= p.maxRetries {
			p.failed.Add(1)
			p.logger.Error("config reload failed", log.Err(err), log.Int("attempts", attempt+1))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}
}

func (p *Plugin) reload() error {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		return err
	}

	if fc.FlushInterval != "" {
		d, err := time.ParseDuration(fc.FlushInterval)
		if err != nil {
			return fmt.Errorf("parse flush_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("flush_interval must be positive, got %s", d)
		}
		if d != p.tuner.FlushInterval() {
			p.tuner.SetFlushInterval(d)
			p.logger.Info("applied flush interval", log.Duration("interval", d))
		}
	}

	if fc.Capacity != nil && *fc.Capacity != 0 && *fc.Capacity != p.tuner.Capacity() {
		p.logger.Warn("capacity change needs a restart",
			log.Int("configured", *fc.Capacity),
			log.Int("current", p.tuner.Capacity()),
		)
	}
	return nil
}

// Ensure Plugin implements rpcagg.Plugin.
var _ rpcagg.Plugin = (*Plugin)(nil)
