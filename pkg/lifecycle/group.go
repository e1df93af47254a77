package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/rpcagg/pkg/log"
)

// Group runs long-lived tasks under a Manager's worker accounting. A task
// that returns an error other than context cancellation moves the manager
// to Crashed and cancels the remaining tasks.
type Group struct {
	manager *DefaultManager
	logger  log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewGroup derives a cancelable context from parent and registers its cancel
// function with m for graceful shutdown.
func NewGroup(parent context.Context, m *DefaultManager, logger log.Logger) *Group {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	ctx, cancel := context.WithCancel(parent)
	m.SetCancel(cancel)
	return &Group{manager: m, logger: logger, ctx: ctx, cancel: cancel}
}

// Context returns the context passed to every task.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts fn on its own goroutine.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.manager.AddWorker()
	go func() {
		defer g.manager.WorkerDone()
		err := g.run(fn)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			g.logger.Debug("task stopped", log.String("task", name))
			return
		}
		g.logger.Error("task failed", log.String("task", name), log.Err(err))
		if g.manager.State().Active() {
			_ = g.manager.TransitionTo(StateCrashed, fmt.Sprintf("%s: %v", name, err))
		}
		g.cancel()
	}()
}

func (g *Group) run(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(g.ctx)
}
