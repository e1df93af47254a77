// Package lifecycle provides the state machine and task supervision used by
// the aggregation runtime.
//
// # Usage
//
//	manager := lifecycle.NewManager(logger, eventEmitter)
//	if err := manager.TransitionTo(lifecycle.StateStarting, "starting"); err != nil {
//	    return err
//	}
//
//	group := lifecycle.NewGroup(ctx, manager, logger)
//	group.Go("flusher-0", flusher.Run)
//	_ = manager.TransitionTo(lifecycle.StateRunning, "started")
//
//	// Graceful shutdown
//	manager.Cancel()
//	if err := manager.WaitWithTimeout(lifecycle.ShutdownTimeout); err != nil {
//	    return err
//	}
//
// # State Machine
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting, Stopping
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package lifecycle
