// Package lifecycle provides the run state machine of an embedded washline App.
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting
//
// Background loops are started with [Lifecycle.Go] and awaited with
// [Lifecycle.Wait]:
//
//	lc := lifecycle.New(logger, nil)
//	_ = lc.TransitionTo(lifecycle.StateStarting, "start")
//	lc.Go("probe", func() error { return probe.Run(ctx) })
//	_ = lc.TransitionTo(lifecycle.StateRunning, "started")
//	...
//	lc.Cancel()
//	err := lc.Wait(lifecycle.ShutdownTimeout)
package lifecycle
