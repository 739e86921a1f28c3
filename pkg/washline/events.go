package washline

import (
	"github.com/bft-labs/washline/internal/app"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/pkg/lifecycle"
)

// Re-exported state and report types.
type (
	State       = lifecycle.State
	SyncState   = app.SyncState
	Mutation    = domain.Mutation
	DrainReport = app.DrainReport
)

// App states.
const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// Sync states.
const (
	SyncIdle     = app.SyncIdle
	SyncDraining = app.SyncDraining
)

// StateChangeEvent describes an App lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SyncStateEvent describes a coordinator transition.
type SyncStateEvent struct {
	Previous SyncState
	Current  SyncState
	Reason   string
}

// DropEvent describes a queued mutation that was discarded.
type DropEvent struct {
	Mutation Mutation
	Error    error
}

// EventHandler receives App events. Embed BaseEventHandler to implement
// only the methods you need.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnSyncStateChange(event SyncStateEvent)
	OnReplayed(m Mutation)
	OnDropped(event DropEvent)
	OnDrainComplete(report DrainReport)
}

// BaseEventHandler ignores every event.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)  {}
func (BaseEventHandler) OnSyncStateChange(SyncStateEvent) {}
func (BaseEventHandler) OnReplayed(Mutation)             {}
func (BaseEventHandler) OnDropped(DropEvent)             {}
func (BaseEventHandler) OnDrainComplete(DrainReport)     {}

// lifecycleEvents adapts EventHandler to lifecycle.EventEmitter.
type lifecycleEvents struct {
	handler EventHandler
}

func (e lifecycleEvents) OnStateChange(previous, current lifecycle.State, reason string) {
	e.handler.OnStateChange(StateChangeEvent{Previous: previous, Current: current, Reason: reason})
}

// syncEvents adapts EventHandler to app.EventHandler and schedules a cache
// refresh after a drain that emptied the queue.
type syncEvents struct {
	handler EventHandler
	drained func()
}

func (e syncEvents) OnStateChange(previous, current app.SyncState, reason string) {
	if e.handler != nil {
		e.handler.OnSyncStateChange(SyncStateEvent{Previous: previous, Current: current, Reason: reason})
	}
}

func (e syncEvents) OnReplayed(m domain.Mutation) {
	if e.handler != nil {
		e.handler.OnReplayed(m)
	}
}

func (e syncEvents) OnDropped(m domain.Mutation, err error) {
	if e.handler != nil {
		e.handler.OnDropped(DropEvent{Mutation: m, Error: err})
	}
}

func (e syncEvents) OnDrainComplete(report app.DrainReport) {
	if e.handler != nil {
		e.handler.OnDrainComplete(report)
	}
	if report.Remaining == 0 && e.drained != nil {
		e.drained()
	}
}
