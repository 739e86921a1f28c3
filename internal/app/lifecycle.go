package app

import (
	"errors"
	"sync"

	"github.com/bft-labs/washline/internal/ports"
)

// SyncState is the state of the sync coordinator.
type SyncState int

const (
	// SyncIdle means no drain is running; the queue is frozen.
	SyncIdle SyncState = iota
	// SyncDraining means queued mutations are being replayed.
	SyncDraining
)

// String returns a human-readable representation of the state.
func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "Idle"
	case SyncDraining:
		return "Draining"
	default:
		return "Unknown"
	}
}

var errInvalidSyncTransition = errors.New("washline: invalid sync state transition")

// stateMachine guards the Idle <-> Draining transitions.
type stateMachine struct {
	mu      sync.RWMutex
	state   SyncState
	logger  ports.Logger
	emitter StateEmitter
}

// StateEmitter is notified when the sync state changes.
type StateEmitter interface {
	OnStateChange(previous, current SyncState, reason string)
}

func newStateMachine(logger ports.Logger, emitter StateEmitter) *stateMachine {
	return &stateMachine{state: SyncIdle, logger: logger, emitter: emitter}
}

// State returns the current state.
func (m *stateMachine) State() SyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TransitionTo moves to next, rejecting anything but Idle->Draining and
// Draining->Idle.
func (m *stateMachine) TransitionTo(next SyncState, reason string) error {
	m.mu.Lock()
	prev := m.state
	switch {
	case prev == SyncIdle && next == SyncDraining:
	case prev == SyncDraining && next == SyncIdle:
	default:
		m.mu.Unlock()
		return errInvalidSyncTransition
	}
	m.state = next
	m.mu.Unlock()

	// Emit outside of lock
	if m.emitter != nil {
		m.emitter.OnStateChange(prev, next, reason)
	}
	m.logger.Debug("sync state transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}
