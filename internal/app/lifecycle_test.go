package app

import (
	"sync"
	"testing"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (*mockLogger) Debug(msg string, fields ...ports.Field) {}
func (*mockLogger) Info(msg string, fields ...ports.Field)  {}
func (l *mockLogger) Warn(msg string, fields ...ports.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (*mockLogger) Error(msg string, fields ...ports.Field) {}

func (l *mockLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.warns...)
}

// mockEmitter tracks coordinator events for testing.
type mockEmitter struct {
	mu       sync.Mutex
	events   []stateChangeEvent
	replayed []domain.Mutation
	dropped  []domain.Mutation
	reports  []DrainReport

	onReplayed func(domain.Mutation)
}

type stateChangeEvent struct {
	previous SyncState
	current  SyncState
	reason   string
}

func (m *mockEmitter) OnStateChange(previous, current SyncState, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{previous, current, reason})
}

func (m *mockEmitter) OnReplayed(mut domain.Mutation) {
	m.mu.Lock()
	m.replayed = append(m.replayed, mut)
	hook := m.onReplayed
	m.mu.Unlock()
	if hook != nil {
		hook(mut)
	}
}

func (m *mockEmitter) OnDropped(mut domain.Mutation, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, mut)
}

func (m *mockEmitter) OnDrainComplete(report DrainReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func (m *mockEmitter) Dropped() []domain.Mutation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Mutation{}, m.dropped...)
}

func TestSyncState_String(t *testing.T) {
	tests := []struct {
		state SyncState
		want  string
	}{
		{SyncIdle, "Idle"},
		{SyncDraining, "Draining"},
		{SyncState(99), "Unknown"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("SyncState(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestStateMachine_InitialState(t *testing.T) {
	m := newStateMachine(&mockLogger{}, nil)
	if m.State() != SyncIdle {
		t.Errorf("initial state = %v, want Idle", m.State())
	}
}

func TestStateMachine_TransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    SyncState
		to      SyncState
		wantErr bool
	}{
		{"idle to draining", SyncIdle, SyncDraining, false},
		{"draining to idle", SyncDraining, SyncIdle, false},
		{"idle to idle", SyncIdle, SyncIdle, true},
		{"draining to draining", SyncDraining, SyncDraining, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStateMachine(&mockLogger{}, nil)
			m.state = tt.from

			err := m.TransitionTo(tt.to, "test")

			if (err != nil) != tt.wantErr {
				t.Errorf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			want := tt.to
			if tt.wantErr {
				want = tt.from
			}
			if m.State() != want {
				t.Errorf("state = %v, want %v", m.State(), want)
			}
		})
	}
}

func TestStateMachine_EmitsEvents(t *testing.T) {
	emitter := &mockEmitter{}
	m := newStateMachine(&mockLogger{}, emitter)

	_ = m.TransitionTo(SyncDraining, "online")
	_ = m.TransitionTo(SyncIdle, "queue drained")

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].previous != SyncIdle || events[0].current != SyncDraining || events[0].reason != "online" {
		t.Errorf("event 0: got %+v", events[0])
	}
	if events[1].previous != SyncDraining || events[1].current != SyncIdle {
		t.Errorf("event 1: got %v->%v, want Draining->Idle", events[1].previous, events[1].current)
	}
}

func TestStateMachine_ConcurrentTransitions(t *testing.T) {
	m := newStateMachine(&mockLogger{}, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		entered int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.TransitionTo(SyncDraining, "race") == nil {
				mu.Lock()
				entered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if entered != 1 {
		t.Errorf("%d goroutines entered Draining, want 1", entered)
	}
}
