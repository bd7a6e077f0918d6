package fsm

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SyncMachine serializes deliveries to a Machine so it can be shared between
// goroutines. Guards and actions still see the inner *Machine.
type SyncMachine struct {
	mu sync.Mutex
	m  *Machine
}

// NewSyncMachine returns a serialized machine positioned at start.
func (t *Table) NewSyncMachine(start State) (*SyncMachine, error) {
	m, err := t.NewMachine(start)
	if err != nil {
		return nil, err
	}

	return &SyncMachine{m: m}, nil
}

// Synchronized wraps an existing machine. The caller must stop using m directly.
func Synchronized(m *Machine) *SyncMachine {
	return &SyncMachine{m: m}
}

func (s *SyncMachine) ID() uuid.UUID {
	return s.m.ID()
}

func (s *SyncMachine) Table() *Table {
	return s.m.Table()
}

// CurrentState returns the state once any in-flight delivery has finished.
func (s *SyncMachine) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m.CurrentState()
}

// Deliver is Machine.Deliver under the machine's lock. Guards and actions get
// the inner *Machine and must not call back into s, which would deadlock.
func (s *SyncMachine) Deliver(ctx context.Context, in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m.Deliver(ctx, in)
}
