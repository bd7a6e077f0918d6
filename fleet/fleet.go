// Package fleet manages many machines of one fsm table and fans inputs out to
// them on a bounded worker pool.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

var (
	// ErrClosed is returned by every operation on a closed fleet.
	ErrClosed = errors.New("fleet is closed")
	// ErrUnknownMachine indicates an ID that is not part of the fleet.
	ErrUnknownMachine = errors.New("unknown machine")
	// ErrDuplicateMachine indicates a machine that is already part of the fleet.
	ErrDuplicateMachine = errors.New("machine already in fleet")
	// ErrForeignMachine indicates a machine running on a different table.
	ErrForeignMachine = errors.New("machine runs on another table")
)

// Fleet owns a set of serialized machines that share one table. Deliveries to
// a single machine are serialized; different machines progress in parallel.
type Fleet struct {
	table *fsm.Table
	pool  pond.Pool

	mu       sync.RWMutex
	machines map[uuid.UUID]*fsm.SyncMachine

	closed     *atomic.Bool
	broadcasts *atomic.Int64
	deliveries *atomic.Int64
	failures   *atomic.Int64
}

// Stats is a point in time view of the fleet counters.
type Stats struct {
	Machines   int
	Broadcasts int64
	Deliveries int64
	Failures   int64
}

// New creates a fleet for table.
func New(table *fsm.Table, opts ...Option) (*Fleet, error) {
	if !table.Frozen() {
		return nil, fsm.ErrTableNotFrozen
	}

	cfg := options{workers: defaultWorkers}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Fleet{
		table:      table,
		pool:       pond.NewPool(cfg.workers),
		machines:   make(map[uuid.UUID]*fsm.SyncMachine),
		closed:     atomic.NewBool(false),
		broadcasts: atomic.NewInt64(0),
		deliveries: atomic.NewInt64(0),
		failures:   atomic.NewInt64(0),
	}, nil
}

// Table returns the table every machine of the fleet runs on.
func (f *Fleet) Table() *fsm.Table {
	return f.table
}

// Spawn creates a machine at start and adds it to the fleet.
func (f *Fleet) Spawn(start fsm.State) (*fsm.SyncMachine, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}

	m, err := f.table.NewSyncMachine(start)
	if err != nil {
		return nil, err
	}

	err = f.Add(m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Add puts an existing machine under the fleet's management.
func (f *Fleet) Add(m *fsm.SyncMachine) error {
	if f.closed.Load() {
		return ErrClosed
	}

	if m.Table() != f.table {
		return fmt.Errorf("%w: %s", ErrForeignMachine, m.ID())
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.machines[m.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMachine, m.ID())
	}

	f.machines[m.ID()] = m

	return nil
}

// Remove drops a machine from the fleet. It reports whether it was present.
func (f *Fleet) Remove(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.machines[id]
	delete(f.machines, id)

	return ok
}

// Get returns the machine with the given ID.
func (f *Fleet) Get(id uuid.UUID) (*fsm.SyncMachine, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	m, ok := f.machines[id]

	return m, ok
}

// Len returns the number of machines in the fleet.
func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.machines)
}

// States returns the current state of every machine.
func (f *Fleet) States() map[uuid.UUID]fsm.State {
	snapshot := f.snapshot()
	states := make(map[uuid.UUID]fsm.State, len(snapshot))

	for id, m := range snapshot {
		states[id] = m.CurrentState()
	}

	return states
}

// Deliver delivers in to a single machine on the caller's goroutine.
func (f *Fleet) Deliver(ctx context.Context, id uuid.UUID, in fsm.Input) error {
	if f.closed.Load() {
		return ErrClosed
	}

	m, ok := f.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMachine, id)
	}

	return f.deliver(ctx, m, in)
}

// Broadcast delivers in to every machine concurrently on the fleet's worker
// pool and waits for all of them. Machines whose delivery failed are reported
// in a *BroadcastError; the others have moved on regardless.
func (f *Fleet) Broadcast(ctx context.Context, in fsm.Input) error {
	if f.closed.Load() {
		return ErrClosed
	}

	f.broadcasts.Inc()

	snapshot := f.snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		failures = make(map[uuid.UUID]error)
	)

	fail := func(id uuid.UUID, err error) {
		mu.Lock()
		defer mu.Unlock()

		failures[id] = err
	}

	tasks := make(map[uuid.UUID]pond.Task, len(snapshot))

	for id, m := range snapshot {
		tasks[id] = f.pool.Submit(func() {
			if err := ctx.Err(); err != nil {
				f.failures.Inc()
				fail(id, err)

				return
			}

			err := f.deliver(ctx, m, in)
			if err != nil {
				fail(id, err)
			}
		})
	}

	for id, task := range tasks {
		// A panicking delivery surfaces here; the pool recovers it.
		err := task.Wait()
		if err != nil {
			f.failures.Inc()
			fail(id, err)
		}
	}

	if len(failures) == 0 {
		return nil
	}

	logger.Get(ctx).WarnContext(ctx, "Broadcast had failures",
		"table", f.table.Name(),
		"input", in.Name(),
		"machines", len(snapshot),
		"failed", len(failures))

	return &BroadcastError{Input: in.Name(), Failures: failures}
}

// Stats returns the fleet counters.
func (f *Fleet) Stats() Stats {
	return Stats{
		Machines:   f.Len(),
		Broadcasts: f.broadcasts.Load(),
		Deliveries: f.deliveries.Load(),
		Failures:   f.failures.Load(),
	}
}

// Close stops the worker pool after in-flight broadcasts finish. Machines stay
// valid and can still be driven directly.
func (f *Fleet) Close() {
	if f.closed.Swap(true) {
		return
	}

	f.pool.StopAndWait()
}

func (f *Fleet) deliver(ctx context.Context, m *fsm.SyncMachine, in fsm.Input) error {
	f.deliveries.Inc()

	err := m.Deliver(ctx, in)
	if err != nil {
		f.failures.Inc()
	}

	return err
}

func (f *Fleet) snapshot() map[uuid.UUID]*fsm.SyncMachine {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return maps.Clone(f.machines)
}

// BroadcastError collects the per-machine failures of a Broadcast.
type BroadcastError struct {
	Input    string
	Failures map[uuid.UUID]error
}

func (e *BroadcastError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id.String())
	}

	sort.Strings(ids)

	return fmt.Sprintf("broadcast of %q failed on %d machine(s): %s", e.Input, len(e.Failures), strings.Join(ids, ", "))
}

// Unwrap exposes every per-machine failure to errors.Is and errors.As.
func (e *BroadcastError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}

	return errs
}
