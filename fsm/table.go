package fsm

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Table is a frozen transition table. It is produced by Builder.Finalize,
// never changes afterwards, and may be shared by any number of machines and
// goroutines.
type Table struct {
	arena        *arena
	states       []stateNode
	tableDefault Action
	sink         TraceSink
	maxDeferrals int
	tracer       trace.Tracer
	fatal        []error
}

func invalidTransition() Action { //nolint:ireturn
	return NewAction("invalid-transition", func(_ context.Context, m *Machine, in Input) error {
		return &TransitionError{
			State: m.CurrentState().Name(),
			Input: inputName(in),
			Err:   ErrInvalidTransition,
		}
	})
}

func (t *Table) frozen() bool {
	return t != nil && t.arena != nil
}

// Frozen reports whether t was produced by Builder.Finalize.
func (t *Table) Frozen() bool {
	return t.frozen()
}

// Name returns the debug name given to NewBuilder.
func (t *Table) Name() string {
	if !t.frozen() {
		return ""
	}

	return t.arena.table
}

// States returns every state in declaration order.
func (t *Table) States() []State {
	if !t.frozen() {
		return nil
	}

	states := make([]State, len(t.states))
	for i := range t.states {
		states[i] = State{arena: t.arena, index: i}
	}

	return states
}

// Lookup returns the first declared state with the given name.
func (t *Table) Lookup(name string) (State, bool) {
	if !t.frozen() {
		return State{}, false
	}

	idx := slices.Index(t.arena.names, name)
	if idx < 0 {
		return State{}, false
	}

	return State{arena: t.arena, index: idx}, true
}

// Transitions returns a copy of the candidates registered for in on s, in
// evaluation order.
func (t *Table) Transitions(s State, in Input) []GuardedTransition {
	node, err := t.node(s)
	if err != nil {
		return nil
	}

	return slices.Clone(node.transitions[in])
}

// Inputs returns the inputs that have at least one candidate on s, in the
// order they were first registered.
func (t *Table) Inputs(s State) []Input {
	node, err := t.node(s)
	if err != nil {
		return nil
	}

	return slices.Clone(node.inputs)
}

// Default returns the state-local fallback of s, if one was set.
func (t *Table) Default(s State) (Action, State, bool) { //nolint:ireturn
	node, err := t.node(s)
	if err != nil || !node.hasDefault {
		return nil, State{}, false
	}

	return node.defaultAction, node.defaultNext, true
}

// TableDefaultAction returns the fallback used by states without a local default.
func (t *Table) TableDefaultAction() Action { //nolint:ireturn
	if !t.frozen() {
		return nil
	}

	return t.tableDefault
}

// EntryAction returns the entry hook of s, or nil.
func (t *Table) EntryAction(s State) Action { //nolint:ireturn
	node, err := t.node(s)
	if err != nil {
		return nil
	}

	return node.entry
}

// ExitAction returns the exit hook of s, or nil.
func (t *Table) ExitAction(s State) Action { //nolint:ireturn
	node, err := t.node(s)
	if err != nil {
		return nil
	}

	return node.exit
}

// MaxDeferrals returns the deferral cap, zero meaning unbounded.
func (t *Table) MaxDeferrals() int {
	if !t.frozen() {
		return 0
	}

	return t.maxDeferrals
}

// NewMachine returns a machine positioned at start.
func (t *Table) NewMachine(start State) (*Machine, error) {
	if !t.frozen() {
		return nil, ErrTableNotFrozen
	}

	err := start.check(t.arena)
	if err != nil {
		return nil, fmt.Errorf("new machine: %w", err)
	}

	return &Machine{
		id:      uuid.New(),
		table:   t,
		current: start,
	}, nil
}

// MustNewMachine is NewMachine for callers holding a known-good start state.
func (t *Table) MustNewMachine(start State) *Machine {
	m, err := t.NewMachine(start)
	if err != nil {
		panic(fmt.Sprintf("failed to create machine: %v", err))
	}

	return m
}

func (t *Table) node(s State) (*stateNode, error) {
	if !t.frozen() {
		return nil, ErrTableNotFrozen
	}

	err := s.check(t.arena)
	if err != nil {
		return nil, err
	}

	return &t.states[s.index], nil
}
