package fsm

import "fmt"

// arena holds the identity and debug labels of every state declared on one
// builder. The finalized table shares it, so handles stay valid across Finalize.
type arena struct {
	table string
	names []string
}

// State is a handle to a state declared on a Builder. Two handles are equal
// only when they refer to the same declaration; equal names do not alias.
// The zero State is invalid.
type State struct {
	arena *arena
	index int
}

// Name returns the debug label of the state.
func (s State) Name() string {
	if s.arena == nil || s.index < 0 || s.index >= len(s.arena.names) {
		return "<nil>"
	}

	return s.arena.names[s.index]
}

func (s State) String() string {
	return s.Name()
}

// IsZero reports whether s is the zero State.
func (s State) IsZero() bool {
	return s.arena == nil
}

func (s State) check(owner *arena) error {
	if s.arena == nil || s.index < 0 || s.index >= len(s.arena.names) {
		return ErrUnknownState
	}

	if s.arena != owner {
		return fmt.Errorf("%w: %s belongs to %s, not %s", ErrForeignState, s.Name(), s.arena.table, owner.table)
	}

	return nil
}

// HookKind distinguishes entry and exit hooks.
type HookKind string

const (
	EntryHook HookKind = "entry"
	ExitHook  HookKind = "exit"
)

// stateNode is the mutable, build-time form of a state.
type stateNode struct {
	transitions   map[Input][]GuardedTransition
	inputs        []Input
	hasDefault    bool
	defaultAction Action
	defaultNext   State
	entry         Action
	exit          Action
}

func newStateNode() *stateNode {
	return &stateNode{
		transitions: make(map[Input][]GuardedTransition),
	}
}

// compile returns the frozen copy of n used by a Table. Default resolution
// happens here so selection only reads it.
func (n *stateNode) compile(self State) stateNode {
	transitions := make(map[Input][]GuardedTransition, len(n.transitions))
	for in, candidates := range n.transitions {
		transitions[in] = append([]GuardedTransition(nil), candidates...)
	}

	compiled := stateNode{
		transitions: transitions,
		inputs:      append([]Input(nil), n.inputs...),
		hasDefault:  n.hasDefault,
		entry:       n.entry,
		exit:        n.exit,
	}

	if n.hasDefault {
		compiled.defaultAction = n.defaultAction
		if compiled.defaultAction == nil {
			compiled.defaultAction = Noop()
		}

		compiled.defaultNext = n.defaultNext
		if compiled.defaultNext.IsZero() {
			compiled.defaultNext = self
		}
	}

	return compiled
}
