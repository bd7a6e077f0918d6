package fsm

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/atomic"
)

const tracerName = "github.com/amp-labs/amp-fsm/fsm"

// Builder accumulates states and guarded transitions. It is not safe for
// concurrent use. Finalize freezes it into a Table; every mutator called after
// that fails with ErrTableFrozen and changes nothing.
type Builder struct {
	arena        *arena
	nodes        []*stateNode
	tableDefault Action
	opts         options
	frozen       *atomic.Bool
}

// NewBuilder creates a builder for a table with the given debug name.
func NewBuilder(name string, opts ...Option) *Builder {
	builder := &Builder{
		arena:  &arena{table: name},
		frozen: atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt(&builder.opts)
	}

	return builder
}

// AddState declares a new state. Names are debug labels only; declaring two
// states with the same name yields two distinct states.
func (b *Builder) AddState(name string, opts ...StateOption) (State, error) {
	if b.frozen.Load() {
		return State{}, fmt.Errorf("add state %q: %w", name, ErrTableFrozen)
	}

	if name == "" {
		return State{}, ErrStateNameRequired
	}

	node := newStateNode()
	for _, opt := range opts {
		opt(node)
	}

	b.arena.names = append(b.arena.names, name)
	b.nodes = append(b.nodes, node)

	return State{arena: b.arena, index: len(b.nodes) - 1}, nil
}

// MustAddState is AddState for static table declarations; it panics on error.
func (b *Builder) MustAddState(name string, opts ...StateOption) State {
	state, err := b.AddState(name, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to add state: %v", err))
	}

	return state
}

// SetEntryAction replaces the entry hook of a state. A nil action removes it.
func (b *Builder) SetEntryAction(state State, action Action) error {
	node, err := b.node("set entry action", state)
	if err != nil {
		return err
	}

	node.entry = action

	return nil
}

// SetExitAction replaces the exit hook of a state. A nil action removes it.
func (b *Builder) SetExitAction(state State, action Action) error {
	node, err := b.node("set exit action", state)
	if err != nil {
		return err
	}

	node.exit = action

	return nil
}

// AddTransition appends a guarded transition to from's candidates for in.
// Candidates for the same (state, input) are evaluated in the order they were
// added. A nil action is treated as Noop.
func (b *Builder) AddTransition(from State, in Input, action Action, to State, opts ...TransitionOption) error {
	node, err := b.node("add transition", from)
	if err != nil {
		return err
	}

	if in == nil {
		return fmt.Errorf("add transition from %s: %w", from, ErrNilInput)
	}

	err = to.check(b.arena)
	if err != nil {
		return fmt.Errorf("add transition %s -> ? on %s: %w", from, in.Name(), err)
	}

	if action == nil {
		action = Noop()
	}

	transition := GuardedTransition{
		guard:  Always(),
		action: action,
		next:   to,
	}

	for _, opt := range opts {
		opt(&transition)
	}

	if _, seen := node.transitions[in]; !seen {
		node.inputs = append(node.inputs, in)
	}

	node.transitions[in] = append(node.transitions[in], transition)

	return nil
}

// SetDefault sets the state-local fallback used when no candidate for the
// delivered input is enabled.
func (b *Builder) SetDefault(from State, opts ...DefaultOption) error {
	node, err := b.node("set default", from)
	if err != nil {
		return err
	}

	var cfg defaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.target.IsZero() {
		err = cfg.target.check(b.arena)
		if err != nil {
			return fmt.Errorf("set default of %s: %w", from, err)
		}
	}

	node.hasDefault = true
	node.defaultAction = cfg.action
	node.defaultNext = cfg.target

	return nil
}

// SetTableDefaultAction overrides the fallback used by states without a local
// default. The built-in fallback fails with ErrInvalidTransition.
func (b *Builder) SetTableDefaultAction(action Action) error {
	if b.frozen.Load() {
		return fmt.Errorf("set table default action: %w", ErrTableFrozen)
	}

	if action == nil {
		return fmt.Errorf("set table default action: %w", ErrNilAction)
	}

	b.tableDefault = action

	return nil
}

// Finalize freezes the builder and returns the immutable table. It can only
// succeed once.
func (b *Builder) Finalize() (*Table, error) {
	if b.frozen.Swap(true) {
		return nil, fmt.Errorf("finalize %s: %w", b.arena.table, ErrTableFrozen)
	}

	table := &Table{
		arena:        b.arena,
		states:       make([]stateNode, len(b.nodes)),
		tableDefault: b.tableDefault,
		sink:         b.opts.sink,
		maxDeferrals: b.opts.maxDeferrals,
		fatal:        b.opts.fatal,
	}

	if table.tableDefault == nil {
		table.tableDefault = invalidTransition()
	}

	if table.sink == nil {
		table.sink = NopSink{}
	}

	provider := b.opts.tracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	table.tracer = provider.Tracer(tracerName)

	for i, node := range b.nodes {
		table.states[i] = node.compile(State{arena: b.arena, index: i})
	}

	// The builder keeps no references the table depends on.
	b.nodes = nil

	return table, nil
}

// MustFinalize is Finalize for static table declarations; it panics on error.
func (b *Builder) MustFinalize() *Table {
	table, err := b.Finalize()
	if err != nil {
		panic(fmt.Sprintf("failed to finalize table: %v", err))
	}

	return table
}

func (b *Builder) node(op string, state State) (*stateNode, error) {
	if b.frozen.Load() {
		return nil, fmt.Errorf("%s: %w", op, ErrTableFrozen)
	}

	err := state.check(b.arena)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b.nodes[state.index], nil
}
