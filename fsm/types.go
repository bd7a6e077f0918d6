package fsm

import "context"

// Input identifies an event class that can be delivered to a machine.
// Inputs are compared with ==, so the dynamic type must be comparable.
type Input interface {
	Name() string
}

// StringInput is a ready-made Input for the common case.
type StringInput string

func (s StringInput) Name() string {
	return string(s)
}

// GuardResult is the outcome of evaluating a Guard.
type GuardResult int

const (
	// Disabled skips the candidate and moves on to the next one.
	Disabled GuardResult = iota
	// Enabled selects the candidate and stops the scan.
	Enabled
	// Deferred stops the scan and restarts selection from scratch.
	Deferred
)

func (r GuardResult) String() string {
	switch r {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Guard decides whether a candidate transition may fire.
// Evaluate must not mutate the machine.
type Guard interface {
	Name() string
	Evaluate(ctx context.Context, m *Machine, in Input) GuardResult
}

// Action is a side-effecting callback run during a transition, or as an
// entry/exit hook of a state.
type Action interface {
	Name() string
	Execute(ctx context.Context, m *Machine, in Input) error
}

// GuardFunc adapts a function to the Guard interface via NewGuard.
type GuardFunc func(ctx context.Context, m *Machine, in Input) GuardResult

// ActionFunc adapts a function to the Action interface via NewAction.
type ActionFunc func(ctx context.Context, m *Machine, in Input) error

type funcGuard struct {
	name string
	fn   GuardFunc
}

// NewGuard creates a named guard from a function.
func NewGuard(name string, fn GuardFunc) Guard { //nolint:ireturn
	return &funcGuard{name: name, fn: fn}
}

func (g *funcGuard) Name() string {
	return g.name
}

func (g *funcGuard) Evaluate(ctx context.Context, m *Machine, in Input) GuardResult {
	return g.fn(ctx, m, in)
}

//nolint:gochecknoglobals
var always = NewGuard("always", func(context.Context, *Machine, Input) GuardResult {
	return Enabled
})

// Always returns the guard that is unconditionally enabled. Transitions added
// without WithGuard use it.
func Always() Guard { //nolint:ireturn
	return always
}

type funcAction struct {
	name string
	fn   ActionFunc
}

// NewAction creates a named action from a function.
func NewAction(name string, fn ActionFunc) Action { //nolint:ireturn
	return &funcAction{name: name, fn: fn}
}

func (a *funcAction) Name() string {
	return a.name
}

func (a *funcAction) Execute(ctx context.Context, m *Machine, in Input) error {
	return a.fn(ctx, m, in)
}

type noopAction struct{}

func (noopAction) Name() string {
	return "noop"
}

func (noopAction) Execute(context.Context, *Machine, Input) error {
	return nil
}

// Noop returns the distinguished no-op action. The engine recognizes it and
// never invokes it.
func Noop() Action { //nolint:ireturn
	return noopAction{}
}

func isNoop(a Action) bool {
	if a == nil {
		return true
	}

	_, ok := a.(noopAction)

	return ok
}

// GuardedTransition is one candidate under a (state, input) pair. It is
// immutable once registered.
type GuardedTransition struct {
	guard  Guard
	action Action
	next   State
}

func (g GuardedTransition) Guard() Guard { //nolint:ireturn
	return g.guard
}

func (g GuardedTransition) Action() Action { //nolint:ireturn
	return g.action
}

func (g GuardedTransition) Next() State {
	return g.next
}

func inputName(in Input) string {
	if in == nil {
		return "<nil>"
	}

	return in.Name()
}

func actionName(a Action) string {
	if a == nil {
		return "noop"
	}

	return a.Name()
}
