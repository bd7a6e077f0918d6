package fsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Machine is a cursor over a frozen Table. It is not safe for concurrent use;
// wrap it in a SyncMachine when it has to be shared between goroutines.
type Machine struct {
	id         uuid.UUID
	table      *Table
	current    State
	delivering bool
}

// ID returns the identity used to correlate traces, logs and spans.
func (m *Machine) ID() uuid.UUID {
	return m.id
}

// Table returns the table the machine runs on.
func (m *Machine) Table() *Table {
	return m.table
}

// CurrentState returns the state the machine is in.
func (m *Machine) CurrentState() State {
	return m.current
}

// Is reports whether the machine is currently in s.
func (m *Machine) Is(s State) bool {
	return m.current == s
}

func (m *Machine) String() string {
	return fmt.Sprintf("%s[%s]@%s", m.table.Name(), m.id, m.current)
}

// Deliver runs one input through the machine: it selects a transition and
// performs it. The call is synchronous and returns once the machine has
// settled.
//
// An error from the selected action is returned after the state has already
// moved to the transition's target. Entry and exit hook failures are
// suppressed and only show up in traces, unless they are fatal (see Fatal and
// WithFatalErrors), in which case the delivery stops where it is and the
// state is left untouched. A fatal hook panic is re-raised. A guard that keeps
// deferring is retried until the table's deferral cap, or until ctx is done.
func (m *Machine) Deliver(ctx context.Context, in Input) (err error) {
	if m.table == nil || !m.table.frozen() {
		return ErrTableNotFrozen
	}

	if in == nil {
		return ErrNilInput
	}

	if m.delivering {
		return fmt.Errorf("deliver %s to %s: %w", in.Name(), m.current, ErrReentrantDelivery)
	}

	m.delivering = true
	defer func() { m.delivering = false }()

	ctx, span := m.startDeliverySpan(ctx, in)

	d := &delivery{
		m:     m,
		ctx:   ctx,
		in:    in,
		span:  span,
		from:  m.current,
		start: time.Now(),
	}

	d.emit(d.record(DeliveryStarted))

	defer func() {
		if r := recover(); r != nil {
			d.finish(&PanicError{Value: r})
			panic(r)
		}

		d.finish(err)
	}()

	sel, err := d.selectTransition()
	if err != nil {
		return err
	}

	return d.perform(sel)
}

// delivery holds the per-call state of Deliver.
type delivery struct {
	m       *Machine
	ctx     context.Context //nolint:containedctx
	in      Input
	span    trace.Span
	from    State
	start   time.Time
	attempt int
}

type selection struct {
	action Action
	next   State
	index  int
	guard  string
}

func (d *delivery) record(kind TraceKind) TraceRecord {
	return TraceRecord{
		Kind:       kind,
		Time:       time.Now(),
		Table:      d.m.table.Name(),
		MachineID:  d.m.id,
		State:      d.m.current.Name(),
		Input:      inputName(d.in),
		Attempt:    d.attempt,
		GuardIndex: -1,
	}
}

func (d *delivery) emit(rec TraceRecord) {
	d.m.table.sink.Trace(d.ctx, rec)
}

func (d *delivery) selectTransition() (selection, error) {
	node := &d.m.table.states[d.m.current.index]
	deferrals := 0

	for {
		d.attempt++

		sel, deferred := d.scan(node)
		if !deferred {
			rec := d.record(TransitionSelected)
			rec.GuardIndex = sel.index
			rec.Guard = sel.guard
			rec.Action = actionName(sel.action)
			rec.Next = sel.next.Name()
			d.emit(rec)

			return sel, nil
		}

		deferrals++

		rec := d.record(DeliveryDeferred)
		rec.GuardIndex = sel.index
		rec.Guard = sel.guard
		rec.Result = Deferred
		d.emit(rec)

		if limit := d.m.table.maxDeferrals; limit > 0 && deferrals > limit {
			return selection{}, &DeferralError{
				State:    d.m.current.Name(),
				Input:    inputName(d.in),
				Attempts: deferrals,
			}
		}

		if err := d.ctx.Err(); err != nil {
			return selection{}, fmt.Errorf("deferred delivery of %s in %s: %w", inputName(d.in), d.m.current, err)
		}
	}
}

// scan runs one selection pass. The returned selection starts out as the
// fallback and is replaced by the first enabled candidate. When a guard
// defers, the pass stops and the selection names the deferring guard.
func (d *delivery) scan(node *stateNode) (selection, bool) {
	sel := selection{
		action: d.m.table.tableDefault,
		next:   d.m.current,
		index:  -1,
	}

	if node.hasDefault {
		sel.action = node.defaultAction
		sel.next = node.defaultNext
	}

	for i, candidate := range node.transitions[d.in] {
		result := candidate.guard.Evaluate(d.ctx, d.m, d.in)

		rec := d.record(GuardEvaluated)
		rec.GuardIndex = i
		rec.Guard = candidate.guard.Name()
		rec.Result = result
		d.emit(rec)

		switch result { //nolint:exhaustive
		case Enabled:
			return selection{
				action: candidate.action,
				next:   candidate.next,
				index:  i,
				guard:  candidate.guard.Name(),
			}, false
		case Deferred:
			return selection{index: i, guard: candidate.guard.Name()}, true
		}
	}

	return sel, false
}

func (d *delivery) perform(sel selection) (err error) {
	from := d.m.current
	changed := sel.next != from
	table := d.m.table

	if changed {
		fatal := d.runHook(ExitHook, from, table.states[from.index].exit)
		if fatal != nil {
			return fatal
		}
	}

	defer func() {
		if !changed {
			return
		}

		fatal := d.runHook(EntryHook, sel.next, table.states[sel.next.index].entry)
		if fatal != nil {
			err = errors.Join(fatal, err)

			return
		}

		d.m.current = sel.next

		rec := d.record(StateChanged)
		rec.State = from.Name()
		rec.Next = sel.next.Name()
		d.emit(rec)
	}()

	return d.runAction(sel)
}

func (d *delivery) runAction(sel selection) (err error) {
	if isNoop(sel.action) {
		return nil
	}

	start := time.Now()

	defer func() {
		rec := d.record(ActionRan)
		rec.Action = sel.action.Name()
		rec.Next = sel.next.Name()
		rec.Duration = time.Since(start)

		if r := recover(); r != nil {
			rec.Err = &PanicError{Value: r}
			d.emit(rec)
			panic(r)
		}

		rec.Err = err
		d.emit(rec)
	}()

	err = sel.action.Execute(d.ctx, d.m, d.in)
	if err != nil {
		return logger.AnnotateError(err,
			"fsm.table", d.m.table.Name(),
			"fsm.machine_id", d.m.id.String(),
			"fsm.state", d.m.current.Name(),
			"fsm.input", inputName(d.in),
			"fsm.action", sel.action.Name())
	}

	return nil
}

// runHook invokes an entry or exit hook. Non-fatal failures are traced and
// swallowed; a fatal failure is returned, or re-panicked if it was a panic.
func (d *delivery) runHook(kind HookKind, owner State, hook Action) error {
	if isNoop(hook) {
		return nil
	}

	start := time.Now()
	err := d.callHook(hook)

	traceKind := ExitHookRan
	if kind == EntryHook {
		traceKind = EntryHookRan
	}

	rec := d.record(traceKind)
	rec.State = owner.Name()
	rec.Hook = kind
	rec.Action = hook.Name()
	rec.Duration = time.Since(start)
	rec.Err = err
	d.emit(rec)

	if err == nil {
		return nil
	}

	hookErr := &HookError{State: owner.Name(), Hook: kind, Err: err}

	if d.m.table.isFatal(err) {
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			panic(panicErr.Value)
		}

		return hookErr
	}

	rec = d.record(HookFailureSuppressed)
	rec.State = owner.Name()
	rec.Hook = kind
	rec.Action = hook.Name()
	rec.Err = hookErr
	d.emit(rec)

	addHookFailureEvent(d.span, hookErr)

	return nil
}

func (d *delivery) callHook(hook Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	return hook.Execute(d.ctx, d.m, d.in)
}

func (d *delivery) finish(err error) {
	rec := d.record(DeliveryFinished)
	rec.State = d.from.Name()
	rec.Next = d.m.current.Name()
	rec.Err = err
	rec.Duration = time.Since(d.start)
	d.emit(rec)

	endDeliverySpan(d.span, d.m.current, err)
}
