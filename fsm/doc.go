// Package fsm is a table driven finite state machine engine.
//
// A table is declared on a Builder: states, guarded transitions per (state,
// input) pair, state-local defaults and entry/exit hooks. Finalize freezes the
// declaration into an immutable Table, from which any number of Machines can
// be created. Each Machine is an independent cursor advanced by Deliver.
//
// Selection on delivery of input I in state S:
//
//   - candidates registered for (S, I) are tried in registration order;
//   - the first Enabled guard wins and later guards are not evaluated;
//   - a Deferred guard restarts selection from the first candidate;
//   - when every guard is Disabled the state default is used, else the table
//     default, which fails with ErrInvalidTransition unless overridden.
//
// When the selected transition changes state, the exit hook of S runs before
// the action and the entry hook of the target runs after it. The state is
// updated even when the action fails; the action error is then returned.
//
// Basic usage:
//
//	b := fsm.NewBuilder("conn")
//	idle := b.MustAddState("Idle")
//	connecting := b.MustAddState("Connecting")
//
//	_ = b.AddTransition(idle, fsm.StringInput("Connect"), dial, connecting)
//
//	table, err := b.Finalize()
//	if err != nil {
//		return err
//	}
//
//	m, err := table.NewMachine(idle)
//	if err != nil {
//		return err
//	}
//
//	err = m.Deliver(ctx, fsm.StringInput("Connect"))
package fsm
