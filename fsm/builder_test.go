package fsm_test

import (
	"context"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_StateNamesDoNotAlias(t *testing.T) {
	t.Parallel()

	b := fsm.NewBuilder("alias")
	first := b.MustAddState("Same")
	second := b.MustAddState("Same")

	assert.NotEqual(t, first, second)
	assert.Equal(t, first.Name(), second.Name())

	go1 := fsm.StringInput("go")
	require.NoError(t, b.AddTransition(first, go1, nil, second))

	table := b.MustFinalize()

	looked, ok := table.Lookup("Same")
	require.True(t, ok)
	assert.Equal(t, first, looked)

	m := table.MustNewMachine(first)
	require.NoError(t, m.Deliver(context.Background(), go1))
	assert.Equal(t, second, m.CurrentState())
	assert.NotEqual(t, first, m.CurrentState())
}

func TestBuilder_RejectsBadArguments(t *testing.T) {
	t.Parallel()

	b := fsm.NewBuilder("bad")
	a := b.MustAddState("A")

	_, err := b.AddState("")
	require.ErrorIs(t, err, fsm.ErrStateNameRequired)

	require.ErrorIs(t, b.AddTransition(a, nil, nil, a), fsm.ErrNilInput)
	require.ErrorIs(t, b.AddTransition(fsm.State{}, fsm.StringInput("x"), nil, a), fsm.ErrUnknownState)
	require.ErrorIs(t, b.AddTransition(a, fsm.StringInput("x"), nil, fsm.State{}), fsm.ErrUnknownState)
	require.ErrorIs(t, b.SetTableDefaultAction(nil), fsm.ErrNilAction)

	other := fsm.NewBuilder("other")
	foreign := other.MustAddState("Foreign")

	require.ErrorIs(t, b.AddTransition(a, fsm.StringInput("x"), nil, foreign), fsm.ErrForeignState)
	require.ErrorIs(t, b.AddTransition(foreign, fsm.StringInput("x"), nil, a), fsm.ErrForeignState)
	require.ErrorIs(t, b.SetDefault(a, fsm.WithDefaultTarget(foreign)), fsm.ErrForeignState)
	require.ErrorIs(t, b.SetEntryAction(foreign, fsm.Noop()), fsm.ErrForeignState)

	table := b.MustFinalize()
	assert.Empty(t, table.Inputs(a), "rejected transitions must not be registered")

	_, err = table.NewMachine(foreign)
	require.ErrorIs(t, err, fsm.ErrForeignState)
}

func TestBuilder_FrozenAfterFinalize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	in := fsm.StringInput("go")

	b := fsm.NewBuilder("frozen")
	a := b.MustAddState("A")
	c := b.MustAddState("C")
	require.NoError(t, b.AddTransition(a, in, nil, c))

	table, err := b.Finalize()
	require.NoError(t, err)

	before := table.MustNewMachine(a)
	require.NoError(t, before.Deliver(ctx, in))
	assert.Equal(t, c, before.CurrentState())

	_, err = b.AddState("D")
	require.ErrorIs(t, err, fsm.ErrTableFrozen)
	require.ErrorIs(t, b.AddTransition(a, in, nil, a), fsm.ErrTableFrozen)
	require.ErrorIs(t, b.SetDefault(a), fsm.ErrTableFrozen)
	require.ErrorIs(t, b.SetTableDefaultAction(fsm.Noop()), fsm.ErrTableFrozen)
	require.ErrorIs(t, b.SetEntryAction(a, fsm.Noop()), fsm.ErrTableFrozen)
	require.ErrorIs(t, b.SetExitAction(a, fsm.Noop()), fsm.ErrTableFrozen)

	_, err = b.Finalize()
	require.ErrorIs(t, err, fsm.ErrTableFrozen)

	after := table.MustNewMachine(a)
	require.NoError(t, after.Deliver(ctx, in))
	assert.Equal(t, c, after.CurrentState(), "rejected mutations must not change selection")
	assert.Len(t, table.States(), 2)
	assert.Len(t, table.Transitions(a, in), 1)
}

func TestTable_ZeroValueIsNotFrozen(t *testing.T) {
	t.Parallel()

	var table fsm.Table

	_, err := table.NewMachine(fsm.State{})
	require.ErrorIs(t, err, fsm.ErrTableNotFrozen)

	var m fsm.Machine
	require.ErrorIs(t, m.Deliver(context.Background(), fsm.StringInput("x")), fsm.ErrTableNotFrozen)

	assert.Empty(t, table.Name())
	assert.Nil(t, table.States())
}

func TestTable_Accessors(t *testing.T) {
	t.Parallel()

	connect := fsm.StringInput("connect")
	ping := fsm.StringInput("ping")
	onEnter := fsm.NewAction("enter", func(context.Context, *fsm.Machine, fsm.Input) error { return nil })
	onExit := fsm.NewAction("exit", func(context.Context, *fsm.Machine, fsm.Input) error { return nil })
	guard := fsm.NewGuard("ready", func(context.Context, *fsm.Machine, fsm.Input) fsm.GuardResult {
		return fsm.Enabled
	})

	b := fsm.NewBuilder("accessors", fsm.WithMaxDeferrals(3))
	idle := b.MustAddState("Idle", fsm.OnExit(onExit))
	busy := b.MustAddState("Busy", fsm.OnEntry(onEnter))

	require.NoError(t, b.AddTransition(idle, connect, nil, busy, fsm.WithGuard(guard)))
	require.NoError(t, b.AddTransition(idle, connect, nil, idle))
	require.NoError(t, b.AddTransition(idle, ping, nil, idle))
	require.NoError(t, b.SetDefault(busy))

	table := b.MustFinalize()

	assert.Equal(t, "accessors", table.Name())
	assert.Equal(t, []fsm.State{idle, busy}, table.States())
	assert.Equal(t, []fsm.Input{connect, ping}, table.Inputs(idle))
	assert.Equal(t, 3, table.MaxDeferrals())

	candidates := table.Transitions(idle, connect)
	require.Len(t, candidates, 2)
	assert.Equal(t, "ready", candidates[0].Guard().Name())
	assert.Equal(t, busy, candidates[0].Next())
	assert.Equal(t, "always", candidates[1].Guard().Name())
	assert.Equal(t, "noop", candidates[1].Action().Name())

	_, _, ok := table.Default(idle)
	assert.False(t, ok)

	action, next, ok := table.Default(busy)
	require.True(t, ok)
	assert.Equal(t, "noop", action.Name())
	assert.Equal(t, busy, next)

	assert.Equal(t, "enter", table.EntryAction(busy).Name())
	assert.Equal(t, "exit", table.ExitAction(idle).Name())
	assert.Nil(t, table.EntryAction(idle))
	assert.Equal(t, "invalid-transition", table.TableDefaultAction().Name())

	_, ok = table.Lookup("Missing")
	assert.False(t, ok)

	// Mutating a returned slice must not reach the table.
	candidates[0] = candidates[1]
	assert.Equal(t, "ready", table.Transitions(idle, connect)[0].Guard().Name())
}

func TestBuilder_HookSetters(t *testing.T) {
	t.Parallel()

	var order []string

	hook := func(name string) fsm.Action {
		return fsm.NewAction(name, func(context.Context, *fsm.Machine, fsm.Input) error {
			order = append(order, name)

			return nil
		})
	}

	b := fsm.NewBuilder("setters")
	a := b.MustAddState("A", fsm.OnExit(hook("replaced")))
	c := b.MustAddState("C")

	require.NoError(t, b.SetExitAction(a, hook("exitA")))
	require.NoError(t, b.SetEntryAction(c, hook("enterC")))
	require.NoError(t, b.AddTransition(a, fsm.StringInput("go"), hook("act"), c))

	m := b.MustFinalize().MustNewMachine(a)
	require.NoError(t, m.Deliver(context.Background(), fsm.StringInput("go")))

	assert.Equal(t, []string{"exitA", "act", "enterC"}, order)
}
