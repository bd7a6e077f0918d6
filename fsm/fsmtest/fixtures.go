package fsmtest

import (
	"context"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// Inputs of the Connection fixture.
const (
	Connect    = fsm.StringInput("Connect")
	Ack        = fsm.StringInput("Ack")
	Disconnect = fsm.StringInput("Disconnect")
)

// Connection is the Idle/Connecting/Connected table used across tests:
//
//	Idle       --Connect/recordAttempt--> Connecting
//	Connecting --Ack-->                   Connected
//	Connecting --Disconnect-->            Idle
//	Connected  --Disconnect-->            Idle
//
// Idle has an exit hook and Connecting an entry hook, both no-ops that only
// show up in traces. Connected has no local default, so Connect there is an
// invalid transition.
type Connection struct {
	Table      *fsm.Table
	Recorder   *Recorder
	Idle       fsm.State
	Connecting fsm.State
	Connected  fsm.State
	Attempts   *atomic.Int64
}

// NewConnection builds the fixture. The fixture's Recorder always receives
// traces; extra, when not nil, receives them too. A WithTraceSink in opts is
// overridden.
func NewConnection(t *testing.T, extra fsm.TraceSink, opts ...fsm.Option) *Connection {
	t.Helper()

	conn := &Connection{
		Recorder: NewRecorder(),
		Attempts: atomic.NewInt64(0),
	}

	opts = append(opts, fsm.WithTraceSink(fsm.MultiSink(conn.Recorder, extra)))
	builder := fsm.NewBuilder("connection", opts...)

	leaveIdle := fsm.NewAction("leaveIdle", func(context.Context, *fsm.Machine, fsm.Input) error {
		return nil
	})
	enterConnecting := fsm.NewAction("enterConnecting", func(context.Context, *fsm.Machine, fsm.Input) error {
		return nil
	})
	recordAttempt := fsm.NewAction("recordAttempt", func(context.Context, *fsm.Machine, fsm.Input) error {
		conn.Attempts.Inc()

		return nil
	})

	conn.Idle = builder.MustAddState("Idle", fsm.OnExit(leaveIdle))
	conn.Connecting = builder.MustAddState("Connecting", fsm.OnEntry(enterConnecting))
	conn.Connected = builder.MustAddState("Connected")

	require.NoError(t, builder.AddTransition(conn.Idle, Connect, recordAttempt, conn.Connecting))
	require.NoError(t, builder.AddTransition(conn.Connecting, Ack, nil, conn.Connected))
	require.NoError(t, builder.AddTransition(conn.Connecting, Disconnect, nil, conn.Idle))
	require.NoError(t, builder.AddTransition(conn.Connected, Disconnect, nil, conn.Idle))

	table, err := builder.Finalize()
	require.NoError(t, err)

	conn.Table = table

	return conn
}

// NewMachine returns a machine of the fixture positioned at Idle.
func (c *Connection) NewMachine(t *testing.T) *fsm.Machine {
	t.Helper()

	m, err := c.Table.NewMachine(c.Idle)
	require.NoError(t, err)

	return m
}
