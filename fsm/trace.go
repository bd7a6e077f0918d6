package fsm

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TraceKind identifies a step of a delivery.
type TraceKind string

const (
	DeliveryStarted       TraceKind = "delivery_started"
	GuardEvaluated        TraceKind = "guard_evaluated"
	DeliveryDeferred      TraceKind = "delivery_deferred"
	TransitionSelected    TraceKind = "transition_selected"
	ExitHookRan           TraceKind = "exit_hook_ran"
	ActionRan             TraceKind = "action_ran"
	EntryHookRan          TraceKind = "entry_hook_ran"
	StateChanged          TraceKind = "state_changed"
	HookFailureSuppressed TraceKind = "hook_failure_suppressed"
	DeliveryFinished      TraceKind = "delivery_finished"
)

// TraceRecord is one structured diagnostic event. Fields that do not apply to
// a kind are left at their zero value.
type TraceRecord struct {
	Kind      TraceKind
	Time      time.Time
	Table     string
	MachineID uuid.UUID
	State     string
	Input     string

	// Attempt counts selection passes within a delivery, starting at 1.
	Attempt int

	// GuardIndex is the position of the evaluated candidate, or -1 when the
	// record is about a default.
	GuardIndex int
	Guard      string
	Result     GuardResult

	Action string
	Next   string

	// Hook is set on hook and suppression records.
	Hook HookKind

	Err      error
	Duration time.Duration
}

// TraceSink consumes trace records. Implementations are called synchronously
// from Deliver and must not call back into the machine.
type TraceSink interface {
	Trace(ctx context.Context, rec TraceRecord)
}

// SinkFunc adapts a function to TraceSink.
type SinkFunc func(ctx context.Context, rec TraceRecord)

func (f SinkFunc) Trace(ctx context.Context, rec TraceRecord) {
	f(ctx, rec)
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Trace(context.Context, TraceRecord) {}

type multiSink []TraceSink

// MultiSink fans each record out to every non-nil sink, in order.
func MultiSink(sinks ...TraceSink) TraceSink { //nolint:ireturn
	out := make(multiSink, 0, len(sinks))

	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}

	switch len(out) {
	case 0:
		return NopSink{}
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m multiSink) Trace(ctx context.Context, rec TraceRecord) {
	for _, sink := range m {
		sink.Trace(ctx, rec)
	}
}
