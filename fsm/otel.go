package fsm

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const deliverSpanName = "fsm.deliver"

// startDeliverySpan opens the span covering one Deliver call. The tracer comes
// from WithTracerProvider, or the global provider set up by the telemetry
// package. The caller ends it through endDeliverySpan.
//
//nolint:spancheck // Span lifecycle managed by caller
func (m *Machine) startDeliverySpan(ctx context.Context, in Input) (context.Context, trace.Span) {
	return m.table.tracer.Start(ctx, deliverSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("fsm.table", m.table.Name()),
			attribute.String("fsm.machine_id", m.id.String()),
			attribute.String("fsm.state", m.current.Name()),
			attribute.String("fsm.input", inputName(in)),
		),
	)
}

func endDeliverySpan(span trace.Span, next State, err error) {
	span.SetAttributes(attribute.String("fsm.next_state", next.Name()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("fsm.outcome", outcome(err)))
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.String("fsm.outcome", "success"))
	}

	span.End()
}

// addHookFailureEvent records a suppressed hook failure on the delivery span.
// The span itself stays successful.
func addHookFailureEvent(span trace.Span, err *HookError) {
	span.AddEvent("fsm.hook_failure_suppressed", trace.WithAttributes(
		attribute.String("fsm.hook", string(err.Hook)),
		attribute.String("fsm.hook_state", err.State),
		attribute.String("error", err.Err.Error()),
	))
}

// outcome buckets a delivery error for span attributes and metric labels.
func outcome(err error) string {
	var panicErr *PanicError

	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrDeferralLimit):
		return "deferral_limit"
	case errors.Is(err, ErrFatal):
		return "fatal"
	case errors.As(err, &panicErr):
		return "panic"
	default:
		var hookErr *HookError
		if errors.As(err, &hookErr) {
			return "fatal"
		}

		return "error"
	}
}
