package fsm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/amp-labs/amp-fsm/logger"
)

// LogSink writes trace records to slog. Steps are logged at Debug, suppressed
// hook failures at Warn, failed deliveries at Error.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. With a nil logger, every record is written to
// the context logger from logger.Get.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Trace(ctx context.Context, rec TraceRecord) {
	log := s.logger
	if log == nil {
		log = logger.Get(ctx)
	}

	attrs := []any{
		"table", rec.Table,
		"machine_id", rec.MachineID.String(),
		"state", rec.State,
		"input", rec.Input,
	}

	switch rec.Kind {
	case DeliveryStarted:
		log.DebugContext(ctx, "Delivery started", attrs...)
	case GuardEvaluated:
		log.DebugContext(ctx, "Guard evaluated", append(attrs,
			"attempt", rec.Attempt,
			"guard_index", rec.GuardIndex,
			"guard", rec.Guard,
			"result", rec.Result.String())...)
	case DeliveryDeferred:
		log.DebugContext(ctx, "Delivery deferred", append(attrs,
			"attempt", rec.Attempt,
			"guard", rec.Guard)...)
	case TransitionSelected:
		log.DebugContext(ctx, "Transition selected", append(attrs,
			"guard_index", rec.GuardIndex,
			"action", rec.Action,
			"next", rec.Next)...)
	case ExitHookRan, EntryHookRan:
		log.DebugContext(ctx, "Hook ran", append(attrs,
			"hook", string(rec.Hook),
			"action", rec.Action,
			"duration_ms", rec.Duration.Milliseconds(),
			"failed", rec.Err != nil)...)
	case ActionRan:
		log.DebugContext(ctx, "Action ran", append(attrs,
			"action", rec.Action,
			"duration_ms", rec.Duration.Milliseconds(),
			"failed", rec.Err != nil)...)
	case StateChanged:
		log.DebugContext(ctx, "State changed", append(attrs, "next", rec.Next)...)
	case HookFailureSuppressed:
		log.WarnContext(ctx, "Hook failure suppressed", append(attrs,
			"hook", string(rec.Hook),
			"action", rec.Action,
			"error", rec.Err)...)
	case DeliveryFinished:
		s.finished(ctx, log, rec, attrs)
	default:
		log.DebugContext(ctx, "Trace record", append(attrs, "kind", string(rec.Kind))...)
	}
}

func (s *LogSink) finished(ctx context.Context, log *slog.Logger, rec TraceRecord, attrs []any) {
	attrs = append(attrs,
		"next", rec.Next,
		"attempts", rec.Attempt,
		"duration_ms", rec.Duration.Milliseconds(),
		"outcome", outcome(rec.Err))

	switch {
	case rec.Err == nil:
		log.DebugContext(ctx, "Delivery finished", attrs...)
	case errors.Is(rec.Err, ErrInvalidTransition):
		log.ErrorContext(ctx, "Invalid transition", append(attrs, "error", rec.Err)...)
	default:
		log.ErrorContext(ctx, "Delivery failed", append(attrs, "error", rec.Err)...)
	}
}
