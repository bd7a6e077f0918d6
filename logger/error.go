package logger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AnnotateError attaches slog attributes to err. A logger installed by
// ConfigureLoggingWithOptions (or any handler wrapped with NewErrorHandler)
// expands them next to the error when it is logged. The error message and
// the errors.Is/As chain are unchanged.
//
//	return logger.AnnotateError(err, "fsm.state", state.Name())
//
// Returns nil if err is nil.
func AnnotateError(err error, args ...any) error {
	if err == nil {
		return nil
	}

	r := slog.NewRecord(time.Time{}, slog.LevelDebug, "", 0)
	r.Add(args...)

	attrs := make([]slog.Attr, 0, r.NumAttrs())

	r.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)

		return true
	})

	return &annotatedError{err: err, attrs: attrs}
}

// ErrorAttrs returns the attributes attached to err or anything it wraps.
// Outer annotations come first.
func ErrorAttrs(err error) []slog.Attr {
	var attrs []slog.Attr

	for err != nil {
		var ae *annotatedError
		if !errors.As(err, &ae) {
			break
		}

		attrs = append(attrs, ae.attrs...)
		err = ae.err
	}

	return attrs
}

type annotatedError struct {
	err   error
	attrs []slog.Attr
}

func (a *annotatedError) Error() string {
	return a.err.Error()
}

func (a *annotatedError) Unwrap() error {
	return a.err
}

var _ error = (*annotatedError)(nil)

// errorHandler decorates another handler and expands annotated errors.
type errorHandler struct {
	inner slog.Handler
}

var _ slog.Handler = (*errorHandler)(nil)

// NewErrorHandler wraps inner so annotated errors have their attributes added
// to the record. Handlers that are already wrapped are returned unchanged.
func NewErrorHandler(inner slog.Handler) slog.Handler { //nolint:ireturn
	if h, ok := inner.(*errorHandler); ok {
		return h
	}

	return &errorHandler{inner: inner}
}

func (h *errorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rewrites the record only when one of its error attributes carries
// annotations. Every other attribute is kept in its original order.
func (h *errorHandler) Handle(ctx context.Context, record slog.Record) error {
	var (
		attrs    = make([]slog.Attr, 0, record.NumAttrs())
		extra    []slog.Attr
		annotate bool
	)

	record.Attrs(func(attr slog.Attr) bool {
		err, ok := attr.Value.Any().(error)
		if !ok {
			attrs = append(attrs, attr)

			return true
		}

		found := ErrorAttrs(err)
		if len(found) == 0 {
			attrs = append(attrs, attr)

			return true
		}

		annotate = true

		attrs = append(attrs, slog.Any(attr.Key, err))
		extra = append(extra, found...)

		return true
	})

	if !annotate {
		return h.inner.Handle(ctx, record)
	}

	r := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	r.AddAttrs(attrs...)
	r.AddAttrs(extra...)

	return h.inner.Handle(ctx, r)
}

func (h *errorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &errorHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *errorHandler) WithGroup(name string) slog.Handler {
	return &errorHandler{inner: h.inner.WithGroup(name)}
}
