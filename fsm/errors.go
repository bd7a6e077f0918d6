package fsm

import (
	"errors"
	"fmt"
	"slices"
)

// Predefined error types.
var (
	// ErrTableFrozen is returned by every Builder mutator once Finalize has run.
	ErrTableFrozen = errors.New("table already frozen")
	// ErrTableNotFrozen is returned when a Table that did not come out of Finalize is used.
	ErrTableNotFrozen = errors.New("table not yet frozen")
	// ErrInvalidTransition is the failure raised by the built-in table default action.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrForeignState indicates a state that belongs to a different builder or table.
	ErrForeignState = errors.New("state belongs to another table")
	// ErrUnknownState indicates the zero State or an out of range handle.
	ErrUnknownState = errors.New("unknown state")
	// ErrStateNameRequired indicates that a state was declared without a name.
	ErrStateNameRequired = errors.New("state name is required")
	// ErrNilInput indicates a nil Input.
	ErrNilInput = errors.New("input cannot be nil")
	// ErrNilAction indicates a nil Action where one is required.
	ErrNilAction = errors.New("action cannot be nil")
	// ErrDeferralLimit indicates that guards kept deferring past the configured cap.
	ErrDeferralLimit = errors.New("guard deferral limit exceeded")
	// ErrReentrantDelivery indicates Deliver was called on a machine from inside its own delivery.
	ErrReentrantDelivery = errors.New("re-entrant delivery")
	// ErrFatal marks a failure that must never be suppressed by hook handling.
	ErrFatal = errors.New("fatal")
	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TransitionError names the state and input of a delivery that had no usable transition.
type TransitionError struct {
	State string
	Input string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("state %q, input %q: %v", e.State, e.Input, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// DeferralError is returned when a delivery is aborted by the deferral cap.
type DeferralError struct {
	State    string
	Input    string
	Attempts int
}

func (e *DeferralError) Error() string {
	return fmt.Sprintf("state %q, input %q: deferred %d times: %v", e.State, e.Input, e.Attempts, ErrDeferralLimit)
}

func (e *DeferralError) Unwrap() error {
	return ErrDeferralLimit
}

// HookError wraps a failure raised by an entry or exit hook.
type HookError struct {
	State string
	Hook  HookKind
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook of state %q: %v", e.Hook, e.State, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking hook.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error, so a hook that
// panics with Fatal(err) is still classified as fatal.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}

	return nil
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("%v: %v", ErrFatal, e.err)
}

func (e *fatalError) Unwrap() []error {
	return []error{ErrFatal, e.err}
}

// Fatal marks err as fatal. Fatal hook failures are never suppressed: they abort
// the delivery and are returned from Deliver as-is.
func Fatal(err error) error {
	if err == nil {
		return nil
	}

	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsInvalidTransition reports whether err is the built-in invalid transition failure.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// isFatal applies the table's fatal classification: ErrFatal plus any sentinel
// registered with WithFatalErrors.
func (t *Table) isFatal(err error) bool {
	if IsFatal(err) {
		return true
	}

	return slices.ContainsFunc(t.fatal, func(target error) bool {
		return errors.Is(err, target)
	})
}
