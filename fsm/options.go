package fsm

import (
	"go.opentelemetry.io/otel/trace"
)

// Option configures a table at NewBuilder time. The options travel with the
// frozen Table and apply to every machine created from it.
type Option func(*options)

type options struct {
	sink           TraceSink
	maxDeferrals   int
	tracerProvider trace.TracerProvider
	fatal          []error
}

// WithTraceSink installs the diagnostic sink. A nil sink disables tracing.
func WithTraceSink(sink TraceSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithMaxDeferrals caps the number of consecutive deferrals a single delivery
// may go through. Zero, the default, retries forever.
func WithMaxDeferrals(n int) Option {
	return func(o *options) {
		o.maxDeferrals = max(n, 0)
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for delivery spans.
// Without it the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithFatalErrors registers sentinels that are treated as fatal when raised by
// an entry or exit hook, in addition to errors marked with Fatal.
func WithFatalErrors(errs ...error) Option {
	return func(o *options) {
		for _, err := range errs {
			if err != nil {
				o.fatal = append(o.fatal, err)
			}
		}
	}
}

// StateOption configures a state when it is declared.
type StateOption func(*stateNode)

// OnEntry sets the hook invoked when a machine enters the state.
func OnEntry(action Action) StateOption {
	return func(n *stateNode) {
		n.entry = action
	}
}

// OnExit sets the hook invoked when a machine leaves the state.
func OnExit(action Action) StateOption {
	return func(n *stateNode) {
		n.exit = action
	}
}

// TransitionOption configures a single guarded transition.
type TransitionOption func(*GuardedTransition)

// WithGuard sets the guard of a transition. Without it the transition uses Always.
func WithGuard(guard Guard) TransitionOption {
	return func(g *GuardedTransition) {
		if guard != nil {
			g.guard = guard
		}
	}
}

// DefaultOption configures the state-local fallback set by SetDefault.
type DefaultOption func(*defaultConfig)

type defaultConfig struct {
	action Action
	target State
}

// WithDefaultAction sets the fallback action. Omitted, the fallback is Noop.
func WithDefaultAction(action Action) DefaultOption {
	return func(c *defaultConfig) {
		c.action = action
	}
}

// WithDefaultTarget sets the fallback next state. Omitted, the fallback is a
// self loop.
func WithDefaultTarget(target State) DefaultOption {
	return func(c *defaultConfig) {
		c.target = target
	}
}
