package fsmtest

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/stretchr/testify/require"
)

// Matcher errors.
var (
	ErrStateNotVisited        = errors.New("state was not visited")
	ErrTransitionNotTaken     = errors.New("transition was not taken")
	ErrEventsOutOfOrder       = errors.New("events not observed in order")
	ErrHookFailureNotObserved = errors.New("suppressed hook failure not observed")
	ErrGuardEvaluated         = errors.New("guard was evaluated")
	ErrNoMatchersPassed       = errors.New("no matchers passed")
)

// Matcher is an assertion over the records of a Recorder.
type Matcher interface {
	Match(rec *Recorder) error
	Description() string
}

// Visited matches when some delivery moved a machine into the named state.
func Visited(state string) Matcher { //nolint:ireturn
	return &visitedMatcher{state: state}
}

type visitedMatcher struct {
	state string
}

func (m *visitedMatcher) Match(rec *Recorder) error {
	for _, r := range rec.Filter(fsm.StateChanged) {
		if r.Next == m.state {
			return nil
		}
	}

	return fmt.Errorf("%w: '%s'", ErrStateNotVisited, m.state)
}

func (m *visitedMatcher) Description() string {
	return fmt.Sprintf("state '%s' should be visited", m.state)
}

// TransitionTaken matches when a machine moved from one named state to another.
func TransitionTaken(from, to string) Matcher { //nolint:ireturn
	return &transitionTakenMatcher{from: from, to: to}
}

type transitionTakenMatcher struct {
	from string
	to   string
}

func (m *transitionTakenMatcher) Match(rec *Recorder) error {
	for _, r := range rec.Filter(fsm.StateChanged) {
		if r.State == m.from && r.Next == m.to {
			return nil
		}
	}

	return fmt.Errorf("%w: from '%s' to '%s'", ErrTransitionNotTaken, m.from, m.to)
}

func (m *transitionTakenMatcher) Description() string {
	return fmt.Sprintf("transition from '%s' to '%s' should be taken", m.from, m.to)
}

// EventsInOrder matches when the given events, rendered as by Recorder.Events,
// occur as a subsequence of the recorded events.
func EventsInOrder(events ...string) Matcher { //nolint:ireturn
	return &eventsInOrderMatcher{events: events}
}

type eventsInOrderMatcher struct {
	events []string
}

func (m *eventsInOrderMatcher) Match(rec *Recorder) error {
	observed := rec.Events()
	next := 0

	for _, event := range observed {
		if next < len(m.events) && event == m.events[next] {
			next++
		}
	}

	if next == len(m.events) {
		return nil
	}

	return fmt.Errorf("%w: missing %q in [%s]", ErrEventsOutOfOrder, m.events[next], strings.Join(observed, " "))
}

func (m *eventsInOrderMatcher) Description() string {
	return "events should occur in order: " + strings.Join(m.events, " ")
}

// HookFailureSuppressed matches when a failure of the given hook of the named
// state was swallowed.
func HookFailureSuppressed(state string, hook fsm.HookKind) Matcher { //nolint:ireturn
	return &hookFailureMatcher{state: state, hook: hook}
}

type hookFailureMatcher struct {
	state string
	hook  fsm.HookKind
}

func (m *hookFailureMatcher) Match(rec *Recorder) error {
	for _, r := range rec.Filter(fsm.HookFailureSuppressed) {
		if r.State == m.state && r.Hook == m.hook {
			return nil
		}
	}

	return fmt.Errorf("%w: %s hook of '%s'", ErrHookFailureNotObserved, m.hook, m.state)
}

func (m *hookFailureMatcher) Description() string {
	return fmt.Sprintf("%s hook failure of '%s' should be suppressed", m.hook, m.state)
}

// GuardNotEvaluated matches when no guard with the given name was evaluated.
func GuardNotEvaluated(guard string) Matcher { //nolint:ireturn
	return &guardNotEvaluatedMatcher{guard: guard}
}

type guardNotEvaluatedMatcher struct {
	guard string
}

func (m *guardNotEvaluatedMatcher) Match(rec *Recorder) error {
	idx := slices.IndexFunc(rec.Filter(fsm.GuardEvaluated), func(r fsm.TraceRecord) bool {
		return r.Guard == m.guard
	})
	if idx >= 0 {
		return fmt.Errorf("%w: '%s'", ErrGuardEvaluated, m.guard)
	}

	return nil
}

func (m *guardNotEvaluatedMatcher) Description() string {
	return fmt.Sprintf("guard '%s' should not be evaluated", m.guard)
}

// All creates a matcher that requires all sub-matchers to pass.
func All(matchers ...Matcher) Matcher { //nolint:ireturn
	return &allMatcher{matchers: matchers}
}

type allMatcher struct {
	matchers []Matcher
}

func (m *allMatcher) Match(rec *Recorder) error {
	for _, matcher := range m.matchers {
		err := matcher.Match(rec)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *allMatcher) Description() string {
	return "all matchers should pass"
}

// Any creates a matcher that requires at least one sub-matcher to pass.
func Any(matchers ...Matcher) Matcher { //nolint:ireturn
	return &anyMatcher{matchers: matchers}
}

type anyMatcher struct {
	matchers []Matcher
}

func (m *anyMatcher) Match(rec *Recorder) error {
	for _, matcher := range m.matchers {
		if matcher.Match(rec) == nil {
			return nil
		}
	}

	return ErrNoMatchersPassed
}

func (m *anyMatcher) Description() string {
	return "at least one matcher should pass"
}

// RequireMatches stops the test at the first matcher that does not pass.
func RequireMatches(t *testing.T, rec *Recorder, matchers ...Matcher) {
	t.Helper()

	for _, matcher := range matchers {
		require.NoError(t, matcher.Match(rec), matcher.Description())
	}
}

// RequireState fails the test unless m is in the state with the given name.
func RequireState(t *testing.T, m *fsm.Machine, name string) {
	t.Helper()

	require.Equal(t, name, m.CurrentState().Name(), "machine %s is in the wrong state", m.ID())
}
