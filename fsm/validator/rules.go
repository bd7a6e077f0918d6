package validator

import (
	"fmt"

	"github.com/amp-labs/amp-fsm/fsm"
)

// Rule defines a validation rule that checks a table for specific issues.
type Rule interface {
	Name() string
	Check(table *fsm.Table, starts []fsm.State) []Finding
}

// DefaultRules returns the standard set of validation rules.
func DefaultRules() []Rule {
	return []Rule{
		&unreachableStateRule{},
		&shadowedTransitionRule{},
		&deadEndStateRule{},
		&duplicateStateNameRule{},
	}
}

// unreachableStateRule reports states that no start state can lead to.
type unreachableStateRule struct{}

func (r *unreachableStateRule) Name() string {
	return "UnreachableState"
}

func (r *unreachableStateRule) Check(table *fsm.Table, starts []fsm.State) []Finding {
	if len(starts) == 0 {
		return nil
	}

	reachable := make(map[fsm.State]bool)
	queue := make([]fsm.State, 0, len(starts))

	for _, start := range starts {
		if !reachable[start] {
			reachable[start] = true
			queue = append(queue, start)
		}
	}

	visit := func(next fsm.State) {
		if !reachable[next] {
			reachable[next] = true
			queue = append(queue, next)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, in := range table.Inputs(current) {
			for _, candidate := range table.Transitions(current, in) {
				visit(candidate.Next())
			}
		}

		if _, next, ok := table.Default(current); ok {
			visit(next)
		}
	}

	var findings []Finding

	for _, state := range table.States() {
		if !reachable[state] {
			findings = append(findings, Finding{
				Code:     "UNREACHABLE_STATE",
				Severity: SeverityError,
				State:    state.Name(),
				Message:  fmt.Sprintf("state %q cannot be reached from any start state", state.Name()),
			})
		}
	}

	return findings
}

// shadowedTransitionRule reports candidates registered after an always-enabled
// guard for the same state and input. Selection stops at the first enabled
// guard, so they are never considered.
type shadowedTransitionRule struct{}

func (r *shadowedTransitionRule) Name() string {
	return "ShadowedTransition"
}

func (r *shadowedTransitionRule) Check(table *fsm.Table, _ []fsm.State) []Finding {
	var findings []Finding

	for _, state := range table.States() {
		for _, in := range table.Inputs(state) {
			candidates := table.Transitions(state, in)

			for i, candidate := range candidates {
				if candidate.Guard() != fsm.Always() || i == len(candidates)-1 {
					continue
				}

				findings = append(findings, Finding{
					Code:     "SHADOWED_TRANSITION",
					Severity: SeverityWarning,
					State:    state.Name(),
					Input:    in.Name(),
					Message: fmt.Sprintf("%d candidate(s) for input %q on state %q follow an unconditional one at position %d and never fire",
						len(candidates)-i-1, in.Name(), state.Name(), i),
				})

				break
			}
		}
	}

	return findings
}

// deadEndStateRule reports states with no transitions and no local default.
// Every input delivered there falls through to the table default.
type deadEndStateRule struct{}

func (r *deadEndStateRule) Name() string {
	return "DeadEndState"
}

func (r *deadEndStateRule) Check(table *fsm.Table, _ []fsm.State) []Finding {
	var findings []Finding

	for _, state := range table.States() {
		if len(table.Inputs(state)) > 0 {
			continue
		}

		if _, _, ok := table.Default(state); ok {
			continue
		}

		findings = append(findings, Finding{
			Code:     "DEAD_END_STATE",
			Severity: SeverityWarning,
			State:    state.Name(),
			Message:  fmt.Sprintf("state %q has no transitions and no default", state.Name()),
		})
	}

	return findings
}

// duplicateStateNameRule reports names shared by several states. Handles stay
// distinct, but Table.Lookup only finds the first one.
type duplicateStateNameRule struct{}

func (r *duplicateStateNameRule) Name() string {
	return "DuplicateStateName"
}

func (r *duplicateStateNameRule) Check(table *fsm.Table, _ []fsm.State) []Finding {
	counts := make(map[string]int)

	for _, state := range table.States() {
		counts[state.Name()]++
	}

	var findings []Finding

	for name, count := range counts {
		if count < 2 { //nolint:mnd
			continue
		}

		findings = append(findings, Finding{
			Code:     "DUPLICATE_STATE_NAME",
			Severity: SeverityWarning,
			State:    name,
			Message:  fmt.Sprintf("%d states are named %q; lookups by name return the first", count, name),
		})
	}

	return findings
}
