package fsmtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Script errors.
var (
	ErrScriptNoStart   = errors.New("script has no start state")
	ErrScriptNoSteps   = errors.New("script has no steps")
	ErrScriptNoInput   = errors.New("script step has no input to deliver")
	ErrUnknownScripted = errors.New("script names a state the table does not have")
)

// Script is a scripted scenario: a start state and a list of deliveries with
// their expected outcome. Scripts are written in YAML:
//
//	name: happy path
//	start: Idle
//	steps:
//	  - deliver: Connect
//	    expect_state: Connecting
//	    expect_events: [exit:Idle, action:recordAttempt, entry:Connecting]
//	  - deliver: Connect
//	    expect_error: invalid transition
type Script struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	Steps []Step `yaml:"steps"`
}

// Step is a single delivery of a Script.
type Step struct {
	Deliver string `yaml:"deliver"`

	// ExpectState is the state name after the delivery. Empty skips the check.
	ExpectState string `yaml:"expect_state"`

	// ExpectError is a substring of the delivery error. Empty expects success.
	ExpectError string `yaml:"expect_error"`

	// ExpectEvents must occur in order among the step's events, as rendered by
	// Recorder.Events.
	ExpectEvents []string `yaml:"expect_events"`
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var script Script

	err := yaml.Unmarshal(data, &script)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	err = script.Validate()
	if err != nil {
		return nil, err
	}

	return &script, nil
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Test scripts are read from known paths
	if err != nil {
		return nil, fmt.Errorf("failed to read script %q: %w", path, err)
	}

	return ParseScript(data)
}

// Validate checks the script's structure. It does not look at any table.
func (s *Script) Validate() error {
	if s.Start == "" {
		return ErrScriptNoStart
	}

	if len(s.Steps) == 0 {
		return ErrScriptNoSteps
	}

	for i, step := range s.Steps {
		if step.Deliver == "" {
			return fmt.Errorf("step %d: %w", i, ErrScriptNoInput)
		}
	}

	return nil
}

// Run plays the script against a fresh machine of table. rec must be the
// recorder installed on table when any step has ExpectEvents; it is reset
// before every step.
func (s *Script) Run(t *testing.T, table *fsm.Table, rec *Recorder) {
	t.Helper()

	start, ok := table.Lookup(s.Start)
	require.True(t, ok, "%v: %q", ErrUnknownScripted, s.Start)

	m, err := table.NewMachine(start)
	require.NoError(t, err)

	for i, step := range s.Steps {
		if rec != nil {
			rec.Reset()
		}

		err := m.Deliver(context.Background(), ResolveInput(table, step.Deliver))

		if step.ExpectError == "" {
			require.NoError(t, err, "%s: step %d (%s)", s.Name, i, step.Deliver)
		} else {
			require.Error(t, err, "%s: step %d (%s)", s.Name, i, step.Deliver)
			assert.Contains(t, err.Error(), step.ExpectError, "%s: step %d (%s)", s.Name, i, step.Deliver)
		}

		if step.ExpectState != "" {
			assert.Equal(t, step.ExpectState, m.CurrentState().Name(), "%s: step %d (%s)", s.Name, i, step.Deliver)
		}

		if len(step.ExpectEvents) > 0 {
			require.NotNil(t, rec, "%s: step %d expects events but no recorder was given", s.Name, i)
			require.NoError(t, EventsInOrder(step.ExpectEvents...).Match(rec), "%s: step %d (%s)", s.Name, i, step.Deliver)
		}
	}
}

// ResolveInput finds the input registered on table under name. Names that are
// not registered anywhere resolve to a StringInput, which is what makes
// scripts able to deliver inputs the table does not expect.
func ResolveInput(table *fsm.Table, name string) fsm.Input { //nolint:ireturn
	for _, state := range table.States() {
		for _, in := range table.Inputs(state) {
			if in.Name() == name {
				return in
			}
		}
	}

	return fsm.StringInput(name)
}
