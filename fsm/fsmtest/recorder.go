// Package fsmtest provides testing utilities for fsm tables and machines.
package fsmtest

import (
	"context"
	"slices"
	"sync"

	"github.com/amp-labs/amp-fsm/fsm"
)

// Recorder is a TraceSink that keeps every record in memory. It is safe for
// concurrent use, so one recorder can be shared by machines on many goroutines.
type Recorder struct {
	mu      sync.Mutex
	records []fsm.TraceRecord
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Trace(_ context.Context, rec fsm.TraceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
}

// Records returns a copy of everything recorded so far.
func (r *Recorder) Records() []fsm.TraceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.records)
}

// Filter returns the records of the given kinds, in order.
func (r *Recorder) Filter(kinds ...fsm.TraceKind) []fsm.TraceRecord {
	var out []fsm.TraceRecord

	for _, rec := range r.Records() {
		if slices.Contains(kinds, rec.Kind) {
			out = append(out, rec)
		}
	}

	return out
}

// Kinds returns the kind of every record, in order.
func (r *Recorder) Kinds() []fsm.TraceKind {
	records := r.Records()
	kinds := make([]fsm.TraceKind, len(records))

	for i, rec := range records {
		kinds[i] = rec.Kind
	}

	return kinds
}

// Reset drops all records.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = nil
}

// Events renders the side-effecting steps as short strings:
//
//	exit:<state>     exit hook of state ran
//	action:<name>    transition action ran
//	entry:<state>    entry hook of state ran
//	state:<state>    machine moved to state
//	suppressed:<hook>:<state>
//
// Guard evaluations and delivery bookkeeping are left out, which makes the
// result convenient for ordering assertions.
func (r *Recorder) Events() []string {
	var out []string

	for _, rec := range r.Records() {
		if event, ok := Event(rec); ok {
			out = append(out, event)
		}
	}

	return out
}

// Event renders a single record the way Events does. ok is false for records
// Events leaves out.
func Event(rec fsm.TraceRecord) (string, bool) {
	switch rec.Kind { //nolint:exhaustive
	case fsm.ExitHookRan:
		return "exit:" + rec.State, true
	case fsm.ActionRan:
		return "action:" + rec.Action, true
	case fsm.EntryHookRan:
		return "entry:" + rec.State, true
	case fsm.StateChanged:
		return "state:" + rec.Next, true
	case fsm.HookFailureSuppressed:
		return "suppressed:" + string(rec.Hook) + ":" + rec.State, true
	default:
		return "", false
	}
}
