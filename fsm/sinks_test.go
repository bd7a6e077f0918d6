package fsm_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/fsmtest"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer() (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return tp, exporter
}

func spanAttr(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}

	return ""
}

func TestMultiSink(t *testing.T) {
	t.Parallel()

	first := fsmtest.NewRecorder()
	second := fsmtest.NewRecorder()

	var calls int

	sink := fsm.MultiSink(first, nil, second, fsm.SinkFunc(func(context.Context, fsm.TraceRecord) {
		calls++
	}))

	sink.Trace(context.Background(), fsm.TraceRecord{Kind: fsm.DeliveryStarted})

	assert.Len(t, first.Records(), 1)
	assert.Len(t, second.Records(), 1)
	assert.Equal(t, 1, calls)

	assert.IsType(t, fsm.NopSink{}, fsm.MultiSink())
	assert.Same(t, first, fsm.MultiSink(nil, first))
}

func TestLogSink_SlogtSmoke(t *testing.T) {
	t.Parallel()

	conn := fsmtest.NewConnection(t, fsm.NewLogSink(slogt.New(t)))
	m := conn.NewMachine(t)
	ctx := context.Background()

	require.NoError(t, m.Deliver(ctx, fsmtest.Connect))
	require.NoError(t, m.Deliver(ctx, fsmtest.Ack))
	require.Error(t, m.Deliver(ctx, fsmtest.Connect))
}

func TestLogSink_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	in := fsm.StringInput("go")

	b := fsm.NewBuilder("levels", fsm.WithTraceSink(fsm.NewLogSink(log)))
	a := b.MustAddState("A", fsm.OnExit(failing("exitA", errBoom)))
	c := b.MustAddState("C")
	require.NoError(t, b.AddTransition(a, in, nil, c))

	m := b.MustFinalize().MustNewMachine(a)
	require.NoError(t, m.Deliver(context.Background(), in))
	require.Error(t, m.Deliver(context.Background(), in))

	levels := map[string]string{}

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))

		msg, _ := entry["msg"].(string)
		level, _ := entry["level"].(string)
		levels[msg] = level

		assert.Equal(t, "levels", entry["table"])
		assert.Equal(t, m.ID().String(), entry["machine_id"])
	}

	assert.Equal(t, "WARN", levels["Hook failure suppressed"])
	assert.Equal(t, "ERROR", levels["Invalid transition"])
	assert.Equal(t, "DEBUG", levels["State changed"])
	assert.Equal(t, "DEBUG", levels["Delivery finished"])
}

func TestMetricsSink(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	conn := fsmtest.NewConnection(t, fsm.NewMetricsSink(reg))
	m := conn.NewMachine(t)
	ctx := context.Background()

	require.NoError(t, m.Deliver(ctx, fsmtest.Connect))
	require.NoError(t, m.Deliver(ctx, fsmtest.Ack))
	require.Error(t, m.Deliver(ctx, fsmtest.Connect))

	expected := `
# HELP fsm_deliveries_total Total number of delivered inputs by table and outcome
# TYPE fsm_deliveries_total counter
fsm_deliveries_total{outcome="invalid_transition",table="connection"} 1
fsm_deliveries_total{outcome="success",table="connection"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fsm_deliveries_total"))

	expected = `
# HELP fsm_transitions_total Total number of state changes by table, from_state and to_state
# TYPE fsm_transitions_total counter
fsm_transitions_total{from_state="Connecting",table="connection",to_state="Connected"} 1
fsm_transitions_total{from_state="Idle",table="connection",to_state="Connecting"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fsm_transitions_total"))

	count, err := testutil.GatherAndCount(reg, "fsm_delivery_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// recordAttempt plus the built-in invalid transition action.
	count, err = testutil.GatherAndCount(reg, "fsm_action_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetricsSink_HooksAndDeferrals(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	in := fsm.StringInput("go")
	deferOnce := true

	b := fsm.NewBuilder("hooks-metrics", fsm.WithTraceSink(fsm.NewMetricsSink(reg)))
	a := b.MustAddState("A", fsm.OnExit(failing("exitA", errBoom)))
	c := b.MustAddState("C")
	require.NoError(t, b.AddTransition(a, in, nil, c, fsm.WithGuard(fsm.NewGuard("once",
		func(context.Context, *fsm.Machine, fsm.Input) fsm.GuardResult {
			if deferOnce {
				deferOnce = false

				return fsm.Deferred
			}

			return fsm.Enabled
		}))))

	m := b.MustFinalize().MustNewMachine(a)
	require.NoError(t, m.Deliver(context.Background(), in))

	expected := `
# HELP fsm_hook_failures_suppressed_total Total number of suppressed entry and exit hook failures by table, state and hook
# TYPE fsm_hook_failures_suppressed_total counter
fsm_hook_failures_suppressed_total{hook="exit",state="A",table="hooks-metrics"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fsm_hook_failures_suppressed_total"))

	expected = `
# HELP fsm_deferrals_total Total number of deferred selection passes by table and state
# TYPE fsm_deferrals_total counter
fsm_deferrals_total{state="A",table="hooks-metrics"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fsm_deferrals_total"))

	expected = `
# HELP fsm_guard_evaluations_total Total number of guard evaluations by table, state and result
# TYPE fsm_guard_evaluations_total counter
fsm_guard_evaluations_total{result="deferred",state="A",table="hooks-metrics"} 1
fsm_guard_evaluations_total{result="enabled",state="A",table="hooks-metrics"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fsm_guard_evaluations_total"))
}

func TestDeliverSpans(t *testing.T) {
	t.Parallel()

	tp, exporter := setupTestTracer()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	in := fsm.StringInput("go")

	b := fsm.NewBuilder("spans", fsm.WithTracerProvider(tp))
	a := b.MustAddState("A", fsm.OnExit(failing("exitA", errBoom)))
	c := b.MustAddState("C")
	require.NoError(t, b.AddTransition(a, in, nil, c))

	m := b.MustFinalize().MustNewMachine(a)
	require.NoError(t, m.Deliver(context.Background(), in))
	require.Error(t, m.Deliver(context.Background(), in))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "fsm.deliver", ok.Name)
	assert.Equal(t, codes.Ok, ok.Status.Code)
	assert.Equal(t, "spans", spanAttr(ok.Attributes, "fsm.table"))
	assert.Equal(t, m.ID().String(), spanAttr(ok.Attributes, "fsm.machine_id"))
	assert.Equal(t, "A", spanAttr(ok.Attributes, "fsm.state"))
	assert.Equal(t, "go", spanAttr(ok.Attributes, "fsm.input"))
	assert.Equal(t, "C", spanAttr(ok.Attributes, "fsm.next_state"))
	require.Len(t, ok.Events, 1)
	assert.Equal(t, "fsm.hook_failure_suppressed", ok.Events[0].Name)

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status.Code)
	assert.Equal(t, "invalid_transition", spanAttr(failed.Attributes, "fsm.outcome"))
	assert.Contains(t, failed.Status.Description, "invalid transition")
}
