package fsm

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink turns trace records into Prometheus metrics. Create one per
// registerer; registering twice panics, as with any promauto collector.
type MetricsSink struct {
	deliveries       *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	guardEvaluations *prometheus.CounterVec
	deferrals        *prometheus.CounterVec
	hookFailures     *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	actionDuration   *prometheus.HistogramVec
}

// NewMetricsSink registers the fsm collectors on reg. A nil reg creates
// unregistered collectors.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)

	return &MetricsSink{
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_deliveries_total",
			Help: "Total number of delivered inputs by table and outcome",
		}, []string{"table", "outcome"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_transitions_total",
			Help: "Total number of state changes by table, from_state and to_state",
		}, []string{"table", "from_state", "to_state"}),

		guardEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_guard_evaluations_total",
			Help: "Total number of guard evaluations by table, state and result",
		}, []string{"table", "state", "result"}),

		deferrals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_deferrals_total",
			Help: "Total number of deferred selection passes by table and state",
		}, []string{"table", "state"}),

		hookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_hook_failures_suppressed_total",
			Help: "Total number of suppressed entry and exit hook failures by table, state and hook",
		}, []string{"table", "state", "hook"}),

		deliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fsm_delivery_duration_seconds",
			Help:    "Duration of a delivery by table and outcome",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"table", "outcome"}),

		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fsm_action_duration_seconds",
			Help:    "Duration of transition action execution by table and action",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"table", "action"}),
	}
}

func (s *MetricsSink) Trace(_ context.Context, rec TraceRecord) {
	table := sanitizeLabel(rec.Table)

	switch rec.Kind { //nolint:exhaustive
	case GuardEvaluated:
		s.guardEvaluations.WithLabelValues(table, rec.State, rec.Result.String()).Inc()
	case DeliveryDeferred:
		s.deferrals.WithLabelValues(table, rec.State).Inc()
	case StateChanged:
		s.transitions.WithLabelValues(table, rec.State, rec.Next).Inc()
	case HookFailureSuppressed:
		s.hookFailures.WithLabelValues(table, rec.State, string(rec.Hook)).Inc()
	case ActionRan:
		s.actionDuration.WithLabelValues(table, rec.Action).Observe(rec.Duration.Seconds())
	case DeliveryFinished:
		result := outcome(rec.Err)
		s.deliveries.WithLabelValues(table, result).Inc()
		s.deliveryDuration.WithLabelValues(table, result).Observe(rec.Duration.Seconds())
	}
}

func sanitizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}

	return value
}
