// Package metrics exposes the engine's Prometheus instrumentation: counters
// for workflow and task state transitions, and histograms for action
// dispatch latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DispatchDurationBuckets are the default latency buckets for
// dispatch_duration_seconds, in seconds.
var DispatchDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Registry holds a dedicated Prometheus registry and the instruments
// registered against it, so a host can run more than one engine instance
// in the same process without a metric-name collision.
type Registry struct {
	reg *prometheus.Registry

	WorkflowTransitions *prometheus.CounterVec
	TaskTransitions     *prometheus.CounterVec
	WorkItemDispatches  *prometheus.CounterVec
	DispatchDuration    *prometheus.HistogramVec
}

// New builds a Registry with a fresh prometheus.Registry and registers
// every instrument against it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		WorkflowTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricNameWithSubsystem("workflow", "transitions_total"),
			Help: "Count of workflow state transitions, labeled by the resulting state.",
		}, []string{"state"}),
		TaskTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricNameWithSubsystem("task", "transitions_total"),
			Help: "Count of task state transitions, labeled by task name and resulting state.",
		}, []string{"task", "state"}),
		WorkItemDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricNameWithSubsystem("work_item", "dispatches_total"),
			Help: "Count of work item action dispatches, labeled by action kind and outcome.",
		}, []string{"kind", "outcome"}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricNameWithSubsystem("dispatch", "duration_seconds"),
			Help:    "Latency of action dispatch calls, labeled by action kind.",
			Buckets: DispatchDurationBuckets,
		}, []string{"kind"}),
	}
}

// Handler returns an http.Handler serving this registry's metrics in
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveWorkflowTransition records a workflow reaching state.
func (r *Registry) ObserveWorkflowTransition(state string) {
	if r == nil {
		return
	}
	r.WorkflowTransitions.WithLabelValues(state).Inc()
}

// ObserveTaskTransition records a task named name reaching state.
func (r *Registry) ObserveTaskTransition(name, state string) {
	if r == nil {
		return
	}
	r.TaskTransitions.WithLabelValues(name, state).Inc()
}

// ObserveDispatch records one action dispatch of the given kind, its
// outcome ("ok" or "error"), and how long it took.
func (r *Registry) ObserveDispatch(kind, outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.WorkItemDispatches.WithLabelValues(kind, outcome).Inc()
	r.DispatchDuration.WithLabelValues(kind).Observe(seconds)
}
