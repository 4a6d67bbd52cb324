// Package metrics provides Prometheus instrumentation for funcqueue components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values used by RunsFinished and RecurringRuns.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Registry holds all metric instances for funcqueue components.
type Registry struct {
	// Queue Metrics
	TasksAdded        *prometheus.CounterVec
	TasksStarted      *prometheus.CounterVec
	TasksSucceeded    *prometheus.CounterVec
	TasksFailed       *prometheus.CounterVec
	OutcomesDiscarded *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	ActiveTasks       *prometheus.GaugeVec
	PendingTasks      *prometheus.GaugeVec
	RunsFinished      *prometheus.CounterVec

	// Recurring Metrics
	RecurringRuns    *prometheus.CounterVec
	RecurringSkipped *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide Registry registered with
// prometheus.DefaultRegisterer. It is created on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, DefaultNamespace)
}

func newRegistry(reg prometheus.Registerer, ns string) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TasksAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "tasks_added_total",
				Help:      "Total number of tasks accepted by a queue",
			},
			[]string{"queue_name"},
		),

		TasksStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "tasks_started_total",
				Help:      "Total number of tasks invoked",
			},
			[]string{"queue_name"},
		),

		TasksSucceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "tasks_succeeded_total",
				Help:      "Total number of tasks that completed without error",
			},
			[]string{"queue_name"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that reported an error or panicked",
			},
			[]string{"queue_name"},
		),

		OutcomesDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "outcomes_discarded_total",
				Help:      "Task outcomes ignored because the queue had already finished",
			},
			[]string{"queue_name"},
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "task_duration_seconds",
				Help:      "Time between a task being invoked and reporting its outcome",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue_name"},
		),

		ActiveTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "active_tasks",
				Help:      "Number of tasks currently running",
			},
			[]string{"queue_name"},
		),

		PendingTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "pending_tasks",
				Help:      "Number of tasks waiting for a free slot",
			},
			[]string{"queue_name"},
		),

		RunsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "queue",
				Name:      "runs_finished_total",
				Help:      "Total number of queues that reached a terminal state",
			},
			[]string{"queue_name", "outcome"},
		),

		RecurringRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "recurring",
				Name:      "runs_total",
				Help:      "Total number of recurring batch runs",
			},
			[]string{"job_name", "outcome"},
		),

		RecurringSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "recurring",
				Name:      "skipped_total",
				Help:      "Ticks skipped because the previous run was still in progress",
			},
			[]string{"job_name"},
		),
	}
}
