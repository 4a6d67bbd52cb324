// Package metrics provides Prometheus instrumentation for funcqueue components.
//
// # Overview
//
// The metrics package instruments:
//   - Task queues (tasks added, started, succeeded, failed, discarded outcomes)
//   - Queue occupancy (active and pending tasks)
//   - Queue runs (terminal outcome per queue)
//   - Recurring batches (runs per job, skipped overlapping ticks)
//
// # Quick Start
//
// Pass a Registry to a component's config:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	q, err := taskqueue.NewWithConfig[string](taskqueue.Config{
//		ParallelLimit: 4,
//		Name:          "fetch",
//		Metrics:       reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// A nil Registry disables collection. Config.Build returns nil when
// Enabled is false, so configuration can be threaded through unchanged.
//
// # Available Metrics
//
// ## Queue Metrics
//
//   - funcqueue_queue_tasks_added_total
//   - funcqueue_queue_tasks_started_total
//   - funcqueue_queue_tasks_succeeded_total
//   - funcqueue_queue_tasks_failed_total
//   - funcqueue_queue_outcomes_discarded_total
//   - funcqueue_queue_task_duration_seconds
//   - funcqueue_queue_active_tasks
//   - funcqueue_queue_pending_tasks
//   - funcqueue_queue_runs_finished_total{outcome="ok|error"}
//
// ## Recurring Metrics
//
//   - funcqueue_recurring_runs_total{outcome="ok|error"}
//   - funcqueue_recurring_skipped_total
//
// All queue metrics carry a queue_name label; recurring metrics carry job_name.
package metrics
