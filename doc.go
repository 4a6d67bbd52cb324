/*
Package funcqueue provides a bounded-concurrency task runner for Go.

Task Scheduling (pkg/scheduling):
  - taskqueue: Run tasks at most N at a time and collect results in submission order
  - dispatch: Deferred execution primitives that drive the queue
  - recurring: Cron-scheduled batches, each run through a fresh queue

Supporting packages:
  - metrics: Prometheus instrumentation
  - common/errors: Sentinel and structured error types
  - common/validation: Configuration validation helpers

Example usage:

	import (
		"github.com/vnykmshr/funcqueue/pkg/scheduling/taskqueue"
	)

	q, _ := taskqueue.New[string](3) // at most 3 tasks at once

	for _, url := range urls {
		url := url
		q.AddTask(taskqueue.Async(func() (string, error) { return fetch(url) }))
	}

	q.Complete(func(err error, bodies []string) {
		// bodies are in the order the tasks were added
	})
*/
package funcqueue
