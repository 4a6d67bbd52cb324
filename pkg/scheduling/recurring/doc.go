/*
Package recurring runs batches of tasks on cron schedules.

Every activation of a Job builds a fresh taskqueue.Queue, lets the job's
Build function add tasks to it, and reports the ordered outcome as a Run.
A job never overlaps itself: a tick that fires while the previous run is
still in progress is skipped.

Basic usage:

	r := recurring.New(recurring.Config{})
	err := r.Add(recurring.Job{
		Name:          "refresh",
		Schedule:      "0/5 * * * *",
		ParallelLimit: 4,
		Build: func(q *taskqueue.Queue[any]) error {
			for _, url := range urls {
				url := url
				q.AddTask(taskqueue.Async(func() (any, error) { return fetch(url) }))
			}
			return nil
		},
		OnResult: func(run recurring.Run) {
			log.Printf("%s: %d results, err=%v", run.Job, len(run.Results), run.Err)
		},
	})
	r.Start()
	defer func() { <-r.Stop() }()

Schedules accept standard five-field cron expressions, six-field
expressions with a leading seconds field, and descriptors such as
"@hourly" or "@every 1m".
*/
package recurring
