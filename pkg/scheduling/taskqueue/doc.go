/*
Package taskqueue runs asynchronous tasks with bounded concurrency and
collects their results in submission order.

A Queue admits at most ParallelLimit tasks at a time. Each task receives a
single-use Handle and reports its outcome through it, from any goroutine and
at any later time. When every task (including tasks added while the queue
is running) has finished, the completion callback receives the results in
the order the tasks were admitted, regardless of the order they finished.
The first task error abandons the queue: pending tasks never start, later
outcomes are discarded, and the callback receives only the error.

Basic usage:

	q, err := taskqueue.New[string](4)
	if err != nil {
		return err
	}

	for _, url := range urls {
		url := url
		q.AddTask(taskqueue.Async(func() (string, error) {
			return fetch(url)
		}))
	}

	q.Complete(func(err error, pages []string) {
		if err != nil {
			log.Printf("fetch failed: %v", err)
			return
		}
		log.Printf("fetched %d pages", len(pages))
	})

Or block for the outcome:

	pages, err := q.Wait(ctx)

Handles:

A task calls exactly one of:

	h.Resolve(v)     // success with a result
	h.Finish()       // success, no result recorded
	h.Reject(err)    // failure; fails the queue
	h.Done(err, v)   // callback form

Only the first call counts. A task that panics is treated as rejected: an
error panic value is delivered unchanged, any other value is wrapped in
*errors.PanicError.

Scheduling:

Task starts, task outcomes and the completion callback all run on turns of
the queue's dispatch.Dispatcher. AddTask never runs a task before it
returns, and a Handle call never applies its outcome before it returns.
The default dispatcher is a dispatch.Loop; task bodies run on it one at a
time, so tasks that block should do their work on another goroutine. Async
and AsyncNoValue do this for you.

Tasks may add more work through h.Queue().AddTask. Such tasks are admitted
like any other and their results sort after every task admitted before
them.

Configuration:

	q, err := taskqueue.NewWithConfig[int](taskqueue.Config{
		ParallelLimit: 8,
		Name:          "resize",
		Logger:        &logger,
		Metrics:       metrics.NewRegistry(prometheus.DefaultRegisterer),
	})

A Queue is single-use. After it finishes, AddTask is ignored and Submit
returns errors.ErrFinished.
*/
package taskqueue
