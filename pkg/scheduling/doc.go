/*
Package scheduling provides task execution primitives for Go applications.

This package groups components for running asynchronous work:

  - taskqueue: Bounded-concurrency queue with ordered results and fail-fast completion
  - dispatch: Deferred-execution primitives (goroutine-backed and manually driven)
  - recurring: Cron-driven runner that executes a fresh queue on every tick

Task Queue:

A queue admits at most ParallelLimit tasks at once. Each task receives a
handle and reports exactly one outcome through it:

	q, _ := taskqueue.New[int](4)

	q.AddTask(func(h *taskqueue.Handle[int]) {
		go func() { h.Resolve(compute()) }()
	})

	results, err := q.Wait(ctx)

The first error ends the queue: pending tasks never start and later
outcomes are discarded.

Dispatch:

Tasks and completion callbacks never run inside the call that triggered
them. A Dispatcher decides where they run instead. The default Loop runs
them in FIFO order on a goroutine; Manual lets tests step through them:

	m := dispatch.NewManual()
	q, _ := taskqueue.NewWithConfig[int](taskqueue.Config{ParallelLimit: 2, Dispatcher: m})
	q.AddTask(task)
	m.Run()

Recurring:

	r := recurring.New(recurring.Config{})
	r.Add(recurring.Job{Name: "sync", Schedule: "@every 1m", Build: build})
	r.Start()
	defer func() { <-r.Stop() }()

All scheduling components are safe for concurrent use.
*/
package scheduling
