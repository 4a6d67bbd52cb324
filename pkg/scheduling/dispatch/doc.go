/*
Package dispatch provides the deferred-execution primitive used by task queues.

A Dispatcher accepts a function and runs it on a later turn, never inside
the caller's stack frame, and always in the order functions were deferred.
Task queues use it to start admitted tasks and to apply task outcomes, which
guarantees that adding a task never runs it synchronously and that a task's
completion is never observed from within its own call.

Two implementations are provided:

	loop := dispatch.NewLoop()     // goroutine-backed, the default
	manual := dispatch.NewManual() // caller-driven, for deterministic tests

Loop starts a single drain goroutine when work arrives and lets it exit once
the queue is empty:

	loop := dispatch.NewLoop()
	loop.Defer(func() { fmt.Println("later") })
	loop.Close()
	loop.Wait()

Manual runs nothing until asked:

	m := dispatch.NewManual()
	m.Defer(step1)
	m.Defer(step2)
	m.Run() // step1, then step2, then anything they deferred

Functions that block delay every function queued behind them. Long-running
work belongs on its own goroutine.
*/
package dispatch
