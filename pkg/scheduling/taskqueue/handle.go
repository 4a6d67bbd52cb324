package taskqueue

import (
	"sync/atomic"
	"time"
)

// Handle is the single-use completion handle given to each task.
//
// Only the first call to Resolve, Finish, Reject or Done has any effect;
// later calls are ignored. The outcome is applied to the queue on a later
// dispatcher turn, never inside the call itself. Handle methods are safe to
// call from any goroutine.
type Handle[T any] struct {
	queue   *Queue[T]
	seq     int
	started time.Time
	settled atomic.Bool
}

// Resolve completes the task successfully with a result value.
func (h *Handle[T]) Resolve(value T) {
	h.settle(nil, value, true)
}

// Finish completes the task successfully without a result. The task does
// not occupy a slot in the queue's results.
func (h *Handle[T]) Finish() {
	var zero T
	h.settle(nil, zero, false)
}

// Reject fails the task, which fails the whole queue. Reject(nil) is
// equivalent to Finish.
func (h *Handle[T]) Reject(err error) {
	var zero T
	h.settle(err, zero, false)
}

// Done is the callback form: a non-nil err rejects, otherwise value is
// recorded as the task's result. Use Finish to complete without a result.
func (h *Handle[T]) Done(err error, value T) {
	h.settle(err, value, err == nil)
}

// Queue returns the queue running this task, so a task can add more work.
func (h *Handle[T]) Queue() *Queue[T] {
	return h.queue
}

// Seq returns the task's sequence number, its position in submission order.
func (h *Handle[T]) Seq() int {
	return h.seq
}

// Settled reports whether the handle has already been used.
func (h *Handle[T]) Settled() bool {
	return h.settled.Load()
}

func (h *Handle[T]) settle(err error, value T, hasValue bool) {
	if !h.settled.CompareAndSwap(false, true) {
		h.queue.log.Debug().Int("seq", h.seq).Msg("ignoring repeated completion")
		return
	}
	h.queue.dispatcher.Defer(func() { h.queue.record(h, err, value, hasValue) })
}
