package taskqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	fqerrors "github.com/vnykmshr/funcqueue/pkg/common/errors"
	"github.com/vnykmshr/funcqueue/pkg/metrics"
)

// AddTask enqueues fn and starts as many pending tasks as capacity allows.
// Started tasks run on a later dispatcher turn, never before AddTask
// returns. Once the queue has finished, AddTask does nothing.
//
// AddTask panics if fn is nil. It returns the queue for chaining.
func (q *Queue[T]) AddTask(fn TaskFunc[T]) *Queue[T] {
	if fn == nil {
		panic(fmt.Errorf("%s: AddTask: %w", module, fqerrors.ErrNilTask))
	}
	_ = q.enqueue(fn)
	return q
}

// Submit is AddTask with error reporting: it returns ErrNilTask for a nil
// fn and ErrFinished if the queue has already finished.
func (q *Queue[T]) Submit(fn TaskFunc[T]) error {
	if fn == nil {
		return fqerrors.ErrNilTask
	}
	return q.enqueue(fn)
}

func (q *Queue[T]) enqueue(fn TaskFunc[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state.Terminal() {
		q.log.Debug().Stringer("state", q.state).Msg("ignoring task added after finish")
		return fqerrors.ErrFinished
	}

	q.pending = append(q.pending, fn)
	if q.metrics != nil {
		q.metrics.TasksAdded.WithLabelValues(q.name).Inc()
	}

	q.admitLocked()
	return nil
}

// Complete registers the callback that receives the queue's outcome. Only
// the first registration takes effect. The callback is always invoked on a
// dispatcher turn, never from within Complete, including when the queue
// had already finished at registration time.
//
// Complete panics if cb is nil. It returns the queue for chaining.
func (q *Queue[T]) Complete(cb CompleteFunc[T]) *Queue[T] {
	if cb == nil {
		panic(fmt.Errorf("%s: Complete: callback cannot be nil", module))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.onComplete != nil {
		return q
	}
	q.onComplete = cb

	if q.state.Terminal() {
		q.deliverLocked()
	}
	return q
}

// Done returns a channel that is closed when the queue finishes.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the queue finishes or ctx ends. It returns the same
// outcome delivered to the Complete callback; the returned slice is a copy.
// A queue that never receives a task never finishes.
func (q *Queue[T]) Wait(ctx context.Context) ([]T, error) {
	select {
	case <-q.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return nil, q.err
	}
	return slices.Clone(q.outcome), nil
}

// admitLocked starts pending tasks while capacity is available.
// Must be called with q.mu held.
func (q *Queue[T]) admitLocked() {
	for len(q.pending) > 0 && q.active < q.limit {
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]

		h := &Handle[T]{queue: q, seq: q.nextSeq}
		q.nextSeq++
		q.active++
		if q.state == StateOpen {
			q.state = StateRunning
		}

		q.log.Debug().Int("seq", h.seq).Int("active", q.active).Msg("task admitted")
		q.dispatcher.Defer(func() { q.exec(fn, h) })
	}

	q.gaugesLocked()
}

// exec invokes one admitted task. A panic in the task body is reported
// through the task's handle, as if the task had rejected.
func (q *Queue[T]) exec(fn TaskFunc[T], h *Handle[T]) {
	q.mu.Lock()
	finished := q.state.Terminal()
	q.mu.Unlock()

	if finished {
		q.log.Debug().Int("seq", h.seq).Msg("skipping task admitted before finish")
		return
	}

	h.started = time.Now()
	if q.metrics != nil {
		q.metrics.TasksStarted.WithLabelValues(q.name).Inc()
	}

	defer func() {
		if r := recover(); r != nil {
			q.log.Debug().Int("seq", h.seq).Interface("panic", r).Msg("task panicked")
			var zero T
			h.settle(fqerrors.FromPanic(r, debug.Stack()), zero, false)
		}
	}()

	fn(h)
}

// record applies a task outcome to the queue. It runs on a dispatcher turn
// after the task's handle was settled.
func (q *Queue[T]) record(h *Handle[T], err error, value T, hasValue bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state.Terminal() {
		q.log.Debug().Int("seq", h.seq).Msg("discarding outcome after finish")
		if q.metrics != nil {
			q.metrics.OutcomesDiscarded.WithLabelValues(q.name).Inc()
		}
		return
	}

	if q.metrics != nil && !h.started.IsZero() {
		q.metrics.TaskDuration.WithLabelValues(q.name).Observe(time.Since(h.started).Seconds())
	}

	if err != nil {
		if q.metrics != nil {
			q.metrics.TasksFailed.WithLabelValues(q.name).Inc()
		}
		q.log.Warn().Err(err).Int("seq", h.seq).Int("abandoned", len(q.pending)).Msg("task failed, abandoning queue")

		q.state = StateDoneError
		q.pending = nil
		q.active = 0
		q.finishLocked(err, nil)
		return
	}

	if q.metrics != nil {
		q.metrics.TasksSucceeded.WithLabelValues(q.name).Inc()
	}
	if hasValue {
		q.results[h.seq] = value
	}
	q.active--
	q.admitLocked()

	// admitLocked leaves pending empty whenever active drops to zero.
	if q.active == 0 {
		q.state = StateDoneOK
		q.finishLocked(nil, q.orderedLocked())
	}
}

// orderedLocked returns recorded values in sequence order, skipping tasks
// that finished without a value.
func (q *Queue[T]) orderedLocked() []T {
	out := make([]T, 0, len(q.results))
	for seq := 0; seq < q.nextSeq; seq++ {
		if v, ok := q.results[seq]; ok {
			out = append(out, v)
		}
	}
	return out
}

// finishLocked stores the outcome and notifies observers. The caller has
// already moved q.state to a terminal state.
func (q *Queue[T]) finishLocked(err error, out []T) {
	q.err = err
	q.outcome = out
	q.results = nil
	close(q.done)

	q.gaugesLocked()
	if q.metrics != nil {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		q.metrics.RunsFinished.WithLabelValues(q.name, outcome).Inc()
	}
	q.log.Debug().Stringer("state", q.state).Int("results", len(out)).Int("tasks", q.nextSeq).Msg("queue finished")

	if q.onComplete != nil {
		q.deliverLocked()
	}
}

// deliverLocked schedules the completion callback with the stored outcome.
func (q *Queue[T]) deliverLocked() {
	cb, err, out := q.onComplete, q.err, q.outcome
	q.dispatcher.Defer(func() { cb(err, out) })
}

func (q *Queue[T]) gaugesLocked() {
	if q.metrics == nil {
		return
	}
	q.metrics.ActiveTasks.WithLabelValues(q.name).Set(float64(q.active))
	q.metrics.PendingTasks.WithLabelValues(q.name).Set(float64(len(q.pending)))
}
