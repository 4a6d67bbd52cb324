package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/funcqueue/internal/testutil"
	fqerrors "github.com/vnykmshr/funcqueue/pkg/common/errors"
	"github.com/vnykmshr/funcqueue/pkg/scheduling/dispatch"
)

// newManualQueue creates a queue whose turns only run when the test asks.
func newManualQueue[T any](t *testing.T, limit int) (*Queue[T], *dispatch.Manual) {
	t.Helper()
	m := dispatch.NewManual()
	q, err := NewWithConfig[T](Config{ParallelLimit: limit, Dispatcher: m})
	testutil.AssertNoError(t, err)
	return q, m
}

// outcome captures what a completion callback received.
type outcome[T any] struct {
	calls   int
	err     error
	results []T
}

func (o *outcome[T]) callback() CompleteFunc[T] {
	return func(err error, results []T) {
		o.calls++
		o.err = err
		o.results = results
	}
}

func taskLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("Task %d", i+1)
	}
	return labels
}

func resolveWith(v string) TaskFunc[string] {
	return func(h *Handle[string]) { h.Resolve(v) }
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantError bool
	}{
		{"single", 1, false},
		{"several", 4, false},
		{"zero", 0, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New[string](tt.limit)
			if tt.wantError {
				testutil.AssertError(t, err)
				testutil.AssertEqual(t, errors.Is(err, fqerrors.ErrInvalidConfiguration), true)
				testutil.AssertEqual(t, fqerrors.IsValidationError(err), true)
				testutil.AssertEqual(t, q == nil, true)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, q.ParallelLimit(), tt.limit)
			testutil.AssertEqual(t, q.State(), StateOpen)
		})
	}
}

func TestNewWithConfigDefaults(t *testing.T) {
	q, err := NewWithConfig[int](Config{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, q.ParallelLimit(), DefaultParallelLimit)
	testutil.AssertEqual(t, q.Name(), DefaultName)

	_, err = NewWithConfig[int](Config{ParallelLimit: -2})
	testutil.AssertEqual(t, errors.Is(err, fqerrors.ErrInvalidConfiguration), true)
}

func TestAddTaskNeverRunsSynchronously(t *testing.T) {
	q, m := newManualQueue[string](t, 4)

	called := false
	q.AddTask(func(h *Handle[string]) {
		called = true
		h.Resolve("x")
	})

	testutil.AssertEqual(t, called, false)
	testutil.AssertEqual(t, q.Active(), 1)
	testutil.AssertEqual(t, m.Len(), 1)

	m.Run()
	testutil.AssertEqual(t, called, true)
	testutil.AssertEqual(t, q.State(), StateDoneOK)
}

func TestHandleEffectIsDeferred(t *testing.T) {
	q, m := newManualQueue[string](t, 1)

	q.AddTask(resolveWith("x"))
	testutil.AssertEqual(t, m.Step(), true) // runs the task body

	// The task resolved, but the queue has not seen the outcome yet.
	testutil.AssertEqual(t, q.Active(), 1)
	testutil.AssertEqual(t, q.State(), StateRunning)

	m.Run()
	testutil.AssertEqual(t, q.Active(), 0)
	testutil.AssertEqual(t, q.State(), StateDoneOK)
}

func TestResultsInSubmissionOrder(t *testing.T) {
	q, m := newManualQueue[string](t, 4)

	for _, label := range taskLabels(6) {
		q.AddTask(resolveWith(label))
	}
	var o outcome[string]
	q.Complete(o.callback())

	m.Run()

	testutil.AssertEqual(t, o.calls, 1)
	testutil.AssertNoError(t, o.err)
	testutil.AssertDiff(t, o.results, taskLabels(6))
}

func TestResultsIgnoreCompletionOrder(t *testing.T) {
	q, m := newManualQueue[string](t, 3)

	handles := make([]*Handle[string], 0, 3)
	for i := 0; i < 3; i++ {
		q.AddTask(func(h *Handle[string]) { handles = append(handles, h) })
	}
	m.Run()
	testutil.AssertEqual(t, len(handles), 3)

	// Finish in reverse order.
	handles[2].Resolve("third")
	handles[1].Resolve("second")
	handles[0].Resolve("first")

	var o outcome[string]
	q.Complete(o.callback())
	m.Run()

	testutil.AssertDiff(t, o.results, []string{"first", "second", "third"})
}

func TestParallelLimitNeverExceeded(t *testing.T) {
	const limit = 8
	const total = limit * 25

	q, err := New[string](limit)
	testutil.AssertNoError(t, err)

	var active, maxActive int32
	for _, label := range taskLabels(total) {
		label := label
		q.AddTask(func(h *Handle[string]) {
			cur := atomic.AddInt32(&active, 1)
			for {
				prev := atomic.LoadInt32(&maxActive)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
					break
				}
			}
			delay := time.Duration(rand.Intn(3)+1) * time.Millisecond
			time.AfterFunc(delay, func() {
				atomic.AddInt32(&active, -1)
				h.Resolve(label)
			})
		})
	}

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	results, err := q.Wait(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertDiff(t, results, taskLabels(total))

	if got := atomic.LoadInt32(&maxActive); got > limit {
		t.Errorf("max concurrent tasks = %d, want <= %d", got, limit)
	}
}

func TestSingleTaskAtATime(t *testing.T) {
	q, err := NewWithConfig[string](Config{})
	testutil.AssertNoError(t, err)

	var active int32
	var violations int32
	for _, label := range taskLabels(6) {
		label := label
		q.AddTask(func(h *Handle[string]) {
			atomic.AddInt32(&active, 1)
			time.AfterFunc(2*time.Millisecond, func() {
				if atomic.LoadInt32(&active) != 1 {
					atomic.AddInt32(&violations, 1)
				}
				atomic.AddInt32(&active, -1)
				h.Resolve(label)
			})
		})
	}

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	results, err := q.Wait(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertDiff(t, results, taskLabels(6))
	testutil.AssertEqual(t, atomic.LoadInt32(&violations), int32(0))
}

func TestNoValueTasksOmitted(t *testing.T) {
	t.Run("finish then value", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		q.AddTask(func(h *Handle[string]) { h.Finish() })
		q.AddTask(resolveWith("x"))

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		testutil.AssertNoError(t, o.err)
		testutil.AssertDiff(t, o.results, []string{"x"})
	})

	t.Run("gaps keep remaining order", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		for _, label := range taskLabels(12) {
			label := label
			q.AddTask(func(h *Handle[string]) {
				if label == "Task 2" || label == "Task 5" {
					h.Finish()
				}
				// Second call is ignored for tasks 2 and 5.
				h.Resolve(label)
			})
		}

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		testutil.AssertDiff(t, o.results, []string{
			"Task 1", "Task 3", "Task 4", "Task 6", "Task 7", "Task 8",
			"Task 9", "Task 10", "Task 11", "Task 12",
		})
	})

	t.Run("reject nil is no value", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		q.AddTask(func(h *Handle[string]) { h.Reject(nil) })

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		testutil.AssertNoError(t, o.err)
		testutil.AssertEqual(t, o.results != nil, true)
		testutil.AssertEqual(t, len(o.results), 0)
	})
}

func TestEmptyResultList(t *testing.T) {
	q, m := newManualQueue[int](t, 1)

	q.AddTask(func(h *Handle[int]) { h.Finish() })

	var o outcome[int]
	q.Complete(o.callback())
	m.Run()

	testutil.AssertEqual(t, o.calls, 1)
	testutil.AssertNoError(t, o.err)
	testutil.AssertEqual(t, o.results != nil, true)
	testutil.AssertEqual(t, len(o.results), 0)
}

func TestFailFast(t *testing.T) {
	taskErr := errors.New("task error")

	t.Run("reported error", func(t *testing.T) {
		q, m := newManualQueue[string](t, 4)

		var called, succeeded []string
		for _, label := range taskLabels(16) {
			label := label
			q.AddTask(func(h *Handle[string]) {
				called = append(called, label)
				if label == "Task 3" {
					h.Reject(taskErr)
					return
				}
				h.Resolve(label)
				succeeded = append(succeeded, label)
			})
		}

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		testutil.AssertEqual(t, o.calls, 1)
		testutil.AssertEqual(t, o.err, taskErr)
		testutil.AssertEqual(t, o.results == nil, true)
		testutil.AssertDiff(t, called, []string{"Task 1", "Task 2", "Task 3", "Task 4"})
		testutil.AssertDiff(t, succeeded, []string{"Task 1", "Task 2", "Task 4"})
		testutil.AssertEqual(t, q.State(), StateDoneError)
		testutil.AssertEqual(t, q.Active(), 0)
		testutil.AssertEqual(t, q.Pending(), 0)
	})

	t.Run("panicking task", func(t *testing.T) {
		q, err := NewWithConfig[string](Config{})
		testutil.AssertNoError(t, err)

		var mu sync.Mutex
		var called, succeeded []string
		for _, label := range taskLabels(16) {
			label := label
			q.AddTask(func(h *Handle[string]) {
				mu.Lock()
				called = append(called, label)
				mu.Unlock()
				if label == "Task 6" {
					panic(taskErr)
				}
				h.Resolve(label)
				mu.Lock()
				succeeded = append(succeeded, label)
				mu.Unlock()
			})
		}

		ctx, cancel := testutil.WithTimeout(t)
		defer cancel()

		results, err := q.Wait(ctx)
		testutil.AssertEqual(t, err, taskErr)
		testutil.AssertEqual(t, results == nil, true)

		mu.Lock()
		defer mu.Unlock()
		testutil.AssertDiff(t, called, taskLabels(6))
		testutil.AssertDiff(t, succeeded, taskLabels(5))
	})

	t.Run("non-error panic is wrapped", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		q.AddTask(func(h *Handle[string]) { panic("boom") })

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		var perr *fqerrors.PanicError
		if !errors.As(o.err, &perr) {
			t.Fatalf("err = %v, want *PanicError", o.err)
		}
		testutil.AssertEqual(t, perr.Value, interface{}("boom"))
		testutil.AssertEqual(t, len(perr.Stack) > 0, true)
	})

	t.Run("panic after resolve is ignored", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		q.AddTask(func(h *Handle[string]) {
			h.Resolve("kept")
			panic("late")
		})

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		testutil.AssertNoError(t, o.err)
		testutil.AssertDiff(t, o.results, []string{"kept"})
	})
}

func TestOutcomeAfterErrorDiscarded(t *testing.T) {
	q, m := newManualQueue[string](t, 2)

	var slow *Handle[string]
	q.AddTask(func(h *Handle[string]) { slow = h })
	q.AddTask(func(h *Handle[string]) { h.Reject(errors.New("fail")) })

	var o outcome[string]
	q.Complete(o.callback())
	m.Run()

	testutil.AssertEqual(t, o.calls, 1)
	testutil.AssertEqual(t, q.State(), StateDoneError)

	slow.Resolve("too late")
	m.Run()

	testutil.AssertEqual(t, o.calls, 1)
	testutil.AssertEqual(t, o.results == nil, true)
	testutil.AssertEqual(t, q.State(), StateDoneError)
}

func TestIdempotentHandle(t *testing.T) {
	t.Run("success then error", func(t *testing.T) {
		q, m := newManualQueue[string](t, 2)

		q.AddTask(func(h *Handle[string]) {
			h.Resolve("first")
			h.Reject(errors.New("ignored"))
			h.Finish()
		})
		q.AddTask(resolveWith("second"))

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		testutil.AssertEqual(t, o.calls, 1)
		testutil.AssertNoError(t, o.err)
		testutil.AssertDiff(t, o.results, []string{"first", "second"})
		testutil.AssertEqual(t, q.Active(), 0)
	})

	t.Run("success then success", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		q.AddTask(func(h *Handle[string]) {
			h.Done(nil, "first")
			h.Done(nil, "override")
			testutil.AssertEqual(t, h.Settled(), true)
		})

		var o outcome[string]
		q.Complete(o.callback())
		m.Run()

		testutil.AssertEqual(t, o.calls, 1)
		testutil.AssertDiff(t, o.results, []string{"first"})
	})
}

func TestReentrantAddTask(t *testing.T) {
	q, m := newManualQueue[string](t, 4)

	var newTask func(label string) TaskFunc[string]
	newTask = func(label string) TaskFunc[string] {
		return func(h *Handle[string]) {
			switch label {
			case "Task 4":
				h.Queue().AddTask(newTask("Additional task 1"))
			case "Task 5":
				h.Queue().AddTask(newTask("Additional task 2"))
			}
			h.Resolve(label)
		}
	}

	for _, label := range taskLabels(6) {
		q.AddTask(newTask(label))
	}

	var o outcome[string]
	q.Complete(o.callback())
	m.Run()

	testutil.AssertNoError(t, o.err)
	testutil.AssertDiff(t, o.results, append(taskLabels(6), "Additional task 1", "Additional task 2"))
}

func TestComplete(t *testing.T) {
	t.Run("only first registration fires", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		var first, second outcome[string]
		q.Complete(first.callback()).Complete(second.callback())
		q.AddTask(resolveWith("x"))
		m.Run()

		testutil.AssertEqual(t, first.calls, 1)
		testutil.AssertEqual(t, second.calls, 0)
	})

	t.Run("registered after finish", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		q.AddTask(resolveWith("x"))
		m.Run()
		testutil.AssertEqual(t, q.State(), StateDoneOK)

		var o outcome[string]
		q.Complete(o.callback())
		testutil.AssertEqual(t, o.calls, 0)

		m.Run()
		testutil.AssertEqual(t, o.calls, 1)
		testutil.AssertDiff(t, o.results, []string{"x"})
	})

	t.Run("without callback", func(t *testing.T) {
		q, m := newManualQueue[string](t, 1)

		q.AddTask(func(h *Handle[string]) { h.Reject(errors.New("unobserved")) })
		m.Run()

		testutil.AssertEqual(t, q.State(), StateDoneError)
	})

	t.Run("nil callback panics", func(t *testing.T) {
		q, _ := newManualQueue[string](t, 1)
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic")
			}
		}()
		q.Complete(nil)
	})
}

func TestAddTaskChainingAndValidation(t *testing.T) {
	q, m := newManualQueue[string](t, 2)

	got := q.AddTask(resolveWith("a")).AddTask(resolveWith("b"))
	testutil.AssertEqual(t, got, q)

	testutil.AssertEqual(t, errors.Is(q.Submit(nil), fqerrors.ErrNilTask), true)

	func() {
		defer func() {
			r := recover()
			err, ok := r.(error)
			if !ok || !errors.Is(err, fqerrors.ErrNilTask) {
				t.Errorf("recovered %v, want ErrNilTask", r)
			}
		}()
		q.AddTask(nil)
	}()

	m.Run()
	testutil.AssertEqual(t, q.State(), StateDoneOK)

	// Finished queues ignore further work.
	ran := false
	q.AddTask(func(h *Handle[string]) { ran = true; h.Finish() })
	testutil.AssertEqual(t, errors.Is(q.Submit(resolveWith("c")), fqerrors.ErrFinished), true)
	m.Run()
	testutil.AssertEqual(t, ran, false)
	testutil.AssertEqual(t, q.Pending(), 0)
}

func TestStateTransitions(t *testing.T) {
	q, m := newManualQueue[string](t, 2)
	testutil.AssertEqual(t, q.State(), StateOpen)

	q.AddTask(resolveWith("a")).AddTask(resolveWith("b")).AddTask(resolveWith("c"))
	testutil.AssertEqual(t, q.State(), StateRunning)
	testutil.AssertEqual(t, q.Active(), 2)
	testutil.AssertEqual(t, q.Pending(), 1)

	select {
	case <-q.Done():
		t.Fatal("queue should not be done")
	default:
	}

	m.Run()
	testutil.AssertEqual(t, q.State(), StateDoneOK)
	testutil.WaitClosed(t, q.Done(), time.Second)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateOpen, "open", false},
		{StateRunning, "running", false},
		{StateDoneOK, "done-ok", true},
		{StateDoneError, "done-error", true},
		{State(42), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			testutil.AssertEqual(t, tt.state.String(), tt.want)
			testutil.AssertEqual(t, tt.state.Terminal(), tt.terminal)
		})
	}
}

func TestWait(t *testing.T) {
	t.Run("ordered results", func(t *testing.T) {
		q, err := New[int](3)
		testutil.AssertNoError(t, err)

		for i := 0; i < 20; i++ {
			i := i
			q.AddTask(Async(func() (int, error) {
				time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
				return i * i, nil
			}))
		}

		ctx, cancel := testutil.WithTimeout(t)
		defer cancel()

		got, err := q.Wait(ctx)
		testutil.AssertNoError(t, err)

		want := make([]int, 20)
		for i := range want {
			want[i] = i * i
		}
		testutil.AssertDiff(t, got, want)
	})

	t.Run("context ends first", func(t *testing.T) {
		q, err := New[int](1)
		testutil.AssertNoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = q.Wait(ctx)
		testutil.AssertEqual(t, errors.Is(err, context.Canceled), true)
	})

	t.Run("error outcome", func(t *testing.T) {
		q, err := New[int](2)
		testutil.AssertNoError(t, err)

		failure := errors.New("failure")
		q.AddTask(AsyncNoValue[int](func() error { return nil }))
		q.AddTask(AsyncNoValue[int](func() error { return failure }))

		ctx, cancel := testutil.WithTimeout(t)
		defer cancel()

		got, err := q.Wait(ctx)
		testutil.AssertEqual(t, err, failure)
		testutil.AssertEqual(t, got == nil, true)
	})

	t.Run("async panic", func(t *testing.T) {
		q, err := New[int](1)
		testutil.AssertNoError(t, err)

		q.AddTask(Async(func() (int, error) { panic("async boom") }))

		ctx, cancel := testutil.WithTimeout(t)
		defer cancel()

		_, err = q.Wait(ctx)
		testutil.AssertEqual(t, fqerrors.IsPanic(err), true)
	})
}

func TestHandleSeq(t *testing.T) {
	q, m := newManualQueue[int](t, 2)

	for i := 0; i < 5; i++ {
		q.AddTask(func(h *Handle[int]) { h.Resolve(h.Seq()) })
	}

	var o outcome[int]
	q.Complete(o.callback())
	m.Run()

	testutil.AssertDiff(t, o.results, []int{0, 1, 2, 3, 4})
}
