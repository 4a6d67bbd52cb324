package taskqueue

import (
	"runtime/debug"

	fqerrors "github.com/vnykmshr/funcqueue/pkg/common/errors"
)

// Async adapts a blocking function into a task. fn runs on its own
// goroutine; its return values settle the task's handle. A panic in fn
// rejects the task.
func Async[T any](fn func() (T, error)) TaskFunc[T] {
	return func(h *Handle[T]) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					h.Reject(fqerrors.FromPanic(r, debug.Stack()))
				}
			}()

			v, err := fn()
			h.Done(err, v)
		}()
	}
}

// AsyncNoValue is Async for work that produces no result.
func AsyncNoValue[T any](fn func() error) TaskFunc[T] {
	return func(h *Handle[T]) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					h.Reject(fqerrors.FromPanic(r, debug.Stack()))
				}
			}()

			h.Reject(fn())
		}()
	}
}
