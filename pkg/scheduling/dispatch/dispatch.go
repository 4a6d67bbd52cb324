package dispatch

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher defers functions to a later turn.
//
// Implementations must never run fn within the caller's stack frame and
// must run deferred functions in the order they were deferred.
type Dispatcher interface {
	Defer(fn func())
}

// Func adapts an ordinary function to the Dispatcher interface.
// The adapted function is responsible for honouring the ordering contract.
type Func func(fn func())

// Defer implements Dispatcher.
func (f Func) Defer(fn func()) {
	f(fn)
}

// Config holds configuration options for a Loop.
type Config struct {
	// PanicHandler is called when a deferred function panics.
	// If nil, panics are recovered and logged.
	PanicHandler func(recovered interface{}, stack []byte)

	// Logger receives lifecycle and panic events. If nil, events are discarded.
	Logger *zerolog.Logger
}

// Loop is a goroutine-backed FIFO dispatcher.
//
// A single drain goroutine runs while work is queued and exits as soon as
// the queue is empty, so an idle Loop owns no goroutines. Deferred
// functions never run concurrently with each other.
type Loop struct {
	config Config
	log    zerolog.Logger

	mu      sync.Mutex
	idle    *sync.Cond // signalled when running goes false
	fns     []func()
	running bool
	closed  bool
}

// NewLoop creates a Loop with default configuration.
func NewLoop() *Loop {
	return NewLoopWithConfig(Config{})
}

// NewLoopWithConfig creates a Loop with the specified configuration.
func NewLoopWithConfig(config Config) *Loop {
	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}
	l := &Loop{
		config: config,
		log:    log.With().Str("component", "dispatch").Logger(),
	}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// Defer queues fn to run on the loop. Calls after Close are dropped.
func (l *Loop) Defer(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.log.Debug().Msg("dropping deferred function: loop closed")
		return
	}

	l.fns = append(l.fns, fn)
	if !l.running {
		l.running = true
		go l.drain()
	}
}

// Len returns the number of functions waiting to run.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// Close stops accepting new functions. Functions already queued still run.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Wait blocks until the loop is idle: nothing is queued and no deferred
// function is running. It may be called concurrently with Defer.
// After Close, Wait returns once every queued function has run.
func (l *Loop) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.running {
		l.idle.Wait()
	}
}

// drain runs queued functions until none are left.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.fns) == 0 {
			l.running = false
			l.idle.Broadcast()
			l.mu.Unlock()
			return
		}
		fn := l.fns[0]
		l.fns[0] = nil
		l.fns = l.fns[1:]
		l.mu.Unlock()

		l.run(fn)
	}
}

// run executes one deferred function, recovering any panic.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			if l.config.PanicHandler != nil {
				l.config.PanicHandler(r, stack)
				return
			}
			l.log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", stack).
				Msg("deferred function panicked")
		}
	}()

	fn()
}
