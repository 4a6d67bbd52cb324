package dispatch

import "sync"

// Manual is a caller-driven FIFO dispatcher.
//
// Deferred functions run only when the owner calls Step or Run, on the
// owner's goroutine. It is intended for deterministic tests and for hosts
// that already own an event loop.
type Manual struct {
	mu  sync.Mutex
	fns []func()
}

// NewManual creates an empty Manual dispatcher.
func NewManual() *Manual {
	return &Manual{}
}

// Defer implements Dispatcher.
func (m *Manual) Defer(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.fns = append(m.fns, fn)
	m.mu.Unlock()
}

// Len returns the number of functions waiting to run.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

// Step runs the oldest deferred function. It reports false if there was
// nothing to run.
func (m *Manual) Step() bool {
	m.mu.Lock()
	if len(m.fns) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.fns[0]
	m.fns[0] = nil
	m.fns = m.fns[1:]
	m.mu.Unlock()

	fn()
	return true
}

// Run steps until no deferred functions remain, including functions
// deferred while running. It returns the number of functions run.
func (m *Manual) Run() int {
	n := 0
	for m.Step() {
		n++
	}
	return n
}
