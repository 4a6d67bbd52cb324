package testutil

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// CallbackTracker records invocations of a callback from any goroutine.
type CallbackTracker struct {
	mu     sync.Mutex
	count  int
	value  interface{}
	called chan struct{}
}

// NewCallbackTracker creates a tracker that has not been called.
func NewCallbackTracker() *CallbackTracker {
	return &CallbackTracker{called: make(chan struct{})}
}

// Mark records one invocation, optionally with a value.
func (c *CallbackTracker) Mark(v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if len(v) > 0 {
		c.value = v[0]
	}
	if c.count == 1 {
		close(c.called)
	}
}

// Called reports whether Mark has been called at least once.
func (c *CallbackTracker) Called() bool {
	return c.CallCount() > 0
}

// CallCount returns the number of Mark calls.
func (c *CallbackTracker) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Value returns the value passed to the most recent Mark.
func (c *CallbackTracker) Value() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// WaitCalled waits for the first Mark and reports whether it happened in time.
func (c *CallbackTracker) WaitCalled(timeout time.Duration) bool {
	select {
	case <-c.called:
		return true
	case <-time.After(timeout):
		return false
	}
}

// LogBuffer is a goroutine-safe io.Writer used to capture log output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

// String returns everything written so far.
func (lb *LogBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// Lines returns the non-empty lines written so far.
func (lb *LogBuffer) Lines() []string {
	var lines []string
	for _, l := range strings.Split(lb.String(), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Contains reports whether any written output contains s.
func (lb *LogBuffer) Contains(s string) bool {
	return strings.Contains(lb.String(), s)
}
