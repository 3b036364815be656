// Package oneshot provides a callback registration that unregisters itself
// after the first invocation.
package oneshot

import (
	"sync"
	"sync/atomic"
)

// Callback runs fn at most once. Fire and Disarm race safely; exactly one of
// them wins.
type Callback[T any] struct {
	fired atomic.Bool

	mu sync.Mutex
	fn func(T)
}

func New[T any](fn func(T)) *Callback[T] {
	return &Callback[T]{fn: fn}
}

// Fire invokes the callback with v if it has not fired or been disarmed yet.
// It reports whether the callback ran.
func (c *Callback[T]) Fire(v T) bool {
	if c == nil || !c.fired.CompareAndSwap(false, true) {
		return false
	}
	c.mu.Lock()
	fn := c.fn
	c.fn = nil
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(v)
	return true
}

// Disarm drops the callback without running it. It reports whether the
// callback was still armed.
func (c *Callback[T]) Disarm() bool {
	if c == nil || !c.fired.CompareAndSwap(false, true) {
		return false
	}
	c.mu.Lock()
	c.fn = nil
	c.mu.Unlock()
	return true
}

// Done reports whether the callback fired or was disarmed.
func (c *Callback[T]) Done() bool {
	return c == nil || c.fired.Load()
}
