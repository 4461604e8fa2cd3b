// Package lamport provides the logical clock that orders protocol messages.
package lamport

import "sync"

// Clock is a Lamport logical clock. The zero value is ready to use.
type Clock struct {
	mu    sync.Mutex
	value uint64
}

// New returns a clock starting at start
func New(start uint64) *Clock {
	return &Clock{value: start}
}

// Observe merges a clock value carried by a received message:
// local = max(local, remote) + 1. It returns the new local value.
func (c *Clock) Observe(remote uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.value {
		c.value = remote
	}
	c.value++
	return c.value
}

// Tick advances the clock for a locally built message and returns the value
// to stamp on it.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value++
	return c.value
}

// Value returns the current clock without advancing it
func (c *Clock) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
