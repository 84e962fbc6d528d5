package lamport

import "sync"

// Clock is a Lamport logical clock. It is safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	time uint64
}

// New returns a clock starting at time 0.
func New() *Clock { return &Clock{} }

// Tick records a local event and returns the new time.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time++
	return c.time
}

// Observe merges a received timestamp into the clock: the local time becomes
// max(local, received) + 1.
//
// It reports whether received was not behind the local time before the
// update. Callers use the flag for logging only; a stale message is still
// applied.
func (c *Clock) Observe(received uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := received >= c.time
	c.time = max(c.time, received) + 1
	return current
}

// Current returns the clock's time without advancing it.
func (c *Clock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}
