package testutil

import (
	"sync"
	"time"
)

// GenesisUnix is the instant test clocks start at. Authorization
// deadlines in fixtures are expressed relative to it.
const GenesisUnix int64 = 1_700_000_000

// Clock is a settable test clock for deadline handling.
//
// Its Now method plugs into permit.WithClock, so a test can sign an
// authorization, advance the clock past the deadline, and watch the
// verifier reject it, all without real time passing.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock pinned to GenesisUnix.
func NewClock() *Clock {
	return &Clock{now: time.Unix(GenesisUnix, 0)}
}

// Now returns the current instant. Plug this into permit.WithClock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock to the given Unix second.
func (c *Clock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
