package clock

import (
	"sync"
	"time"
)

// Clock is the time source for block expiry decisions.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system wall clock.
//
// The monotonic reading is stripped so that comparisons against persisted
// expiry timestamps follow wall time, including time spent suspended.
type RealClock struct{}

func (c RealClock) Now() time.Time {
	return time.Now().Round(0)
}

// MockClock is a manually driven Clock for tests. Safe for concurrent use.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.CurrentTime = c.CurrentTime.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.CurrentTime = t
	c.mu.Unlock()
}
