// Package clock abstracts wall-clock time so components that stamp batch
// identifiers or measure latency can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SystemClockDefault is the Clock used when a component is given none.
var SystemClockDefault Clock = SystemClock{}

// MockClock is a manually controlled Clock for tests.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ Clock = (*MockClock)(nil)

// NewMockClock creates a MockClock frozen at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetTime jumps the clock to t.
func (c *MockClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
