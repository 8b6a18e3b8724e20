package cache

import (
	"sync"
	"time"
)

// Clock is the time source used for TTL decisions.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// NewClock returns a Clock backed by time.Now.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

// TestClock is a manually advanced Clock.
type TestClock struct {
	mu   sync.Mutex
	time time.Time
}

func NewTestClock(start time.Time) *TestClock {
	return &TestClock{time: start}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Add moves the clock forward by d.
func (c *TestClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

// Set moves the clock to t.
func (c *TestClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = t
}
