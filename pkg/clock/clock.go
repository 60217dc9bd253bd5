package clock

import (
	"sync"
	"time"
)

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the system clock
type Real struct{}

// New creates a Real clock
func New() Real {
	return Real{}
}

// Now returns the current time
func (Real) Now() time.Time {
	return time.Now()
}

// Mock is a manually advanced Clock for tests
type Mock struct {
	mu      sync.Mutex
	current time.Time
}

var _ Clock = (*Mock)(nil)

// NewMock creates a Mock set to the given time
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

// Now returns the mocked current time
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set sets the clock to t
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}
