package clock

import (
	"sync"
	"time"
)

// Mock is a manually driven clock for deterministic tests.
type Mock struct {
	mu      sync.Mutex
	current time.Time
}

func NewMock(start time.Time) *Mock {
	return &Mock{current: start}
}

// NewMockMs starts a mock clock at the given Unix millisecond reading.
func NewMockMs(ms int64) *Mock {
	return NewMock(time.UnixMilli(ms))
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}
