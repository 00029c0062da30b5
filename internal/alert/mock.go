package alert

import (
	"context"
	"sync"
)

// MockNotifier records alerts for testing.
type MockNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// FailWith makes every Notify call return the given error.
func (m *MockNotifier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockNotifier) Notify(ctx context.Context, a Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.alerts = append(m.alerts, a)
	return nil
}

// Alerts returns a copy of everything notified so far.
func (m *MockNotifier) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
