package notify

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage records one delivery attempt made through the MockAdapter.
type SentMessage struct {
	Channel string // "SMS" or "CALL"
	To      string
	Body    string // SMS body or voice prompt URL
}

// MockAdapter implements Adapter for testing. It records every send and
// returns scripted results in order, defaulting to success once the script
// runs out.
type MockAdapter struct {
	mu      sync.Mutex
	sent    []SentMessage
	results []Result
	err     error
	counter int
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// QueueResult appends a scripted result for an upcoming send.
func (m *MockAdapter) QueueResult(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
}

// FailWith makes every send return the given error.
func (m *MockAdapter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of all recorded sends.
func (m *MockAdapter) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockAdapter) record(channel, to, body string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	m.sent = append(m.sent, SentMessage{Channel: channel, To: to, Body: body})
	if len(m.results) > 0 {
		r := m.results[0]
		m.results = m.results[1:]
		return r, nil
	}
	m.counter++
	return Result{Success: true, ProviderSID: fmt.Sprintf("MOCK-%d", m.counter), Status: "SENT"}, nil
}

func (m *MockAdapter) SendText(ctx context.Context, to, body string) (Result, error) {
	return m.record("SMS", to, body)
}

func (m *MockAdapter) SendVoice(ctx context.Context, to, promptURL string) (Result, error) {
	return m.record("CALL", to, promptURL)
}
