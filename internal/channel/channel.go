// Package channel defines the outbound messaging contract used by automation
// actions. Concrete adapters (Twilio SMS, WhatsApp) live in their own
// packages; the automation core depends only on this interface.
package channel

import (
	"context"
	"sync"
)

// Sender delivers an outbound message to a guest address. Implementations
// validate the recipient for their transport.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// SentMessage records one delivery made through a MockSender.
type SentMessage struct {
	To   string
	Body string
}

// MockSender is an in-memory Sender for tests.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage

	// Err, when set, is returned from every Send call.
	Err error
}

// NewMockSender creates a MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send records the message, or fails with the configured error.
func (m *MockSender) Send(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of all recorded messages.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
