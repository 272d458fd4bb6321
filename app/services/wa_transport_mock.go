package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MockTransport is a scriptable in-process Transport used by the "mock"
// provider and by tests. Events are pushed through Emit.
type MockTransport struct {
	mu        sync.Mutex
	events    chan TransportEvent
	closed    bool
	SendErr   error
	Sent      []MockSentMessage
	LoggedOut bool
	Unknown   map[string]bool // phone -> not reachable
}

// MockSentMessage records one SendText call
type MockSentMessage struct {
	Phone   string
	Message string
}

// NewMockTransport creates a mock transport with a buffered event channel
func NewMockTransport() *MockTransport {
	return &MockTransport{
		events:  make(chan TransportEvent, 16),
		Unknown: make(map[string]bool),
	}
}

// Emit pushes a lifecycle event to consumers
func (t *MockTransport) Emit(ev TransportEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.events <- ev
}

func (t *MockTransport) Events() <-chan TransportEvent {
	return t.events
}

func (t *MockTransport) SendText(ctx context.Context, phone, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.Sent = append(t.Sent, MockSentMessage{Phone: phone, Message: message})
	return nil
}

func (t *MockTransport) CheckNumber(ctx context.Context, phone string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, errors.New("transport closed")
	}
	return !t.Unknown[NormalizePhone(phone)], nil
}

func (t *MockTransport) Logout(ctx context.Context) error {
	t.mu.Lock()
	t.LoggedOut = true
	t.mu.Unlock()
	return t.Close()
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.events)
	return nil
}

// MockDialer hands out MockTransports and records dial attempts. When
// Scripted is set, Dial pops transports from it in order; otherwise each
// Dial returns a fresh transport that immediately reports connected.
type MockDialer struct {
	mu          sync.Mutex
	Scripted    []*MockTransport
	DialErr     error
	Dialed      []uint
	Credentials map[uint]bool
}

// NewMockDialer creates a mock dialer
func NewMockDialer() *MockDialer {
	return &MockDialer{Credentials: make(map[uint]bool)}
}

func (d *MockDialer) Dial(ctx context.Context, accountID uint) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Dialed = append(d.Dialed, accountID)
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if len(d.Scripted) > 0 {
		t := d.Scripted[0]
		d.Scripted = d.Scripted[1:]
		return t, nil
	}

	t := NewMockTransport()
	t.Emit(TransportEvent{
		Kind:        EventConnected,
		PhoneNumber: fmt.Sprintf("62800%07d", accountID),
	})
	return t, nil
}

func (d *MockDialer) CredentialsExist(accountID uint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Credentials[accountID]
}
