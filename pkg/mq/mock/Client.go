// Package mock provides mock implementations of the mq package interfaces for testing.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/nettest/pkg/mq"
)

// MockClient is a mock implementation of ClientInterface for testing.
// It records pushed messages and hands out deliveries written to Deliveries.
type MockClient struct {
	mu sync.Mutex

	// PushFunc is called when Push is invoked. If nil, returns PushError.
	PushFunc func(ctx context.Context, data []byte) error
	// PushError is returned by Push if PushFunc is nil.
	PushError error
	// PushCalls tracks all calls to Push with their arguments.
	PushCalls []PushCall

	// UnsafePushError is returned by UnsafePush.
	UnsafePushError error
	// UnsafePushCalls tracks all calls to UnsafePush with their arguments.
	UnsafePushCalls []PushCall

	// Deliveries is returned by Consume unless ConsumeError is set.
	Deliveries chan amqp.Delivery
	// ConsumeError is returned by Consume.
	ConsumeError error
	// ConsumeCalls tracks the number of times Consume was called.
	ConsumeCalls int

	// WaitReadyError is returned by WaitReady.
	WaitReadyError error

	// CloseError is returned by Close.
	CloseError error
	// CloseCalls tracks the number of times Close was called.
	CloseCalls int
}

// PushCall records the arguments to a Push or UnsafePush call.
type PushCall struct {
	Ctx  context.Context
	Data []byte
}

// NewMockClient creates a new MockClient with default behavior (no errors).
func NewMockClient() *MockClient {
	return &MockClient{
		Deliveries: make(chan amqp.Delivery, 16),
	}
}

// Push implements ClientInterface.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	m.PushCalls = append(m.PushCalls, PushCall{Ctx: ctx, Data: data})
	fn, err := m.PushFunc, m.PushError
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, data)
	}
	return err
}

// UnsafePush implements ClientInterface.
func (m *MockClient) UnsafePush(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnsafePushCalls = append(m.UnsafePushCalls, PushCall{Ctx: ctx, Data: data})
	return m.UnsafePushError
}

// Consume implements ClientInterface.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConsumeCalls++
	if m.ConsumeError != nil {
		return nil, m.ConsumeError
	}
	return m.Deliveries, nil
}

// WaitReady implements ClientInterface.
func (m *MockClient) WaitReady(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WaitReadyError
}

// Close implements ClientInterface.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++
	return m.CloseError
}

// Pushed returns the bodies of every Push call so far.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	bodies := make([][]byte, 0, len(m.PushCalls))
	for _, call := range m.PushCalls {
		bodies = append(bodies, call.Data)
	}
	return bodies
}

// Reconnect closes the current deliveries channel, as amqp does when the
// connection drops, and returns the channel later Consume calls hand out.
func (m *MockClient) Reconnect() chan amqp.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := m.Deliveries
	m.Deliveries = make(chan amqp.Delivery, cap(closed))
	close(closed)
	return m.Deliveries
}

// Consumes reports how often Consume was called.
func (m *MockClient) Consumes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConsumeCalls
}

// Closes reports how often Close was called.
func (m *MockClient) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

// Ensure MockClient implements mq.ClientInterface.
var _ mq.ClientInterface = (*MockClient)(nil)
