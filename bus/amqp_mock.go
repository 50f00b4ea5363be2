package bus

import (
	"sync"

	"github.com/streadway/amqp"
)

// MockAMQPConnection is a mock implementation of AMQPConnection for testing
type MockAMQPConnection struct {
	// MockChannel is the channel to return from Channel()
	MockChannel AMQPChannel
	// Errors to return from operations
	ChannelErr error
	CloseErr   error
	// Track function calls
	ChannelCalled bool
	CloseCalled   bool
}

// Channel returns the mock channel
func (m *MockAMQPConnection) Channel() (AMQPChannel, error) {
	m.ChannelCalled = true
	if m.ChannelErr != nil {
		return nil, m.ChannelErr
	}
	return m.MockChannel, nil
}

// Close mocks closing the connection
func (m *MockAMQPConnection) Close() error {
	m.CloseCalled = true
	return m.CloseErr
}

// MockAMQPChannel is a mock implementation of AMQPChannel for testing
type MockAMQPChannel struct {
	mu sync.Mutex

	// PublishedMessages stores all published messages for verification
	PublishedMessages []amqp.Publishing
	// PublishedKeys stores routing keys for published messages
	PublishedKeys []string
	// Errors to return from operations
	QueueDeclareErr error
	PublishErr      error
	CloseErr        error
	// Track function calls
	QueueDeclareCalled bool
	CloseCalled        bool
	// Store last call parameters
	LastQueueName string
	LastExchange  string
}

// QueueDeclare mocks declaring a queue
func (m *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueueDeclareCalled = true
	m.LastQueueName = name
	if m.QueueDeclareErr != nil {
		return amqp.Queue{}, m.QueueDeclareErr
	}
	return amqp.Queue{Name: name}, nil
}

// Publish mocks publishing a message
func (m *MockAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastExchange = exchange
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.PublishedMessages = append(m.PublishedMessages, msg)
	m.PublishedKeys = append(m.PublishedKeys, key)
	return nil
}

// Close mocks closing the channel
func (m *MockAMQPChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return m.CloseErr
}

// Messages returns a snapshot of the published messages.
func (m *MockAMQPChannel) Messages() []amqp.Publishing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]amqp.Publishing, len(m.PublishedMessages))
	copy(out, m.PublishedMessages)
	return out
}

// MockAMQPDialer is a mock implementation of AMQPDialer for testing
type MockAMQPDialer struct {
	// MockConnection is the connection to return from Dial()
	MockConnection AMQPConnection
	// Error to return from Dial
	DialErr error
	// Track function calls
	DialCalled bool
	// Store last call parameters
	LastURL string
}

// Dial mocks dialing an AMQP connection
func (m *MockAMQPDialer) Dial(url string) (AMQPConnection, error) {
	m.DialCalled = true
	m.LastURL = url
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	return m.MockConnection, nil
}

// NewMockAMQPDialer creates a mock dialer wired for a successful setup
func NewMockAMQPDialer() (*MockAMQPDialer, *MockAMQPChannel) {
	channel := &MockAMQPChannel{}
	return &MockAMQPDialer{
		MockConnection: &MockAMQPConnection{MockChannel: channel},
	}, channel
}
