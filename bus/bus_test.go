package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata.evalgo.org/hooks"
)

// TestPublisherSetup tests dial, channel, durable queue declaration
func TestPublisherSetup(t *testing.T) {
	dialer, channel := NewMockAMQPDialer()

	publisher, err := NewRabbitMQPublisherWithDialer("amqp://localhost:5672/", "strata-events", dialer)
	require.NoError(t, err)
	defer publisher.Close()

	assert.True(t, dialer.DialCalled)
	assert.Equal(t, "amqp://localhost:5672/", dialer.LastURL)
	assert.True(t, channel.QueueDeclareCalled)
	assert.Equal(t, "strata-events", channel.LastQueueName)
}

// TestPublisherSetupFailure tests cleanup when queue declaration fails
func TestPublisherSetupFailure(t *testing.T) {
	dialer, channel := NewMockAMQPDialer()
	channel.QueueDeclareErr = errors.New("access refused")

	_, err := NewRabbitMQPublisherWithDialer("amqp://localhost:5672/", "strata-events", dialer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declare queue")
	assert.True(t, channel.CloseCalled)
	assert.True(t, dialer.MockConnection.(*MockAMQPConnection).CloseCalled)
}

// TestPublishEvent tests the persistent JSON message shape
func TestPublishEvent(t *testing.T) {
	dialer, channel := NewMockAMQPDialer()
	publisher, err := NewRabbitMQPublisherWithDialer("amqp://localhost:5672/", "strata-events", dialer)
	require.NoError(t, err)
	defer publisher.Close()

	require.NoError(t, publisher.Publish(Event{
		Event:     "content:afterCreate",
		Timestamp: 1724572800,
		Data:      map[string]interface{}{"id": "c1"},
	}))

	messages := channel.Messages()
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, []string{"strata-events"}, channel.PublishedKeys)

	var event Event
	require.NoError(t, json.Unmarshal(msg.Body, &event))
	assert.Equal(t, "content:afterCreate", event.Event)
	assert.Equal(t, int64(1724572800), event.Timestamp)
}

// TestBridge tests that hook events flow to the publisher and that broker
// failures stay out of the emitting operation
func TestBridge(t *testing.T) {
	dialer, channel := NewMockAMQPDialer()
	publisher, err := NewRabbitMQPublisherWithDialer("amqp://localhost:5672/", "strata-events", dialer)
	require.NoError(t, err)
	defer publisher.Close()

	registry := hooks.NewRegistry()
	unsubscribes := Bridge(registry, publisher, []string{"content:afterCreate", "content:afterDelete"})
	require.Len(t, unsubscribes, 2)

	result := registry.Emit(context.Background(), "content:afterCreate", hooks.Payload{"id": "c1"}, hooks.EmitOptions{})
	require.NoError(t, result.Err())
	require.Len(t, channel.Messages(), 1)

	// publish failure is swallowed: the emit stays clean
	channel.PublishErr = errors.New("broker gone")
	result = registry.Emit(context.Background(), "content:afterDelete", hooks.Payload{"id": "c1"}, hooks.EmitOptions{})
	assert.NoError(t, result.Err())

	// unsubscribing stops the flow
	channel.PublishErr = nil
	for _, off := range unsubscribes {
		off()
	}
	registry.Emit(context.Background(), "content:afterCreate", hooks.Payload{"id": "c2"}, hooks.EmitOptions{})
	assert.Len(t, channel.Messages(), 1)
}
