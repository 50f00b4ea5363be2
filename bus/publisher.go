package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"strata.evalgo.org/common"
	"strata.evalgo.org/hooks"
)

// Event is the wire shape of one exported hook event.
type Event struct {
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Publisher publishes events to a message broker.
type Publisher interface {
	// Publish sends one event.
	Publish(event Event) error

	// Close releases the broker connection.
	Close() error
}

// RabbitMQPublisher publishes events to a durable RabbitMQ queue.
type RabbitMQPublisher struct {
	connection AMQPConnection
	channel    AMQPChannel
	queue      string
	logger     *logrus.Logger
}

// NewRabbitMQPublisher connects to the broker and declares the durable
// queue.
func NewRabbitMQPublisher(url, queue string) (*RabbitMQPublisher, error) {
	return NewRabbitMQPublisherWithDialer(url, queue, &RealAMQPDialer{})
}

// NewRabbitMQPublisherWithDialer allows injecting a dialer for testing.
func NewRabbitMQPublisherWithDialer(url, queue string, dialer AMQPDialer) (*RabbitMQPublisher, error) {
	conn, err := dialer.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &RabbitMQPublisher{
		connection: conn,
		channel:    ch,
		queue:      queue,
		logger:     common.Logger,
	}, nil
}

// Publish sends one event to the queue as persistent JSON.
func (p *RabbitMQPublisher) Publish(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.Publish(
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.connection.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := p.connection.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Bridge subscribes a publisher to hook events. Each listed event gets a
// low-priority action handler so domain handlers observe the event first; a
// broker failure is logged, never propagated into the emitting operation.
func Bridge(registry *hooks.Registry, publisher Publisher, events []string) []func() {
	logger := common.Logger
	unsubscribes := make([]func(), 0, len(events))
	for _, event := range events {
		off := registry.On(event, func(ctx context.Context, event string, payload hooks.Payload) error {
			err := publisher.Publish(Event{
				Event:     event,
				Timestamp: time.Now().Unix(),
				Data:      map[string]interface{}(payload),
			})
			if err != nil {
				logger.WithField("event", event).Warn("bus publish failed: ", err)
			}
			return nil
		}, hooks.Options{Priority: hooks.PriorityLow})
		unsubscribes = append(unsubscribes, off)
	}
	return unsubscribes
}
