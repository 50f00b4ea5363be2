// Package webhook implements the delivery engine: it fans committed content
// events out to subscribed HTTP endpoints, classifies failures, retries with
// exponential backoff and records every attempt as an append-only delivery
// row. Scheduled retries are journaled to bbolt so they survive restarts.
package webhook

import (
	"context"
	"time"
)

// Events emitted by the engine itself.
const (
	EventBeforeSend = "webhook:beforeSend"
	EventAfterSend  = "webhook:afterSend"
)

// Webhook is a registered subscription.
type Webhook struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Events    []string          `json:"events"`
	Headers   map[string]string `json:"headers,omitempty"`
	Secret    string            `json:"secret,omitempty"`
	IsActive  bool              `json:"isActive"`
	CreatedAt time.Time         `json:"createdAt"`
}

// SubscribedTo reports whether the webhook wants an event.
func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Delivery is one HTTP attempt. Rows are append-only: a retry creates a
// fresh row with the next attempt number, the prior row is never touched
// again after its own attempt completes.
type Delivery struct {
	ID          string     `json:"id"`
	WebhookID   string     `json:"webhookId"`
	Event       string     `json:"event"`
	StatusCode  int        `json:"statusCode,omitempty"`
	Success     bool       `json:"success"`
	Attempt     int        `json:"attempt"`
	Response    string     `json:"response,omitempty"`
	Duration    int64      `json:"duration"` // milliseconds
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Store is the persistence contract for webhooks and their deliveries.
type Store interface {
	GetWebhook(ctx context.Context, id string) (*Webhook, error)
	// ActiveWebhooksForEvent returns active webhooks whose event list
	// includes the given event.
	ActiveWebhooksForEvent(ctx context.Context, event string) ([]*Webhook, error)
	InsertDelivery(ctx context.Context, d *Delivery) error
	// CompleteDelivery fills the outcome columns of the row created at
	// attempt start. It is the only permitted update to a delivery row.
	CompleteDelivery(ctx context.Context, d *Delivery) error
}

// Payload is the JSON body delivered to endpoints.
type Payload struct {
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}
