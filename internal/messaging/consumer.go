package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veridian-systems/veridian/internal/models"
)

// EventHandler processes one inbound processed event.
type EventHandler func(event *models.ProcessedEvent)

// Consumer receives processed events from upstream processing over NATS.
type Consumer struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewConsumer connects to NATS. Subscribe must be called to start
// receiving.
func NewConsumer(url, name string) (*Consumer, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Consumer{conn: conn}, nil
}

// Subscribe starts delivering events on subject to handler. Malformed
// payloads are dropped; the upstream processing service owns payload
// validation.
func (c *Consumer) Subscribe(subject string, handler EventHandler) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event models.ProcessedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		handler(&event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.sub = sub
	return nil
}

func (c *Consumer) Close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.conn.Drain()
}
