// Package messaging publishes created alerts for downstream consumers
// (triage UIs, responders). Publication is fire-and-forget: a broker
// outage never blocks or fails the reasoning pipeline.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veridian-systems/veridian/internal/models"
)

// Publisher delivers alert notifications.
type Publisher interface {
	PublishAlert(alert *models.Alert) error
	Close()
}

// NATSPublisher implements Publisher over a NATS connection.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS and returns a publisher on subject.
func NewNATSPublisher(url, subject, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) PublishAlert(alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Drain()
}

// NoopPublisher discards notifications; used when messaging is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishAlert(*models.Alert) error { return nil }
func (NoopPublisher) Close()                           {}
