package probe

import (
	"SentinelQoS/internal/logger"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher publishes flow summaries to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Log().Infof("Connected to NATS server at %s", url)
	return &Publisher{nc: nc, subject: subject}, nil
}

// NewPublisherConn wraps an existing connection.
func NewPublisherConn(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// Publish serializes a flow message and publishes it to the configured subject.
func (p *Publisher) Publish(m FlowMessage) error {
	data, err := EncodeFlow(m)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Flush waits until the server has processed all published messages.
func (p *Publisher) Flush() error {
	return p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		logger.Log().Infof("NATS connection drained and closed.")
	}
}
