package probe

import (
	"SentinelQoS/internal/logger"
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// FlowHandler processes a received flow message.
type FlowHandler func(ctx context.Context, m FlowMessage)

// Subscriber consumes flow summaries from a NATS subject and hands them to a
// fixed pool of workers. Messages that arrive while the buffer is full are
// dropped by the NATS client as slow-consumer messages.
type Subscriber struct {
	nc         *nats.Conn
	ownsConn   bool
	subject    string
	numWorkers int

	msgs   chan *nats.Msg
	sub    *nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber connects to NATS and prepares a subscriber.
func NewSubscriber(url, subject string, numWorkers, bufferSize int) (*Subscriber, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Log().Infof("Connected to NATS server at %s", url)
	s := NewSubscriberConn(nc, subject, numWorkers, bufferSize)
	s.ownsConn = true
	return s, nil
}

// NewSubscriberConn prepares a subscriber on an existing connection.
func NewSubscriberConn(nc *nats.Conn, subject string, numWorkers, bufferSize int) *Subscriber {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Subscriber{
		nc:         nc,
		subject:    subject,
		numWorkers: numWorkers,
		msgs:       make(chan *nats.Msg, bufferSize),
	}
}

// Start subscribes to the subject and starts the workers.
func (s *Subscriber) Start(ctx context.Context, handler FlowHandler) error {
	sub, err := s.nc.ChanSubscribe(s.subject, s.msgs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(s.numWorkers)
	for i := 0; i < s.numWorkers; i++ {
		go s.worker(ctx, handler)
	}
	logger.Log().Infof("Subscribed to '%s' with %d workers. Waiting for messages...", s.subject, s.numWorkers)
	return nil
}

func (s *Subscriber) worker(ctx context.Context, handler FlowHandler) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.msgs:
			m, err := DecodeFlow(msg.Data)
			if err != nil {
				logger.Log().Warnf("Error decoding flow message: %v", err)
				continue
			}
			handler(ctx, m)
		}
	}
}

// Close unsubscribes, stops the workers and closes an owned connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.ownsConn && s.nc != nil {
		s.nc.Close()
		logger.Log().Infof("NATS connection closed.")
	}
}
