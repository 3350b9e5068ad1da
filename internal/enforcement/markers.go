package enforcement

import (
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/probe"
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ActivityLog receives human-readable enforcement messages.
type ActivityLog interface {
	Logf(format string, args ...interface{})
}

// LogMarker records the marking it would apply instead of changing the host's
// packet filter.
type LogMarker struct {
	activity ActivityLog
}

// NewLogMarker creates a log-only marker. activity may be nil.
func NewLogMarker(activity ActivityLog) *LogMarker {
	return &LogMarker{activity: activity}
}

// Name implements model.Marker.
func (m *LogMarker) Name() string { return "log" }

// Apply implements model.Marker.
func (m *LogMarker) Apply(ctx context.Context, e model.MarkingEvent) error {
	msg := fmt.Sprintf("[SIM] Mark %s->%s:%d as DSCP=%s tc=%s", e.SourceIP, e.DestIP, e.DestPort, e.Marking.DSCPClass, e.Marking.TCClass)
	logger.WithFields(logrus.Fields{
		"flow_id":  e.FlowID,
		"app_type": e.Category,
		"dscp":     e.Marking.DSCPValue,
	}).Info(msg)
	if m.activity != nil {
		m.activity.Logf("%s", msg)
	}
	return nil
}

// busPublisher is the part of *nats.Conn a NATSMarker uses.
type busPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSMarker publishes marking events for an external enforcement agent.
type NATSMarker struct {
	nc      busPublisher
	subject string
}

// NewNATSMarker creates a marker publishing on subject.
func NewNATSMarker(nc *nats.Conn, subject string) *NATSMarker {
	return &NATSMarker{nc: nc, subject: subject}
}

// Name implements model.Marker.
func (m *NATSMarker) Name() string { return "nats" }

// Apply implements model.Marker.
func (m *NATSMarker) Apply(ctx context.Context, e model.MarkingEvent) error {
	data, err := probe.EncodeMarking(e)
	if err != nil {
		return err
	}
	if err := m.nc.Publish(m.subject, data); err != nil {
		return fmt.Errorf("failed to publish marking to %s: %w", m.subject, err)
	}
	return nil
}
