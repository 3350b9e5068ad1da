package model

import "context"

// Marker defines a generic interface for delivering QoS marking notifications
// to an enforcement collaborator.
type Marker interface {
	Apply(ctx context.Context, event MarkingEvent) error
	Name() string
}

// Notifier defines a generic interface for sending operator notifications.
type Notifier interface {
	Send(subject, body string) error
}
