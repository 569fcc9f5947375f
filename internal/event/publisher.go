package event

import (
	"context"
)

// Publisher hands security events off for delivery. Publish never fails and
// never blocks on the broker: delivery problems are the publisher's to log.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Transport delivers a single event to the external queue.
type Transport interface {
	Send(ctx context.Context, ev Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
