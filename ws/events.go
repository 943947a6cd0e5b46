package ws

import (
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
)

// EventType labels a connection lifecycle event.
type EventType string

// Lifecycle events published on the connection's feed.
const (
	// EventConnected fires after every successful dial, the first one
	// included.
	EventConnected EventType = "connected"

	// EventDisconnected fires when the transport is lost. Pending calls
	// have already been failed when consumers observe it.
	EventDisconnected EventType = "disconnected"

	// EventResubscribed fires per subscription re-established after a
	// reconnect, carrying the subscription's client id.
	EventResubscribed EventType = "resubscribed"

	// EventResubscribeFailed fires when the server rejected a
	// subscription's replay after a reconnect. The subscription is
	// closed and Err carries the rejection.
	EventResubscribeFailed EventType = "resubscribe-failed"
)

// Event is one connection lifecycle transition.
type Event struct {
	Type EventType

	// Subscription is the client id of the affected subscription, only
	// set on the resubscribe events.
	Subscription uuid.UUID

	// Err carries the disconnect cause or the resubscribe failure.
	Err error
}

// SubscribeLifecycle registers ch to receive lifecycle events. The
// returned subscription must be unsubscribed when the consumer is done,
// and ch should be buffered: the feed drops no events but a stalled
// consumer stalls delivery.
func (c *Conn) SubscribeLifecycle(ch chan<- Event) event.Subscription {
	return c.feed.Subscribe(ch)
}
