package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/status-im/solwire-go/params"
)

// SubscriptionState is the lifecycle state of a single subscription.
type SubscriptionState int

const (
	// StateRequesting means the subscribe call is in flight.
	StateRequesting SubscriptionState = iota
	// StateActive means the server acknowledged the subscription and
	// notifications are being routed to the queue.
	StateActive
	// StateReconnecting means the transport was lost while the
	// subscription was active. It is replayed on the next connection.
	StateReconnecting
	// StateUnsubscribing means an unsubscribe call is in flight.
	StateUnsubscribing
	// StateClosed is terminal. The notification channel is closed.
	StateClosed
)

func (st SubscriptionState) String() string {
	switch st {
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateUnsubscribing:
		return "unsubscribing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Subscription is a consumer handle for one server-side subscription.
// The client id is stable for the handle's whole life; the server id
// changes on every reconnect.
type Subscription struct {
	clientID uuid.UUID
	kind     string
	params   []interface{}
	conn     *Conn

	// deliverMu serializes queue sends with the final close(queue) so
	// the channel is never closed mid-send.
	deliverMu sync.Mutex
	queue     chan json.RawMessage
	done      chan struct{}

	dropped atomic.Uint64

	mu     sync.Mutex
	state  SubscriptionState
	srvID  uint64
	opened bool
	err    error
}

func newSubscription(c *Conn, kind string, args []interface{}) *Subscription {
	return &Subscription{
		clientID: uuid.New(),
		kind:     kind,
		params:   args,
		conn:     c,
		queue:    make(chan json.RawMessage, c.queueSize),
		done:     make(chan struct{}),
		state:    StateRequesting,
	}
}

func (s *Subscription) subscribeMethod() string   { return s.kind + "Subscribe" }
func (s *Subscription) unsubscribeMethod() string { return s.kind + "Unsubscribe" }

// ID returns the client-side identifier of the subscription.
func (s *Subscription) ID() uuid.UUID { return s.clientID }

// Kind returns the subscription kind, e.g. "account" or "slot".
func (s *Subscription) Kind() string { return s.kind }

// State returns the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerID returns the server-assigned id of the current connection,
// zero while the subscription is not established.
func (s *Subscription) ServerID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srvID
}

// Dropped returns how many notifications were discarded because the
// queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Err returns the reason the subscription was closed. It is nil before
// closing and after a clean unsubscribe.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Notifications returns the delivery channel. Payloads are the raw
// result member of the notification frame; decode them into the
// matching notification type for the subscription's kind. The channel
// is closed when the subscription ends.
func (s *Subscription) Notifications() <-chan json.RawMessage {
	return s.queue
}

// Unsubscribe tells the server to stop the subscription and closes the
// handle. The handle is closed even when the server call fails or times
// out; the error is returned for visibility. Calling it again is a
// no-op.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateUnsubscribing {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	srvID := s.srvID
	s.state = StateUnsubscribing
	s.mu.Unlock()

	// Release the routing first so notifications racing the unsubscribe
	// are dropped instead of queued.
	s.conn.forget(s.clientID, srvID)

	var err error
	if prev == StateActive && srvID != 0 {
		var acked bool
		err = s.conn.call(ctx, &acked, s.unsubscribeMethod(), []interface{}{srvID})
	}
	s.close(nil)
	return err
}

// setActive installs the server id after a subscribe or resubscribe
// acknowledgment. It reports whether the handle still accepts
// activation; one already unsubscribing or closed does not, and its
// queue stays untouched.
func (s *Subscription) setActive(srvID uint64) bool {
	s.mu.Lock()
	if s.state != StateRequesting && s.state != StateReconnecting {
		s.mu.Unlock()
		return false
	}
	s.srvID = srvID
	s.state = StateActive
	first := !s.opened
	s.opened = true
	s.mu.Unlock()
	if first {
		s.conn.metrics.SubscriptionOpened()
	}
	return true
}

// markReconnecting flags an active subscription for replay after the
// transport was lost. The server id is dead with the old session.
func (s *Subscription) markReconnecting() {
	s.mu.Lock()
	if s.state == StateActive {
		s.state = StateReconnecting
	}
	s.mu.Unlock()
}

// close finishes the subscription and closes the notification channel.
// Safe to call more than once.
func (s *Subscription) close(reason error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.err = reason
	wasOpen := s.opened
	s.mu.Unlock()

	// Wake a deliver blocked on a full queue, then wait for it to let
	// go before closing the channel.
	close(s.done)
	s.deliverMu.Lock()
	close(s.queue)
	s.deliverMu.Unlock()

	if wasOpen {
		s.conn.metrics.SubscriptionClosed()
	}
}

// deliver routes one notification payload into the queue, applying the
// configured overflow policy. Only the connection's read loop calls it.
func (s *Subscription) deliver(raw json.RawMessage) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.State() != StateActive {
		return
	}

	if s.conn.overflowPolicy == params.OverflowBlock {
		select {
		case s.queue <- raw:
		case <-s.done:
		case <-s.conn.quit:
		}
		return
	}

	for {
		select {
		case s.queue <- raw:
			return
		case <-s.done:
			return
		default:
		}
		// Queue full: evict the oldest item to admit the newest.
		select {
		case <-s.queue:
			s.dropped.Add(1)
			s.conn.metrics.RecordDroppedNotification(s.kind)
		default:
		}
	}
}
