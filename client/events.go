package client

import (
	"github.com/ethereum/go-ethereum/event"

	solwire "github.com/status-im/solwire-go"
)

// TransactionEventType labels one step of a submitted transaction's
// lifecycle.
type TransactionEventType string

// List of transaction lifecycle events.
const (
	// EventTransactionSent is emitted when a node accepts a submitted
	// transaction.
	EventTransactionSent TransactionEventType = "transaction-sent"

	// EventTransactionStatusChanged is emitted when a confirmation
	// wait observes a new commitment level for the transaction.
	EventTransactionStatusChanged TransactionEventType = "transaction-status-changed"

	// EventTransactionConfirmed is emitted when the transaction
	// reaches the requested commitment.
	EventTransactionConfirmed TransactionEventType = "transaction-confirmed"

	// EventTransactionFailed is emitted when the cluster reports an
	// execution error for the transaction.
	EventTransactionFailed TransactionEventType = "transaction-failed"
)

// TransactionEvent is pushed on the client's feed as submitted
// transactions move through the cluster. Commitment is the level
// observed when the event fired; Err is set on failure events.
type TransactionEvent struct {
	Type       TransactionEventType
	Signature  solwire.Signature
	Commitment solwire.Commitment
	Err        error
}

// SubscribeTransactionEvents registers ch for transaction lifecycle
// events. Sends block until every subscriber receives, so ch should be
// buffered.
func (c *Client) SubscribeTransactionEvents(ch chan<- TransactionEvent) event.Subscription {
	return c.feed.Subscribe(ch)
}

func (c *Client) notifyTransactionListeners(ev TransactionEvent) {
	c.feed.Send(ev)
}
