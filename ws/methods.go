package ws

import (
	"context"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/rpc"
)

// Typed subscribe calls. Each folds the configured default commitment
// into the request the way the HTTP transport's method table does, and
// fails before any I/O on an unknown commitment level. Payloads arrive
// on the handle's Notifications channel as raw JSON; decode them into
// the notification type matching the subscription's kind.

// AccountSubscribe streams changes to the lamports or data of the given
// account. Payloads decode into AccountNotification.
func (c *Conn) AccountSubscribe(ctx context.Context, account solwire.PublicKey, commitment solwire.Commitment) (*Subscription, error) {
	commitment, err := c.effectiveCommitment(commitment)
	if err != nil {
		return nil, err
	}
	config := map[string]interface{}{"encoding": "base64"}
	if commitment != "" {
		config["commitment"] = commitment
	}
	return c.subscribe(ctx, "account", []interface{}{account, config})
}

// LogsSubscribe streams transaction logs. A nil mentions subscribes to
// all non-vote transactions; otherwise only transactions mentioning the
// account are delivered. Payloads decode into LogsNotification.
func (c *Conn) LogsSubscribe(ctx context.Context, mentions *solwire.PublicKey, commitment solwire.Commitment) (*Subscription, error) {
	commitment, err := c.effectiveCommitment(commitment)
	if err != nil {
		return nil, err
	}
	var filter interface{} = "all"
	if mentions != nil {
		filter = map[string]interface{}{"mentions": []solwire.PublicKey{*mentions}}
	}
	args := []interface{}{filter}
	if commitment != "" {
		args = append(args, map[string]interface{}{"commitment": commitment})
	}
	return c.subscribe(ctx, "logs", args)
}

// ProgramSubscribe streams changes to every account owned by the
// program, optionally narrowed by the same filters getProgramAccounts
// accepts. Payloads decode into ProgramNotification.
func (c *Conn) ProgramSubscribe(ctx context.Context, program solwire.PublicKey, filters []rpc.ProgramFilter, commitment solwire.Commitment) (*Subscription, error) {
	commitment, err := c.effectiveCommitment(commitment)
	if err != nil {
		return nil, err
	}
	config := map[string]interface{}{"encoding": "base64"}
	if commitment != "" {
		config["commitment"] = commitment
	}
	if len(filters) > 0 {
		config["filters"] = filters
	}
	return c.subscribe(ctx, "program", []interface{}{program, config})
}

// SignatureSubscribe streams the confirmation of one transaction
// signature. The server sends a single notification once the signature
// reaches the commitment and drops its side of the subscription; the
// handle should be unsubscribed after that notification. Payloads
// decode into SignatureNotification.
func (c *Conn) SignatureSubscribe(ctx context.Context, signature solwire.Signature, commitment solwire.Commitment) (*Subscription, error) {
	commitment, err := c.effectiveCommitment(commitment)
	if err != nil {
		return nil, err
	}
	args := []interface{}{signature}
	if commitment != "" {
		args = append(args, map[string]interface{}{"commitment": commitment})
	}
	return c.subscribe(ctx, "signature", args)
}

// SlotSubscribe streams slot progression as the node processes slots.
// Payloads decode into SlotNotification.
func (c *Conn) SlotSubscribe(ctx context.Context) (*Subscription, error) {
	return c.subscribe(ctx, "slot", nil)
}

// SlotsUpdatesSubscribe streams fine-grained slot lifecycle updates.
// Payloads decode into SlotsUpdatesNotification.
func (c *Conn) SlotsUpdatesSubscribe(ctx context.Context) (*Subscription, error) {
	return c.subscribe(ctx, "slotsUpdates", nil)
}

// RootSubscribe streams new root slots. Payloads decode into
// RootNotification.
func (c *Conn) RootSubscribe(ctx context.Context) (*Subscription, error) {
	return c.subscribe(ctx, "root", nil)
}

// VoteSubscribe streams votes observed in gossip before they land in a
// block. Payloads decode into VoteNotification.
func (c *Conn) VoteSubscribe(ctx context.Context) (*Subscription, error) {
	return c.subscribe(ctx, "vote", nil)
}
