package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/rpc"
	"github.com/status-im/solwire-go/ws"
)

const (
	// confirmInitialInterval is the first getSignatureStatuses poll
	// delay. The cluster produces a slot roughly every 400ms.
	confirmInitialInterval = 500 * time.Millisecond

	// confirmMaxInterval caps the delay between status polls.
	confirmMaxInterval = 5 * time.Second
)

// errAwaitingConfirmation marks a status poll that found the
// transaction below the requested commitment, so the backoff retries.
var errAwaitingConfirmation = errors.New("awaiting confirmation")

// TransactionFailedError reports a transaction that landed on chain and
// failed during execution. Err carries the program error verbatim.
type TransactionFailedError struct {
	Signature solwire.Signature
	Slot      uint64
	Err       json.RawMessage
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed at slot %d: %s", e.Signature, e.Slot, e.Err)
}

// SendRawTransaction submits a signed, serialized transaction and
// returns its signature. opts may be nil for the node defaults.
func (c *Client) SendRawTransaction(ctx context.Context, tx []byte, opts *rpc.SendTransactionOpts) (solwire.Signature, error) {
	sig, err := c.SendTransaction(ctx, base64.StdEncoding.EncodeToString(tx), opts)
	if err != nil {
		return solwire.Signature{}, err
	}
	c.notifyTransactionListeners(TransactionEvent{
		Type:      EventTransactionSent,
		Signature: sig,
	})
	return sig, nil
}

// SendAndConfirmTransaction submits the serialized transaction and
// waits until it reaches the commitment.
func (c *Client) SendAndConfirmTransaction(ctx context.Context, tx []byte, opts *rpc.SendTransactionOpts, commitment solwire.Commitment) (solwire.Signature, *rpc.SignatureStatus, error) {
	sig, err := c.SendRawTransaction(ctx, tx, opts)
	if err != nil {
		return solwire.Signature{}, nil, err
	}
	status, err := c.ConfirmTransaction(ctx, sig, commitment)
	if err != nil {
		return sig, nil, err
	}
	return sig, status, nil
}

// ConfirmTransaction polls getSignatureStatuses with backoff until the
// signature reaches the requested commitment, the transaction fails, or
// ctx ends. An empty commitment means the client default. Progress is
// published on the transaction event feed.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solwire.Signature, commitment solwire.Commitment) (*rpc.SignatureStatus, error) {
	target, err := c.confirmTarget(commitment)
	if err != nil {
		return nil, err
	}

	var (
		last     *rpc.SignatureStatus
		lastSeen solwire.Commitment
	)
	operation := func() error {
		statuses, err := c.GetSignatureStatuses(ctx, []solwire.Signature{sig}, false)
		if err != nil {
			// The RPC layer already retried transient failures.
			return backoff.Permanent(err)
		}
		if len(statuses) == 0 || statuses[0] == nil {
			return errAwaitingConfirmation
		}
		last = statuses[0]
		if last.Failed() {
			return backoff.Permanent(c.failTransaction(sig, last.Slot, last.Err, last.ConfirmationStatus))
		}
		if last.ConfirmationStatus != lastSeen {
			lastSeen = last.ConfirmationStatus
			c.notifyTransactionListeners(TransactionEvent{
				Type:       EventTransactionStatusChanged,
				Signature:  sig,
				Commitment: lastSeen,
			})
		}
		if !last.ConfirmationStatus.AtLeast(target) {
			return errAwaitingConfirmation
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = confirmInitialInterval
	policy.MaxInterval = confirmMaxInterval
	policy.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.WithMessagef(solwire.ErrTimeout, "confirm %s", sig)
		}
		return nil, err
	}

	c.notifyTransactionListeners(TransactionEvent{
		Type:       EventTransactionConfirmed,
		Signature:  sig,
		Commitment: last.ConfirmationStatus,
	})
	return last, nil
}

// ConfirmTransactionViaSubscription waits for the cluster to push the
// signature notification at the requested commitment instead of
// polling. One status check right after subscribing covers
// transactions that reached the commitment before the subscription was
// live, since the node only notifies on later transitions.
func (c *Client) ConfirmTransactionViaSubscription(ctx context.Context, sig solwire.Signature, commitment solwire.Commitment) (*rpc.SignatureStatus, error) {
	target, err := c.confirmTarget(commitment)
	if err != nil {
		return nil, err
	}

	sub, err := c.SignatureSubscribe(ctx, sig, target)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = sub.Unsubscribe(ctx)
	}()

	statuses, err := c.GetSignatureStatuses(ctx, []solwire.Signature{sig}, false)
	if err != nil {
		return nil, err
	}
	if len(statuses) > 0 && statuses[0] != nil {
		status := statuses[0]
		if status.Failed() {
			return nil, c.failTransaction(sig, status.Slot, status.Err, status.ConfirmationStatus)
		}
		if status.ConfirmationStatus.AtLeast(target) {
			c.notifyTransactionListeners(TransactionEvent{
				Type:       EventTransactionConfirmed,
				Signature:  sig,
				Commitment: status.ConfirmationStatus,
			})
			return status, nil
		}
	}

	select {
	case raw, ok := <-sub.Notifications():
		if !ok {
			reason := sub.Err()
			if reason == nil {
				reason = ws.ErrClosed
			}
			return nil, errors.WithMessagef(reason, "confirm %s", sig)
		}
		var note ws.SignatureNotification
		if err := json.Unmarshal(raw, &note); err != nil {
			return nil, errors.Wrap(err, "decode signature notification")
		}
		status := &rpc.SignatureStatus{
			Slot:               note.Context.Slot,
			Err:                note.Value.Err,
			ConfirmationStatus: target,
		}
		if status.Failed() {
			return nil, c.failTransaction(sig, status.Slot, status.Err, target)
		}
		c.notifyTransactionListeners(TransactionEvent{
			Type:       EventTransactionConfirmed,
			Signature:  sig,
			Commitment: target,
		})
		return status, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.WithMessagef(solwire.ErrTimeout, "confirm %s", sig)
		}
		return nil, ctx.Err()
	}
}

// failTransaction builds the failure error and publishes the matching
// event.
func (c *Client) failTransaction(sig solwire.Signature, slot uint64, txErr json.RawMessage, observed solwire.Commitment) error {
	failure := &TransactionFailedError{Signature: sig, Slot: slot, Err: txErr}
	c.notifyTransactionListeners(TransactionEvent{
		Type:       EventTransactionFailed,
		Signature:  sig,
		Commitment: observed,
		Err:        failure,
	})
	return failure
}

// confirmTarget resolves the commitment a confirmation waits for: the
// client default when commitment is empty, finalized when no default is
// configured either.
func (c *Client) confirmTarget(commitment solwire.Commitment) (solwire.Commitment, error) {
	if err := commitment.Validate(); err != nil {
		return "", err
	}
	if commitment == "" {
		commitment = c.DefaultCommitment()
	}
	if commitment == "" {
		commitment = solwire.CommitmentFinalized
	}
	return commitment, nil
}
