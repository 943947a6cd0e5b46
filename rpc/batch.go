package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/circuitbreaker"
	"github.com/status-im/solwire-go/jsonrpc"
	"github.com/status-im/solwire-go/metrics"
)

// BatchElem is one call of a batch request.
type BatchElem struct {
	Method string
	Args   []interface{}
	// Commitment folds into Args per the method table, exactly as in a
	// single call. Empty means the client default.
	Commitment solwire.Commitment
	// Result receives the element's decoded result. It must be a
	// pointer, or nil to discard the payload.
	Result interface{}
	// Error is the element's own verdict after the batch returns: the
	// server's error object, a decode failure, or
	// ErrMissingBatchResponse when the server skipped the element.
	Error error
}

// BatchCall sends all elements as a single batch and waits for the
// replies with the default deadline.
func (c *Client) BatchCall(b []BatchElem) error {
	return c.BatchCallContext(context.Background(), b)
}

// BatchCallContext sends all elements as a single batch envelope,
// preserving their order on the wire, and matches the replies by id
// whatever order they arrive in. Each element carries its own verdict
// in Error; only a transport-level failure makes the whole call fail. A
// batch error does not touch the elements' Result fields.
func (c *Client) BatchCallContext(ctx context.Context, b []BatchElem) error {
	if len(b) == 0 {
		return nil
	}
	if len(c.endpoints) == 0 {
		return ErrNoEndpoints
	}

	msgs := make([]*jsonrpc.Message, len(b))
	byID := make(map[uint64]*BatchElem, len(b))
	failover := true
	for i := range b {
		elem := &b[i]
		commitment, err := c.effectiveCommitment(elem.Commitment)
		if err != nil {
			return errors.Wrapf(err, "batch item %d (%s)", i, elem.Method)
		}
		id := c.nextID()
		msg, err := jsonrpc.NewRequest(id, elem.Method, foldCommitment(elem.Method, commitment, elem.Args))
		if err != nil {
			return errors.Wrapf(err, "batch item %d", i)
		}
		msgs[i] = msg
		byID[id] = elem
		if !isRetryable(elem.Method) {
			failover = false
		}
	}

	body, err := json.Marshal(msgs)
	if err != nil {
		return errors.Wrap(err, "marshal batch request")
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	start := time.Now()
	replies, endpoint, err := c.sendBatch(ctx, body, failover)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		for i := range b {
			c.metrics.RecordRequest(b[i].Method, endpoint, metrics.RequestOutcome(err), elapsed)
		}
		return err
	}

	for _, msg := range replies {
		id, err := msg.RequestID()
		if err != nil {
			c.logger.Debug("dropping batch reply without a usable id", zap.String("frame", msg.String()))
			continue
		}
		elem, ok := byID[id]
		if !ok {
			c.logger.Debug("dropping batch reply with unknown id", zap.Uint64("id", id))
			continue
		}
		// A duplicate id in the reply set resolves to the first frame.
		delete(byID, id)
		elem.Error = msg.UnmarshalResult(elem.Result)
	}
	for _, elem := range byID {
		elem.Error = ErrMissingBatchResponse
	}

	for i := range b {
		c.metrics.RecordRequest(b[i].Method, endpoint, metrics.RequestOutcome(b[i].Error), elapsed)
	}
	return nil
}

// sendBatch posts the batch envelope, failing over across endpoints
// only when every element is a read.
func (c *Client) sendBatch(ctx context.Context, body []byte, failover bool) ([]*jsonrpc.Message, string, error) {
	endpoints := c.endpoints
	if !failover {
		endpoints = endpoints[:1]
	}

	cmd := circuitbreaker.NewCommand(ctx, nil)
	for _, endpoint := range endpoints {
		endpoint := endpoint
		cmd.Add(circuitbreaker.NewFunctor(func() ([]any, error) {
			raw, err := c.postBody(ctx, endpoint, body)
			if err != nil {
				return nil, err
			}
			msgs, batch, err := jsonrpc.ParseMessage(raw)
			if err != nil {
				return nil, err
			}
			if !batch {
				// A single error object is how servers reject a whole
				// batch they could not parse. The server answered, so
				// the remaining endpoints are not tried.
				if len(msgs) == 1 && msgs[0].Error != nil {
					cmd.Cancel()
					return nil, msgs[0].Error
				}
				return nil, solwire.NewProtocolError("expected a batch response")
			}
			return []any{msgs, endpoint}, nil
		}, circuitName(endpoint)))
	}

	result := c.cb.Execute(cmd)
	if result.Error() != nil {
		return nil, "", result.Error()
	}
	res := result.Result()
	return res[0].([]*jsonrpc.Message), res[1].(string), nil
}
