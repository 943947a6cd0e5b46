package rpc

import (
	"context"
	"encoding/json"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/jsonrpc"
)

// CallRaw posts a pre-encoded JSON-RPC payload, single request or
// batch, and returns the raw response body. Ids inside the payload are
// the caller's to manage, so the call is pinned to the primary endpoint
// with no retry. The payload is validated before dispatch: a frame
// without a method name never touches the network.
func (c *Client) CallRaw(ctx context.Context, body []byte) (json.RawMessage, error) {
	if len(c.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	msgs, _, err := jsonrpc.ParseMessage(body)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if msg.Method == "" {
			return nil, solwire.NewProtocolError("request frame without a method")
		}
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	raw, err := c.postBody(ctx, c.endpoints[0], body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
