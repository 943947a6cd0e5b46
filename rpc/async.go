package rpc

import (
	"context"

	"go.uber.org/zap"

	"github.com/status-im/solwire-go/common"
)

// Call represents an in-flight asynchronous RPC, in the manner of
// net/rpc: the caller selects on Done instead of blocking in the call.
type Call struct {
	Method string
	Args   []interface{}
	Result interface{}
	Error  error
	Done   chan *Call
}

// Go invokes the method asynchronously. It returns the Call structure
// representing the invocation; the same structure is delivered on Done
// when the call completes. If done is nil a fresh channel of capacity 1
// is allocated; if non-nil it must be buffered, or Go deliberately
// panics, exactly as net/rpc does, because an unbuffered channel would
// stall the completion goroutine.
func (c *Client) Go(ctx context.Context, method string, result interface{}, done chan *Call, args ...interface{}) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("rpc: done channel is unbuffered")
	}

	call := &Call{
		Method: method,
		Args:   args,
		Result: result,
		Done:   done,
	}
	go func() {
		defer common.LogOnPanic(c.logger)
		call.Error = c.CallContext(ctx, call.Result, call.Method, call.Args...)
		select {
		case call.Done <- call:
		default:
			// The channel's spare capacity is the caller's contract;
			// dropping beats blocking a completion forever.
			c.logger.Debug("async call discarded its completion",
				zap.String("method", method))
		}
	}()
	return call
}
