package solwire

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ErrTimeout is returned when a call's deadline elapses before the
// matching response arrives. The pending request is discarded; it is
// never retried at the transport layer.
var ErrTimeout = errors.New("rpc call timed out")

// TransportError reports a connection-level failure: a dial, write or
// read on the underlying HTTP or websocket transport went wrong before
// a well-formed response could be correlated.
type TransportError struct {
	Op  string // failing operation: "dial", "write", "read", "post"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a connection-level failure.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// ProtocolError reports a malformed JSON-RPC envelope: wrong version
// tag, unparsable frame, or a response id that matches no pending
// request. Protocol errors on the notification path are logged and
// dropped; on the call path they fail the call.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// NewProtocolError builds a ProtocolError with a formatted reason.
func NewProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// RPCError is a structured application error reported by the server
// inside an otherwise well-formed response envelope.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
