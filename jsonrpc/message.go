// Package jsonrpc implements the JSON-RPC 2.0 envelope codec shared by
// the HTTP transport and the websocket multiplexer. It performs no I/O.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	solwire "github.com/status-im/solwire-go"
)

// Version is the protocol version tag carried by every envelope.
const Version = "2.0"

// ErrNoResult is returned when a response carries neither a result nor
// an error object.
var ErrNoResult = errors.New("no result in JSON-RPC response")

// Message represents a JSON-RPC request, notification, successful
// response or error response.
type Message struct {
	Version string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  json.RawMessage   `json:"params,omitempty"`
	Error   *solwire.RPCError `json:"error,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
}

// NewRequest builds a request envelope with the given id. A nil or
// empty params list is omitted from the envelope.
func NewRequest(id uint64, method string, params []interface{}) (*Message, error) {
	msg := &Message{
		Version: Version,
		ID:      json.RawMessage(strconv.FormatUint(id, 10)),
		Method:  method,
	}
	if len(params) > 0 {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal params of %s", method)
		}
		msg.Params = raw
	}
	return msg, nil
}

// IsNotification reports whether the message is a server-initiated
// notification: it names a method but carries no id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message correlates to a request id and
// carries a result or an error.
func (m *Message) IsResponse() bool {
	return len(m.ID) > 0 && m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// RequestID parses the envelope id as the uint64 the client issued.
// Anything else is a protocol error.
func (m *Message) RequestID() (uint64, error) {
	id, err := strconv.ParseUint(string(bytes.TrimSpace(m.ID)), 10, 64)
	if err != nil {
		return 0, solwire.NewProtocolError("non-numeric response id %q", string(m.ID))
	}
	return id, nil
}

// Validate checks the protocol version tag.
func (m *Message) Validate() error {
	if m.Version != Version {
		return solwire.NewProtocolError("unsupported JSON-RPC version %q", m.Version)
	}
	return nil
}

// UnmarshalResult decodes the response payload into v. A server error
// object takes precedence and is returned as *solwire.RPCError. Passing
// a nil v discards the payload. A response with neither result nor
// error yields ErrNoResult.
func (m *Message) UnmarshalResult(v interface{}) error {
	if m.Error != nil {
		return m.Error
	}
	if len(m.Result) == 0 {
		return ErrNoResult
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(m.Result, v); err != nil {
		return solwire.NewProtocolError("unmarshal result: %v", err)
	}
	return nil
}

// ParseMessage decodes a wire frame into one or more envelopes. The
// second return value reports whether the frame was a batch. Malformed
// JSON is a protocol error.
func ParseMessage(raw []byte) ([]*Message, bool, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false, solwire.NewProtocolError("empty frame")
	}
	if trimmed[0] == '[' {
		var msgs []*Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, true, solwire.NewProtocolError("unmarshal batch frame: %v", err)
		}
		return msgs, true, nil
	}
	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, false, solwire.NewProtocolError("unmarshal frame: %v", err)
	}
	return []*Message{&msg}, false, nil
}

// String renders the envelope as compact JSON for log fields.
func (m *Message) String() string {
	data, _ := json.Marshal(m)
	return string(data)
}
