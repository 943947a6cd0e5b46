package ws

import (
	"encoding/json"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/rpc"
)

// NotificationContext carries the slot a notification was produced at.
type NotificationContext struct {
	Slot uint64 `json:"slot"`
}

// AccountNotification is the payload of accountNotification frames.
type AccountNotification struct {
	Context NotificationContext `json:"context"`
	Value   rpc.Account         `json:"value"`
}

// LogsValue is the inner value of a logsNotification.
type LogsValue struct {
	Signature solwire.Signature `json:"signature"`
	Err       json.RawMessage   `json:"err"`
	Logs      []string          `json:"logs"`
}

// LogsNotification is the payload of logsNotification frames.
type LogsNotification struct {
	Context NotificationContext `json:"context"`
	Value   LogsValue           `json:"value"`
}

// ProgramNotification is the payload of programNotification frames.
type ProgramNotification struct {
	Context NotificationContext `json:"context"`
	Value   rpc.KeyedAccount    `json:"value"`
}

// SignatureValue is the inner value of a signatureNotification. Err is
// null when the transaction succeeded.
type SignatureValue struct {
	Err json.RawMessage `json:"err"`
}

// SignatureNotification is the payload of signatureNotification frames.
// The server sends it exactly once and then drops the subscription.
type SignatureNotification struct {
	Context NotificationContext `json:"context"`
	Value   SignatureValue      `json:"value"`
}

// SlotNotification is the payload of slotNotification frames. It is not
// wrapped in a context object.
type SlotNotification struct {
	Parent uint64 `json:"parent"`
	Root   uint64 `json:"root"`
	Slot   uint64 `json:"slot"`
}

// SlotsUpdatesNotification is the payload of slotsUpdatesNotification
// frames. Type is one of firstShredReceived, completed, createdBank,
// frozen, dead, optimisticConfirmation and root.
type SlotsUpdatesNotification struct {
	Parent    uint64 `json:"parent,omitempty"`
	Slot      uint64 `json:"slot"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Err       string `json:"err,omitempty"`
}

// RootNotification is the payload of rootNotification frames, the new
// root slot as a bare number.
type RootNotification uint64

// VoteNotification is the payload of voteNotification frames.
type VoteNotification struct {
	Hash       string            `json:"hash"`
	Slots      []uint64          `json:"slots"`
	Timestamp  *int64            `json:"timestamp"`
	Signature  solwire.Signature `json:"signature"`
	VotePubkey solwire.PublicKey `json:"votePubkey"`
}
