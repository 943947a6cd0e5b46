package rpc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/mr-tron/base58"

	solwire "github.com/status-im/solwire-go"
)

// AccountData is an account payload in whichever encoding the server
// replied with. The ["<payload>", "<encoding>"] tuple form decodes into
// Bytes for the encodings this client requests; every form is also kept
// verbatim in Raw for callers that parse it themselves.
type AccountData struct {
	Bytes    []byte
	Encoding string
	Raw      json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *AccountData) UnmarshalJSON(data []byte) error {
	d.Bytes = nil
	d.Encoding = ""
	d.Raw = append(d.Raw[:0], data...)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}

	var tuple []string
	if err := json.Unmarshal(trimmed, &tuple); err != nil {
		return solwire.NewProtocolError("account data tuple: %v", err)
	}
	if len(tuple) != 2 {
		return solwire.NewProtocolError("account data tuple has %d elements, expected 2", len(tuple))
	}

	d.Encoding = tuple[1]
	switch tuple[1] {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(tuple[0])
		if err != nil {
			return solwire.NewProtocolError("account data base64: %v", err)
		}
		d.Bytes = decoded
	case "base58":
		decoded, err := base58.Decode(tuple[0])
		if err != nil {
			return solwire.NewProtocolError("account data base58: %v", err)
		}
		d.Bytes = decoded
	}
	// Other encodings (base64+zstd, jsonParsed) stay raw only.
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d AccountData) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	return []byte("null"), nil
}

// Account is the on-chain state of one address.
type Account struct {
	Lamports   uint64            `json:"lamports"`
	Owner      solwire.PublicKey `json:"owner"`
	Data       AccountData       `json:"data"`
	Executable bool              `json:"executable"`
	RentEpoch  uint64            `json:"rentEpoch"`
	Space      uint64            `json:"space"`
}

// KeyedAccount pairs an account with its address, as returned by the
// scan-style queries.
type KeyedAccount struct {
	Pubkey  solwire.PublicKey `json:"pubkey"`
	Account Account           `json:"account"`
}

// BlockCommitment is the cluster vote distribution over one block.
type BlockCommitment struct {
	Commitment []uint64 `json:"commitment"`
	TotalStake uint64   `json:"totalStake"`
}

// ClusterNode describes one node currently participating in the
// cluster's gossip network.
type ClusterNode struct {
	Pubkey       solwire.PublicKey `json:"pubkey"`
	Gossip       *string           `json:"gossip"`
	TPU          *string           `json:"tpu"`
	RPC          *string           `json:"rpc"`
	Version      *string           `json:"version"`
	FeatureSet   *uint32           `json:"featureSet"`
	ShredVersion *uint16           `json:"shredVersion"`
}

// EpochInfo is the ledger position expressed in epoch coordinates.
type EpochInfo struct {
	AbsoluteSlot     uint64  `json:"absoluteSlot"`
	BlockHeight      uint64  `json:"blockHeight"`
	Epoch            uint64  `json:"epoch"`
	SlotIndex        uint64  `json:"slotIndex"`
	SlotsInEpoch     uint64  `json:"slotsInEpoch"`
	TransactionCount *uint64 `json:"transactionCount"`
}

// EpochSchedule is the cluster's epoch layout.
type EpochSchedule struct {
	SlotsPerEpoch            uint64 `json:"slotsPerEpoch"`
	LeaderScheduleSlotOffset uint64 `json:"leaderScheduleSlotOffset"`
	Warmup                   bool   `json:"warmup"`
	FirstNormalEpoch         uint64 `json:"firstNormalEpoch"`
	FirstNormalSlot          uint64 `json:"firstNormalSlot"`
}

// InflationGovernor is the cluster's inflation parameterization.
type InflationGovernor struct {
	Initial        float64 `json:"initial"`
	Terminal       float64 `json:"terminal"`
	Taper          float64 `json:"taper"`
	Foundation     float64 `json:"foundation"`
	FoundationTerm float64 `json:"foundationTerm"`
}

// InflationRate is the effective inflation for one epoch.
type InflationRate struct {
	Total      float64 `json:"total"`
	Validator  float64 `json:"validator"`
	Foundation float64 `json:"foundation"`
	Epoch      uint64  `json:"epoch"`
}

// LargestAccount is one entry of the ledger's richest-accounts listing.
type LargestAccount struct {
	Address  solwire.PublicKey `json:"address"`
	Lamports uint64            `json:"lamports"`
}

// LatestBlockhash anchors new transactions to a ledger position. A
// transaction referencing Blockhash is valid until the cluster passes
// LastValidBlockHeight.
type LatestBlockhash struct {
	Blockhash            solwire.Blockhash `json:"blockhash"`
	LastValidBlockHeight uint64            `json:"lastValidBlockHeight"`
}

// LeaderSchedule maps a validator identity (base58) to the slot indices
// it leads, relative to the first slot of the queried epoch.
type LeaderSchedule map[string][]uint64

// SignatureInfo is one entry of an address's transaction history.
type SignatureInfo struct {
	Signature          solwire.Signature `json:"signature"`
	Slot               uint64            `json:"slot"`
	Err                json.RawMessage   `json:"err"`
	Memo               *string           `json:"memo"`
	BlockTime          *int64            `json:"blockTime"`
	ConfirmationStatus *string           `json:"confirmationStatus"`
}

// SignatureStatus is the cluster's current verdict on one transaction
// signature. Err is the program error verbatim, null on success.
type SignatureStatus struct {
	Slot               uint64             `json:"slot"`
	Confirmations      *uint64            `json:"confirmations"`
	Err                json.RawMessage    `json:"err"`
	ConfirmationStatus solwire.Commitment `json:"confirmationStatus"`
}

// Failed reports whether the transaction executed and failed.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && !bytes.Equal(bytes.TrimSpace(s.Err), []byte("null"))
}

// Supply is the token supply breakdown.
type Supply struct {
	Total                  uint64              `json:"total"`
	Circulating            uint64              `json:"circulating"`
	NonCirculating         uint64              `json:"nonCirculating"`
	NonCirculatingAccounts []solwire.PublicKey `json:"nonCirculatingAccounts"`
}

// TokenAmount is a token balance with its display decimals. Amount is
// the raw integer amount as a decimal string, exactly as the server
// encodes u64-overflowing values.
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       uint8    `json:"decimals"`
	UIAmountString string   `json:"uiAmountString"`
	UIAmount       *float64 `json:"uiAmount"`
}

// TokenLargestAccount is one of the largest holders of a mint.
type TokenLargestAccount struct {
	Address solwire.PublicKey `json:"address"`
	TokenAmount
}

// Version identifies the node software answering the endpoint.
type Version struct {
	SolanaCore string  `json:"solana-core"`
	FeatureSet *uint32 `json:"feature-set"`
}

// VoteAccount describes one voting validator.
type VoteAccount struct {
	VotePubkey       solwire.PublicKey `json:"votePubkey"`
	NodePubkey       solwire.PublicKey `json:"nodePubkey"`
	ActivatedStake   uint64            `json:"activatedStake"`
	EpochVoteAccount bool              `json:"epochVoteAccount"`
	Commission       uint8             `json:"commission"`
	LastVote         uint64            `json:"lastVote"`
	EpochCredits     [][3]uint64       `json:"epochCredits"`
	RootSlot         uint64            `json:"rootSlot"`
}

// VoteAccounts splits the vote accounts by liveness.
type VoteAccounts struct {
	Current    []VoteAccount `json:"current"`
	Delinquent []VoteAccount `json:"delinquent"`
}

// Block is one confirmed block. Transactions stay raw: their encoding
// is the external protocol's concern and program-specific decoding is
// out of scope here.
type Block struct {
	Blockhash         solwire.Blockhash   `json:"blockhash"`
	PreviousBlockhash solwire.Blockhash   `json:"previousBlockhash"`
	ParentSlot        uint64              `json:"parentSlot"`
	BlockHeight       *uint64             `json:"blockHeight"`
	BlockTime         *int64              `json:"blockTime"`
	Transactions      []json.RawMessage   `json:"transactions"`
	Signatures        []solwire.Signature `json:"signatures"`
	Rewards           json.RawMessage     `json:"rewards"`
}

// TransactionResult is one confirmed transaction with its metadata,
// both kept raw for the same reason as Block.Transactions.
type TransactionResult struct {
	Slot        uint64          `json:"slot"`
	BlockTime   *int64          `json:"blockTime"`
	Meta        json.RawMessage `json:"meta"`
	Transaction json.RawMessage `json:"transaction"`
}

// SimulateResult is the outcome of executing a transaction against the
// current bank without committing it.
type SimulateResult struct {
	Err           json.RawMessage `json:"err"`
	Logs          []string        `json:"logs"`
	UnitsConsumed *uint64         `json:"unitsConsumed"`
	ReturnData    json.RawMessage `json:"returnData"`
}

// Memcmp matches accounts whose data carries Bytes (base58) at Offset.
type Memcmp struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"`
}

// ProgramFilter narrows a getProgramAccounts scan. Exactly one of the
// fields should be set per filter.
type ProgramFilter struct {
	Memcmp   *Memcmp `json:"memcmp,omitempty"`
	DataSize uint64  `json:"dataSize,omitempty"`
}

// ProgramAccountsOpts are the optional knobs of getProgramAccounts.
type ProgramAccountsOpts struct {
	Filters []ProgramFilter
}

// SignaturesOpts page through an address's transaction history. Before
// and Until are base58 signatures bounding the scan; Limit caps the
// page size (server default and maximum is 1000).
type SignaturesOpts struct {
	Limit  int
	Before string
	Until  string
}

// TokenAccountsFilter narrows a token-account query to one mint or one
// token program. Exactly one field must be set.
type TokenAccountsFilter struct {
	Mint      *solwire.PublicKey `json:"mint,omitempty"`
	ProgramID *solwire.PublicKey `json:"programId,omitempty"`
}

// SendTransactionOpts tune the preflight checks of sendTransaction.
type SendTransactionOpts struct {
	// SkipPreflight submits without simulating first.
	SkipPreflight bool
	// PreflightCommitment is the bank level preflight simulates
	// against. Empty means the client default.
	PreflightCommitment solwire.Commitment
	// MaxRetries caps the node-side resend attempts. Nil leaves the
	// node's own policy in place.
	MaxRetries *uint
}
