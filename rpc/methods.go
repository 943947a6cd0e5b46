package rpc

import (
	"context"

	"github.com/pkg/errors"

	solwire "github.com/status-im/solwire-go"
)

// Typed wrappers over the generic call core. Every wrapper builds the
// method's positional parameters, leaves commitment folding to the
// method table and decodes the documented result shape. Wrappers for
// queries that may legitimately answer null (an unfunded account, a
// skipped slot) return a nil pointer, not an error.

// GetAccountInfo returns the account at the given address with its
// payload base64-decoded, or nil if the address holds no account at the
// requested commitment.
func (c *Client) GetAccountInfo(ctx context.Context, account solwire.PublicKey, commitment solwire.Commitment) (*Account, error) {
	var resp struct {
		Value *Account `json:"value"`
	}
	config := map[string]interface{}{"encoding": "base64"}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getAccountInfo", account, config); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetBalance returns the lamport balance of the account.
func (c *Client) GetBalance(ctx context.Context, account solwire.PublicKey, commitment solwire.Commitment) (uint64, error) {
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getBalance", account); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// GetBlock returns the confirmed block at the slot, or nil if the slot
// was skipped or is not yet available.
func (c *Client) GetBlock(ctx context.Context, slot uint64, commitment solwire.Commitment) (*Block, error) {
	var block *Block
	config := map[string]interface{}{"encoding": "json"}
	if err := c.CallWithCommitment(ctx, &block, commitment, "getBlock", slot, config); err != nil {
		return nil, err
	}
	return block, nil
}

// GetBlocks lists the confirmed slots between start and end inclusive,
// or from start up to the latest when end is nil.
func (c *Client) GetBlocks(ctx context.Context, start uint64, end *uint64, commitment solwire.Commitment) ([]uint64, error) {
	args := []interface{}{start}
	if end != nil {
		args = append(args, *end)
	}
	var slots []uint64
	if err := c.CallWithCommitment(ctx, &slots, commitment, "getBlocks", args...); err != nil {
		return nil, err
	}
	return slots, nil
}

// GetBlockCommitment returns the cluster's vote distribution over the
// block at the slot.
func (c *Client) GetBlockCommitment(ctx context.Context, slot uint64) (*BlockCommitment, error) {
	var bc BlockCommitment
	if err := c.CallContext(ctx, &bc, "getBlockCommitment", slot); err != nil {
		return nil, err
	}
	return &bc, nil
}

// GetBlockHeight returns the current block height.
func (c *Client) GetBlockHeight(ctx context.Context, commitment solwire.Commitment) (uint64, error) {
	var height uint64
	if err := c.CallWithCommitment(ctx, &height, commitment, "getBlockHeight"); err != nil {
		return 0, err
	}
	return height, nil
}

// GetBlockTime returns the estimated production time of the block as a
// unix timestamp, or nil when the ledger no longer carries it.
func (c *Client) GetBlockTime(ctx context.Context, slot uint64) (*int64, error) {
	var blockTime *int64
	if err := c.CallContext(ctx, &blockTime, "getBlockTime", slot); err != nil {
		return nil, err
	}
	return blockTime, nil
}

// GetClusterNodes lists the nodes currently visible in gossip.
func (c *Client) GetClusterNodes(ctx context.Context) ([]ClusterNode, error) {
	var nodes []ClusterNode
	if err := c.CallContext(ctx, &nodes, "getClusterNodes"); err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetEpochInfo returns the ledger position in epoch coordinates.
func (c *Client) GetEpochInfo(ctx context.Context, commitment solwire.Commitment) (*EpochInfo, error) {
	var info EpochInfo
	if err := c.CallWithCommitment(ctx, &info, commitment, "getEpochInfo"); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetEpochSchedule returns the cluster's epoch layout.
func (c *Client) GetEpochSchedule(ctx context.Context) (*EpochSchedule, error) {
	var schedule EpochSchedule
	if err := c.CallContext(ctx, &schedule, "getEpochSchedule"); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// GetFirstAvailableBlock returns the lowest slot the node still holds a
// block for.
func (c *Client) GetFirstAvailableBlock(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.CallContext(ctx, &slot, "getFirstAvailableBlock"); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetGenesisHash returns the hash the cluster was booted from.
func (c *Client) GetGenesisHash(ctx context.Context) (solwire.Blockhash, error) {
	var hash solwire.Blockhash
	if err := c.CallContext(ctx, &hash, "getGenesisHash"); err != nil {
		return "", err
	}
	return hash, nil
}

// GetHealth reports the node's own health verdict. A node inside the
// cluster's slot tolerance answers "ok"; a lagging one answers with an
// RPC error carrying the slot distance.
func (c *Client) GetHealth(ctx context.Context) (string, error) {
	var status string
	if err := c.CallContext(ctx, &status, "getHealth"); err != nil {
		return "", err
	}
	return status, nil
}

// Healthy folds GetHealth into a boolean probe.
func (c *Client) Healthy(ctx context.Context) bool {
	status, err := c.GetHealth(ctx)
	return err == nil && status == healthOK
}

// GetIdentity returns the identity address of the queried node.
func (c *Client) GetIdentity(ctx context.Context) (solwire.PublicKey, error) {
	var resp struct {
		Identity solwire.PublicKey `json:"identity"`
	}
	if err := c.CallContext(ctx, &resp, "getIdentity"); err != nil {
		return solwire.PublicKey{}, err
	}
	return resp.Identity, nil
}

// GetInflationGovernor returns the inflation parameterization.
func (c *Client) GetInflationGovernor(ctx context.Context, commitment solwire.Commitment) (*InflationGovernor, error) {
	var governor InflationGovernor
	if err := c.CallWithCommitment(ctx, &governor, commitment, "getInflationGovernor"); err != nil {
		return nil, err
	}
	return &governor, nil
}

// GetInflationRate returns the effective inflation for the current
// epoch.
func (c *Client) GetInflationRate(ctx context.Context) (*InflationRate, error) {
	var rate InflationRate
	if err := c.CallContext(ctx, &rate, "getInflationRate"); err != nil {
		return nil, err
	}
	return &rate, nil
}

// GetLargestAccounts lists the 20 largest accounts. The filter narrows
// the listing to "circulating" or "nonCirculating"; empty means all.
func (c *Client) GetLargestAccounts(ctx context.Context, filter string, commitment solwire.Commitment) ([]LargestAccount, error) {
	var resp struct {
		Value []LargestAccount `json:"value"`
	}
	args := []interface{}{}
	if filter != "" {
		args = append(args, map[string]interface{}{"filter": filter})
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getLargestAccounts", args...); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetLatestBlockhash returns a blockhash to anchor new transactions to,
// served from the TTL cache when one is configured.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment solwire.Commitment) (*LatestBlockhash, error) {
	commitment, err := c.effectiveCommitment(commitment)
	if err != nil {
		return nil, err
	}
	if c.blockhashes != nil {
		if cached, ok := c.blockhashes.get(commitment); ok {
			return &cached, nil
		}
	}

	var resp struct {
		Value LatestBlockhash `json:"value"`
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getLatestBlockhash"); err != nil {
		return nil, err
	}
	if c.blockhashes != nil {
		c.blockhashes.put(commitment, resp.Value)
	}
	return &resp.Value, nil
}

// GetLeaderSchedule returns the leader schedule of the epoch holding
// the slot (the current epoch when slot is nil), or nil when the slot
// falls outside any known epoch.
func (c *Client) GetLeaderSchedule(ctx context.Context, slot *uint64, commitment solwire.Commitment) (LeaderSchedule, error) {
	var args []interface{}
	if slot != nil {
		args = append(args, *slot)
	}
	var schedule LeaderSchedule
	if err := c.CallWithCommitment(ctx, &schedule, commitment, "getLeaderSchedule", args...); err != nil {
		return nil, err
	}
	return schedule, nil
}

// GetMinimumBalanceForRentExemption returns the lamports an account of
// the given data size must hold to stay rent exempt.
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64, commitment solwire.Commitment) (uint64, error) {
	var lamports uint64
	if err := c.CallWithCommitment(ctx, &lamports, commitment, "getMinimumBalanceForRentExemption", dataLen); err != nil {
		return 0, err
	}
	return lamports, nil
}

// GetMultipleAccounts returns the accounts at the given addresses, one
// entry per input in input order, nil for addresses without an account.
// The server caps the batch at 100 addresses.
func (c *Client) GetMultipleAccounts(ctx context.Context, accounts []solwire.PublicKey, commitment solwire.Commitment) ([]*Account, error) {
	var resp struct {
		Value []*Account `json:"value"`
	}
	config := map[string]interface{}{"encoding": "base64"}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getMultipleAccounts", accounts, config); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetProgramAccounts scans all accounts owned by the program, optionally
// narrowed by filters.
func (c *Client) GetProgramAccounts(ctx context.Context, program solwire.PublicKey, opts *ProgramAccountsOpts, commitment solwire.Commitment) ([]KeyedAccount, error) {
	config := map[string]interface{}{"encoding": "base64"}
	if opts != nil && len(opts.Filters) > 0 {
		config["filters"] = opts.Filters
	}
	var accounts []KeyedAccount
	if err := c.CallWithCommitment(ctx, &accounts, commitment, "getProgramAccounts", program, config); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetSignaturesForAddress pages backwards through the transaction
// history touching the address, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, account solwire.PublicKey, opts *SignaturesOpts, commitment solwire.Commitment) ([]SignatureInfo, error) {
	args := []interface{}{account}
	config := map[string]interface{}{}
	if opts != nil {
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
	}
	if len(config) > 0 {
		args = append(args, config)
	}
	var infos []SignatureInfo
	if err := c.CallWithCommitment(ctx, &infos, commitment, "getSignaturesForAddress", args...); err != nil {
		return nil, err
	}
	return infos, nil
}

// GetSignatureStatuses returns the cluster's verdict on each signature,
// one entry per input in input order, nil for unknown signatures. With
// searchHistory the node also scans its ledger beyond the recent status
// cache.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []solwire.Signature, searchHistory bool) ([]*SignatureStatus, error) {
	var resp struct {
		Value []*SignatureStatus `json:"value"`
	}
	config := map[string]interface{}{"searchTransactionHistory": searchHistory}
	if err := c.CallContext(ctx, &resp, "getSignatureStatuses", signatures, config); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetSlot returns the latest slot the node has reached at the
// commitment.
func (c *Client) GetSlot(ctx context.Context, commitment solwire.Commitment) (uint64, error) {
	var slot uint64
	if err := c.CallWithCommitment(ctx, &slot, commitment, "getSlot"); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetSlotLeader returns the identity of the current slot leader.
func (c *Client) GetSlotLeader(ctx context.Context, commitment solwire.Commitment) (solwire.PublicKey, error) {
	var leader solwire.PublicKey
	if err := c.CallWithCommitment(ctx, &leader, commitment, "getSlotLeader"); err != nil {
		return solwire.PublicKey{}, err
	}
	return leader, nil
}

// GetSupply returns the lamport supply breakdown.
func (c *Client) GetSupply(ctx context.Context, commitment solwire.Commitment) (*Supply, error) {
	var resp struct {
		Value Supply `json:"value"`
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getSupply"); err != nil {
		return nil, err
	}
	return &resp.Value, nil
}

// GetTokenAccountBalance returns the token balance held by the token
// account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solwire.PublicKey, commitment solwire.Commitment) (*TokenAmount, error) {
	var resp struct {
		Value TokenAmount `json:"value"`
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getTokenAccountBalance", account); err != nil {
		return nil, err
	}
	return &resp.Value, nil
}

// GetTokenAccountsByDelegate lists the token accounts the delegate may
// move, narrowed by the filter.
func (c *Client) GetTokenAccountsByDelegate(ctx context.Context, delegate solwire.PublicKey, filter TokenAccountsFilter, commitment solwire.Commitment) ([]KeyedAccount, error) {
	return c.tokenAccounts(ctx, "getTokenAccountsByDelegate", delegate, filter, commitment)
}

// GetTokenAccountsByOwner lists the token accounts owned by the
// address, narrowed by the filter.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner solwire.PublicKey, filter TokenAccountsFilter, commitment solwire.Commitment) ([]KeyedAccount, error) {
	return c.tokenAccounts(ctx, "getTokenAccountsByOwner", owner, filter, commitment)
}

func (c *Client) tokenAccounts(ctx context.Context, method string, account solwire.PublicKey, filter TokenAccountsFilter, commitment solwire.Commitment) ([]KeyedAccount, error) {
	if (filter.Mint == nil) == (filter.ProgramID == nil) {
		return nil, errors.New("token accounts filter needs exactly one of mint or programId")
	}
	var resp struct {
		Value []KeyedAccount `json:"value"`
	}
	config := map[string]interface{}{"encoding": "base64"}
	if err := c.CallWithCommitment(ctx, &resp, commitment, method, account, filter, config); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetTokenLargestAccounts lists the 20 largest holders of the mint.
func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint solwire.PublicKey, commitment solwire.Commitment) ([]TokenLargestAccount, error) {
	var resp struct {
		Value []TokenLargestAccount `json:"value"`
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getTokenLargestAccounts", mint); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetTokenSupply returns the total supply of the mint.
func (c *Client) GetTokenSupply(ctx context.Context, mint solwire.PublicKey, commitment solwire.Commitment) (*TokenAmount, error) {
	var resp struct {
		Value TokenAmount `json:"value"`
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "getTokenSupply", mint); err != nil {
		return nil, err
	}
	return &resp.Value, nil
}

// GetTransaction returns the confirmed transaction with the signature,
// or nil when the cluster does not know it.
func (c *Client) GetTransaction(ctx context.Context, signature solwire.Signature, commitment solwire.Commitment) (*TransactionResult, error) {
	var tx *TransactionResult
	config := map[string]interface{}{"encoding": "json"}
	if err := c.CallWithCommitment(ctx, &tx, commitment, "getTransaction", signature, config); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetTransactionCount returns the number of transactions committed to
// the ledger.
func (c *Client) GetTransactionCount(ctx context.Context, commitment solwire.Commitment) (uint64, error) {
	var count uint64
	if err := c.CallWithCommitment(ctx, &count, commitment, "getTransactionCount"); err != nil {
		return 0, err
	}
	return count, nil
}

// GetVersion identifies the node software behind the endpoint.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var version Version
	if err := c.CallContext(ctx, &version, "getVersion"); err != nil {
		return nil, err
	}
	return &version, nil
}

// GetVoteAccounts returns the voting validators split by liveness.
func (c *Client) GetVoteAccounts(ctx context.Context, commitment solwire.Commitment) (*VoteAccounts, error) {
	var accounts VoteAccounts
	if err := c.CallWithCommitment(ctx, &accounts, commitment, "getVoteAccounts"); err != nil {
		return nil, err
	}
	return &accounts, nil
}

// IsBlockhashValid reports whether the blockhash can still anchor a new
// transaction.
func (c *Client) IsBlockhashValid(ctx context.Context, blockhash solwire.Blockhash, commitment solwire.Commitment) (bool, error) {
	var resp struct {
		Value bool `json:"value"`
	}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "isBlockhashValid", blockhash); err != nil {
		return false, err
	}
	return resp.Value, nil
}

// MinimumLedgerSlot returns the lowest slot the node retains ledger
// data for.
func (c *Client) MinimumLedgerSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.CallContext(ctx, &slot, "minimumLedgerSlot"); err != nil {
		return 0, err
	}
	return slot, nil
}

// RequestAirdrop asks the faucet to credit the account and returns the
// transfer's signature.
func (c *Client) RequestAirdrop(ctx context.Context, account solwire.PublicKey, lamports uint64, commitment solwire.Commitment) (solwire.Signature, error) {
	var sig solwire.Signature
	if err := c.CallWithCommitment(ctx, &sig, commitment, "requestAirdrop", account, lamports); err != nil {
		return solwire.Signature{}, err
	}
	return sig, nil
}

// SendTransaction submits a signed, base64-serialized transaction and
// returns its signature. The request is relayed exactly once: never
// retried and never failed over, whatever the client's read policy is.
func (c *Client) SendTransaction(ctx context.Context, txBase64 string, opts *SendTransactionOpts) (solwire.Signature, error) {
	config := map[string]interface{}{"encoding": "base64"}
	preflight := solwire.Commitment("")
	if opts != nil {
		if opts.SkipPreflight {
			config["skipPreflight"] = true
		}
		if opts.MaxRetries != nil {
			config["maxRetries"] = *opts.MaxRetries
		}
		preflight = opts.PreflightCommitment
	}
	var sig solwire.Signature
	if err := c.CallWithCommitment(ctx, &sig, preflight, "sendTransaction", txBase64, config); err != nil {
		return solwire.Signature{}, err
	}
	return sig, nil
}

// SimulateTransaction executes the base64-serialized transaction
// against the bank at the commitment without committing it.
func (c *Client) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool, commitment solwire.Commitment) (*SimulateResult, error) {
	var resp struct {
		Value SimulateResult `json:"value"`
	}
	config := map[string]interface{}{"encoding": "base64", "sigVerify": sigVerify}
	if err := c.CallWithCommitment(ctx, &resp, commitment, "simulateTransaction", txBase64, config); err != nil {
		return nil, err
	}
	return &resp.Value, nil
}
