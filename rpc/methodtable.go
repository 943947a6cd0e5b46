package rpc

import (
	mapset "github.com/deckarep/golang-set"

	solwire "github.com/status-im/solwire-go"
)

// commitmentMode selects whether and how a method folds the commitment
// level into its trailing configuration object.
type commitmentMode int

const (
	// commitmentNone marks methods whose schema has no commitment slot.
	commitmentNone commitmentMode = iota
	// commitmentField appends or merges {"commitment": <level>}.
	commitmentField
	// commitmentPreflightField is the sendTransaction special case, the
	// level rides in "preflightCommitment" instead.
	commitmentPreflightField
)

// methodTable records the commitment slot of every method in the
// catalog. Methods absent from the table never receive a commitment,
// whatever the caller or the configured default says.
var methodTable = map[string]commitmentMode{
	"getAccountInfo":                    commitmentField,
	"getBalance":                        commitmentField,
	"getBlock":                          commitmentField,
	"getBlocks":                         commitmentField,
	"getBlockCommitment":                commitmentNone,
	"getBlockHeight":                    commitmentField,
	"getBlockTime":                      commitmentNone,
	"getClusterNodes":                   commitmentNone,
	"getEpochInfo":                      commitmentField,
	"getEpochSchedule":                  commitmentNone,
	"getFirstAvailableBlock":            commitmentNone,
	"getGenesisHash":                    commitmentNone,
	"getHealth":                         commitmentNone,
	"getIdentity":                       commitmentNone,
	"getInflationGovernor":              commitmentField,
	"getInflationRate":                  commitmentNone,
	"getLargestAccounts":                commitmentField,
	"getLatestBlockhash":                commitmentField,
	"getLeaderSchedule":                 commitmentField,
	"getMinimumBalanceForRentExemption": commitmentField,
	"getMultipleAccounts":               commitmentField,
	"getProgramAccounts":                commitmentField,
	"getSignaturesForAddress":           commitmentField,
	"getSignatureStatuses":              commitmentNone,
	"getSlot":                           commitmentField,
	"getSlotLeader":                     commitmentField,
	"getSupply":                         commitmentField,
	"getTokenAccountBalance":            commitmentField,
	"getTokenAccountsByDelegate":        commitmentField,
	"getTokenAccountsByOwner":           commitmentField,
	"getTokenLargestAccounts":           commitmentField,
	"getTokenSupply":                    commitmentField,
	"getTransaction":                    commitmentField,
	"getTransactionCount":               commitmentField,
	"getVersion":                        commitmentNone,
	"getVoteAccounts":                   commitmentField,
	"isBlockhashValid":                  commitmentField,
	"minimumLedgerSlot":                 commitmentNone,
	"requestAirdrop":                    commitmentField,
	"sendTransaction":                   commitmentPreflightField,
	"simulateTransaction":               commitmentField,
}

// retryableMethods lists the read-only methods safe to re-issue after a
// transport-level failure and to fail over to another endpoint
// mid-call. Mutating methods (sendTransaction, requestAirdrop) and
// anything not in this set stick to a single dispatch attempt against
// the primary endpoint.
var retryableMethods = mapset.NewSet(
	"getAccountInfo",
	"getBalance",
	"getBlock",
	"getBlocks",
	"getBlockCommitment",
	"getBlockHeight",
	"getBlockTime",
	"getClusterNodes",
	"getEpochInfo",
	"getEpochSchedule",
	"getFirstAvailableBlock",
	"getGenesisHash",
	"getHealth",
	"getIdentity",
	"getInflationGovernor",
	"getInflationRate",
	"getLargestAccounts",
	"getLatestBlockhash",
	"getLeaderSchedule",
	"getMinimumBalanceForRentExemption",
	"getMultipleAccounts",
	"getProgramAccounts",
	"getSignaturesForAddress",
	"getSignatureStatuses",
	"getSlot",
	"getSlotLeader",
	"getSupply",
	"getTokenAccountBalance",
	"getTokenAccountsByDelegate",
	"getTokenAccountsByOwner",
	"getTokenLargestAccounts",
	"getTokenSupply",
	"getTransaction",
	"getTransactionCount",
	"getVersion",
	"getVoteAccounts",
	"isBlockhashValid",
	"minimumLedgerSlot",
)

// isRetryable reports whether the method is in the read-only set.
func isRetryable(method string) bool {
	return retryableMethods.Contains(method)
}

// foldCommitment injects the commitment into the parameter list per the
// method's schema. When the trailing parameter is already a
// configuration object the commitment is merged into a copy of it,
// keeping any value the caller pinned explicitly; otherwise a fresh
// configuration object is appended. The input slice is never mutated.
func foldCommitment(method string, commitment solwire.Commitment, args []interface{}) []interface{} {
	if commitment == "" {
		return args
	}
	mode, ok := methodTable[method]
	if !ok || mode == commitmentNone {
		return args
	}

	key := "commitment"
	if mode == commitmentPreflightField {
		key = "preflightCommitment"
	}

	if n := len(args); n > 0 {
		if config, ok := args[n-1].(map[string]interface{}); ok {
			merged := make(map[string]interface{}, len(config)+1)
			for k, v := range config {
				merged[k] = v
			}
			if _, pinned := merged[key]; !pinned {
				merged[key] = commitment
			}
			out := make([]interface{}, n)
			copy(out, args[:n-1])
			out[n-1] = merged
			return out
		}
	}

	out := make([]interface{}, len(args), len(args)+1)
	copy(out, args)
	return append(out, map[string]interface{}{key: commitment})
}
