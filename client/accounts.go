package client

import (
	"context"
	"sync"

	"github.com/meirf/gopart"
	"github.com/zenthangplus/goccm"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/common"
	"github.com/status-im/solwire-go/rpc"
)

const (
	// maxAccountsPerFetch is the server-side batch limit of
	// getMultipleAccounts.
	maxAccountsPerFetch = 100

	// accountFetchConcurrency bounds how many chunks
	// GetMultipleAccountsAll keeps in flight.
	accountFetchConcurrency = 4
)

// GetMultipleAccountsAll behaves like GetMultipleAccounts without the
// server's 100-address batch limit: the input is fetched in chunks, a
// few in flight at a time, and reassembled in input order. The first
// chunk error cancels the remaining fetches and is returned.
func (c *Client) GetMultipleAccountsAll(ctx context.Context, accounts []solwire.PublicKey, commitment solwire.Commitment) ([]*rpc.Account, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	if len(accounts) <= maxAccountsPerFetch {
		return c.GetMultipleAccounts(ctx, accounts, commitment)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]*rpc.Account, len(accounts))
	var (
		mu       sync.Mutex
		firstErr error
	)

	ccm := goccm.New(accountFetchConcurrency)
	for idxRange := range gopart.Partition(len(accounts), maxAccountsPerFetch) {
		ccm.Wait()
		go func(start int, chunk []solwire.PublicKey) {
			defer ccm.Done()
			defer common.LogOnPanic(c.logger)
			res, err := c.GetMultipleAccounts(ctx, chunk, commitment)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
				return
			}
			copy(out[start:start+len(chunk)], res)
		}(idxRange.Low, accounts[idxRange.Low:idxRange.High])
	}
	ccm.WaitAllDone()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
