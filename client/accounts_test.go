package client

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/jsonrpc"
)

// indexedKeys builds n distinct addresses whose first four bytes encode
// their index, so a test server can answer for any of them.
func indexedKeys(n int) []solwire.PublicKey {
	keys := make([]solwire.PublicKey, n)
	for i := range keys {
		binary.BigEndian.PutUint32(keys[i][:4], uint32(i))
	}
	return keys
}

// answerMultipleAccounts responds to getMultipleAccounts with one
// account per requested address, lamports set to the address index
// plus one. Chunk sizes are recorded in sizes.
func answerMultipleAccounts(t *testing.T, sizes *[]int, mu *sync.Mutex, failNth int) func(w http.ResponseWriter, msg *jsonrpc.Message) {
	return func(w http.ResponseWriter, msg *jsonrpc.Message) {
		require.Equal(t, "getMultipleAccounts", msg.Method)
		var args []json.RawMessage
		require.NoError(t, json.Unmarshal(msg.Params, &args))
		var addrs []solwire.PublicKey
		require.NoError(t, json.Unmarshal(args[0], &addrs))

		mu.Lock()
		*sizes = append(*sizes, len(addrs))
		nth := len(*sizes)
		mu.Unlock()

		if failNth > 0 && nth == failNth {
			respondError(w, msg.ID, -32005, "node is behind")
			return
		}

		entries := make([]string, len(addrs))
		for i, addr := range addrs {
			idx := binary.BigEndian.Uint32(addr[:4])
			entries[i] = accountJSON(idx + 1)
		}
		respondResult(w, msg.ID, `{"context":{"slot":1},"value":[`+strings.Join(entries, ",")+`]}`)
	}
}

func accountJSON(lamports uint32) string {
	return fmt.Sprintf(`{"lamports":%d,"owner":"11111111111111111111111111111111","data":["","base64"],"executable":false,"rentEpoch":0,"space":0}`, lamports)
}

func TestGetMultipleAccountsAllSmallInputSingleRequest(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	srv, log := startRPCServer(t, answerMultipleAccounts(t, &sizes, &mu, 0))
	client := newTestClient(t, srv.URL, nil, nil)

	out, err := client.GetMultipleAccountsAll(context.Background(), indexedKeys(5), "")
	require.NoError(t, err)
	require.Len(t, out, 5)
	require.Equal(t, uint64(1), out[0].Lamports)
	require.Equal(t, uint64(5), out[4].Lamports)
	require.Equal(t, 1, log.count())
}

func TestGetMultipleAccountsAllChunksAndReassembles(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	srv, log := startRPCServer(t, answerMultipleAccounts(t, &sizes, &mu, 0))
	client := newTestClient(t, srv.URL, nil, nil)

	out, err := client.GetMultipleAccountsAll(context.Background(), indexedKeys(250), "")
	require.NoError(t, err)
	require.Len(t, out, 250)

	// Chunk boundaries reassemble in input order whatever order the
	// responses arrived in.
	require.Equal(t, uint64(1), out[0].Lamports)
	require.Equal(t, uint64(100), out[99].Lamports)
	require.Equal(t, uint64(101), out[100].Lamports)
	require.Equal(t, uint64(250), out[249].Lamports)

	require.Equal(t, 3, log.count())
	mu.Lock()
	got := append([]int(nil), sizes...)
	mu.Unlock()
	sort.Ints(got)
	require.Equal(t, []int{50, 100, 100}, got)
}

func TestGetMultipleAccountsAllNoAccounts(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	srv, log := startRPCServer(t, answerMultipleAccounts(t, &sizes, &mu, 0))
	client := newTestClient(t, srv.URL, nil, nil)

	out, err := client.GetMultipleAccountsAll(context.Background(), nil, "")
	require.NoError(t, err)
	require.Nil(t, out)
	require.Equal(t, 0, log.count())
}

func TestGetMultipleAccountsAllPropagatesChunkError(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	srv, _ := startRPCServer(t, answerMultipleAccounts(t, &sizes, &mu, 2))
	client := newTestClient(t, srv.URL, nil, nil)

	_, err := client.GetMultipleAccountsAll(context.Background(), indexedKeys(250), "")
	var rpcErr *solwire.RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -32005, rpcErr.Code)
}
