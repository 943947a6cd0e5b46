package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/jsonrpc"
	"github.com/status-im/solwire-go/logutils"
	"github.com/status-im/solwire-go/params"
	"github.com/status-im/solwire-go/pda"
	"github.com/status-im/solwire-go/ws"
)

var (
	testAccount = solwire.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testProgram = solwire.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

// requestLog records every request frame the test RPC server decoded.
type requestLog struct {
	mu   sync.Mutex
	msgs []*jsonrpc.Message
}

func (l *requestLog) add(msg *jsonrpc.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *requestLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func (l *requestLog) at(i int) *jsonrpc.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.msgs[i]
}

// startRPCServer runs an httptest server that decodes each single
// request and hands it to answer together with the response writer.
func startRPCServer(t *testing.T, answer func(w http.ResponseWriter, msg *jsonrpc.Message)) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		msgs, _, err := jsonrpc.ParseMessage(body)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		log.add(msgs[0])
		answer(w, msgs[0])
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func respondResult(w http.ResponseWriter, id json.RawMessage, result string) {
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
}

func respondError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, id, code, message)
}

// wsPeer is one accepted server-side websocket connection.
type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *wsPeer) send(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(format, args...)))
}

func (p *wsPeer) notify(method string, srvID uint64, result string) {
	p.send(`{"jsonrpc":"2.0","method":%q,"params":{"result":%s,"subscription":%d}}`, method, result, srvID)
}

func (p *wsPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.Close()
}

// wsNode is a scripted websocket peer that acknowledges every
// *Subscribe with an incrementing server id and every *Unsubscribe
// with true.
type wsNode struct {
	srv      *httptest.Server
	accepted chan *wsPeer

	mu           sync.Mutex
	peers        []*wsPeer
	nextSubID    uint64
	unsubscribes int
}

func startWSNode(t *testing.T) *wsNode {
	t.Helper()
	node := &wsNode{accepted: make(chan *wsPeer, 8)}
	upgrader := websocket.Upgrader{}
	node.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		peer := &wsPeer{conn: conn}
		node.mu.Lock()
		node.peers = append(node.peers, peer)
		node.mu.Unlock()
		node.accepted <- peer
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs, _, err := jsonrpc.ParseMessage(frame)
			if err != nil {
				continue
			}
			for _, msg := range msgs {
				node.answer(peer, msg)
			}
		}
	}))
	t.Cleanup(node.srv.Close)
	t.Cleanup(node.closeAll)
	return node
}

func (n *wsNode) answer(peer *wsPeer, msg *jsonrpc.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case strings.HasSuffix(msg.Method, "Unsubscribe"):
		n.unsubscribes++
		peer.send(`{"jsonrpc":"2.0","id":%s,"result":true}`, msg.ID)
	case strings.HasSuffix(msg.Method, "Subscribe"):
		n.nextSubID++
		peer.send(`{"jsonrpc":"2.0","id":%s,"result":%d}`, msg.ID, n.nextSubID)
	}
}

func (n *wsNode) endpoint() string {
	return "ws" + strings.TrimPrefix(n.srv.URL, "http")
}

// closeAll drops every accepted connection so the handler goroutines
// unblock before the httptest server shuts down.
func (n *wsNode) closeAll() {
	n.mu.Lock()
	peers := n.peers
	n.peers = nil
	n.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

func (n *wsNode) waitPeer(t *testing.T) *wsPeer {
	t.Helper()
	select {
	case p := <-n.accepted:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a websocket connection")
	}
	return nil
}

func (n *wsNode) unsubscribeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unsubscribes
}

// newTestClient builds a facade against the test servers. node may be
// nil for tests that never touch the websocket.
func newTestClient(t *testing.T, rpcURL string, node *wsNode, mutate func(config *params.Config)) *Client {
	t.Helper()
	config, err := params.NewConfig(rpcURL)
	require.NoError(t, err)
	if node != nil {
		config.WSEndpoint = node.endpoint()
	}
	if mutate != nil {
		mutate(config)
	}
	client, err := New(config, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func waitTransactionEvent(t *testing.T, ch <-chan TransactionEvent, want TransactionEventType) TransactionEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q transaction event", want)
		}
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
}

func TestNewRejectsUnknownLogLevel(t *testing.T) {
	config, err := params.NewConfig("http://127.0.0.1:8899")
	require.NoError(t, err)
	config.LogEnabled = true
	config.LogLevel = "banana"

	_, err = New(config, nil, nil)
	require.ErrorIs(t, err, logutils.ErrUnknownLogLevel)
}

func TestTypedWrappersRideTheEmbeddedClient(t *testing.T) {
	srv, log := startRPCServer(t, func(w http.ResponseWriter, msg *jsonrpc.Message) {
		respondResult(w, msg.ID, "4242")
	})
	client := newTestClient(t, srv.URL, nil, nil)

	slot, err := client.GetSlot(context.Background(), solwire.CommitmentProcessed)
	require.NoError(t, err)
	require.Equal(t, uint64(4242), slot)

	var raw uint64
	require.NoError(t, client.CallContext(context.Background(), &raw, "getSlot"))
	require.Equal(t, uint64(4242), raw)

	require.Equal(t, 2, log.count())
	require.Equal(t, "getSlot", log.at(0).Method)
}

func TestDerivationHelpersMatchTheEngine(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:8899", nil, nil)
	seeds := [][]byte{[]byte("metadata"), testProgram.Bytes()}

	wantAddr, wantBump, err := pda.FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)
	gotAddr, gotBump, err := client.FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)
	require.Equal(t, wantAddr, gotAddr)
	require.Equal(t, wantBump, gotBump)

	// Replaying the found bump through the exact derivation lands on
	// the same address.
	exact, err := client.CreateProgramAddress([][]byte{[]byte("metadata"), testProgram.Bytes(), {wantBump}}, testProgram)
	require.NoError(t, err)
	require.Equal(t, wantAddr, exact)

	wantSeeded, err := pda.CreateWithSeed(testAccount, "vault", testProgram)
	require.NoError(t, err)
	gotSeeded, err := client.CreateWithSeed(testAccount, "vault", testProgram)
	require.NoError(t, err)
	require.Equal(t, wantSeeded, gotSeeded)

	require.Equal(t, pda.IsOnCurve(testAccount), client.IsOnCurve(testAccount))
	require.False(t, client.IsOnCurve(gotAddr))
}

func TestSubscribeDialsWebsocketLazily(t *testing.T) {
	node := startWSNode(t)
	client := newTestClient(t, "http://127.0.0.1:8899", node, nil)
	require.False(t, client.WS().Connected())

	sub, err := client.SlotSubscribe(context.Background())
	require.NoError(t, err)
	require.True(t, client.WS().Connected())
	require.Equal(t, ws.StateActive, sub.State())

	peer := node.waitPeer(t)
	peer.notify("slotNotification", sub.ServerID(), `{"parent":7,"root":6,"slot":8}`)

	select {
	case raw := <-sub.Notifications():
		var slot ws.SlotNotification
		require.NoError(t, json.Unmarshal(raw, &slot))
		require.Equal(t, uint64(8), slot.Slot)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a notification")
	}
}

func TestConnectionEventsSurfaceThroughFacade(t *testing.T) {
	node := startWSNode(t)
	client := newTestClient(t, "http://127.0.0.1:8899", node, nil)

	events := make(chan ws.Event, 16)
	defer client.SubscribeConnectionEvents(events).Unsubscribe()

	_, err := client.RootSubscribe(context.Background())
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Equal(t, ws.EventConnected, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the connected event")
	}
}

func TestUnsubscribeAllTearsDownEverySubscription(t *testing.T) {
	node := startWSNode(t)
	client := newTestClient(t, "http://127.0.0.1:8899", node, nil)

	slots, err := client.SlotSubscribe(context.Background())
	require.NoError(t, err)
	roots, err := client.RootSubscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.UnsubscribeAll(context.Background()))
	require.Equal(t, ws.StateClosed, slots.State())
	require.Equal(t, ws.StateClosed, roots.State())
	require.Equal(t, 2, node.unsubscribeCount())
}

func TestCloseIsIdempotentAndStopsSubscribing(t *testing.T) {
	node := startWSNode(t)
	client := newTestClient(t, "http://127.0.0.1:8899", node, nil)

	_, err := client.SlotSubscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.VoteSubscribe(context.Background())
	require.ErrorIs(t, err, ws.ErrClosed)
}
