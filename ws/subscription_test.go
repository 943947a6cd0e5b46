package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/jsonrpc"
	"github.com/status-im/solwire-go/params"
)

func TestOverflowDropOldestKeepsNewest(t *testing.T) {
	log := &subLog{}
	node := startWSNode(t, answerSubscriptions(log))
	conn := newTestConn(t, node, func(config *params.Config) {
		config.SubscriptionQueueSize = 2
	})
	peer := node.waitPeer(t)

	sub, err := conn.SlotSubscribe(context.Background())
	require.NoError(t, err)

	for slot := 1; slot <= 4; slot++ {
		peer.notify("slotNotification", 1, fmt.Sprintf(`{"slot":%d}`, slot))
	}

	require.Eventually(t, func() bool {
		return sub.Dropped() == 2
	}, 5*time.Second, 10*time.Millisecond)

	var first, second SlotNotification
	require.NoError(t, json.Unmarshal(waitNotification(t, sub), &first))
	require.NoError(t, json.Unmarshal(waitNotification(t, sub), &second))
	require.Equal(t, uint64(3), first.Slot, "the two oldest notifications should have been evicted")
	require.Equal(t, uint64(4), second.Slot)
}

func TestOverflowBlockStallsReadLoopAndDropsNothing(t *testing.T) {
	log := &subLog{}
	node := startWSNode(t, answerSubscriptions(log))
	conn := newTestConn(t, node, func(config *params.Config) {
		config.SubscriptionQueueSize = 1
		config.SubscriptionOverflowPolicy = params.OverflowBlock
	})
	peer := node.waitPeer(t)

	sub, err := conn.SlotSubscribe(context.Background())
	require.NoError(t, err)

	peer.notify("slotNotification", 1, `{"slot":1}`)
	peer.notify("slotNotification", 1, `{"slot":2}`)

	// The second notification blocks the read loop, so a call cannot
	// see its response until the queue drains.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = conn.RootSubscribe(ctx)
	require.ErrorIs(t, err, solwire.ErrTimeout)

	var first, second SlotNotification
	require.NoError(t, json.Unmarshal(waitNotification(t, sub), &first))
	require.NoError(t, json.Unmarshal(waitNotification(t, sub), &second))
	require.Equal(t, uint64(1), first.Slot)
	require.Equal(t, uint64(2), second.Slot)
	require.Zero(t, sub.Dropped())

	// With the loop unblocked, calls work again.
	sub2, err := conn.RootSubscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateActive, sub2.State())
}

func TestUnsubscribeReleasesMappingAndClosesQueue(t *testing.T) {
	log := &subLog{}
	node := startWSNode(t, answerSubscriptions(log))
	conn := newTestConn(t, node, nil)
	peer := node.waitPeer(t)

	sub, err := conn.SlotSubscribe(context.Background())
	require.NoError(t, err)
	srvID := sub.ServerID()

	require.NoError(t, sub.Unsubscribe(context.Background()))
	require.Equal(t, StateClosed, sub.State())
	require.NoError(t, sub.Err())

	_, unsubscribes := log.counts()
	require.Equal(t, 1, unsubscribes)
	log.mu.Lock()
	unsub := log.unsubscribes[0]
	log.mu.Unlock()
	require.Equal(t, "slotUnsubscribe", unsub.Method)
	require.JSONEq(t, `[1]`, string(unsub.Params))

	pending, subs := conn.countPendingAndSubs()
	require.Zero(t, pending)
	require.Zero(t, subs)

	// A late notification for the released id is dropped without
	// touching the closed channel.
	peer.notify("slotNotification", srvID, `{"slot":9}`)
	_, ok := <-sub.Notifications()
	require.False(t, ok, "notification channel should be closed")

	// Unsubscribing again is a no-op.
	require.NoError(t, sub.Unsubscribe(context.Background()))
	_, unsubscribes = log.counts()
	require.Equal(t, 1, unsubscribes)
}

func TestUnsubscribeTimeoutStillClosesHandle(t *testing.T) {
	log := &subLog{}
	answer := answerSubscriptions(log)
	node := startWSNode(t, func(peer *wsPeer, msg *jsonrpc.Message) {
		if strings.HasSuffix(msg.Method, "Unsubscribe") {
			return // never acknowledge
		}
		answer(peer, msg)
	})
	conn := newTestConn(t, node, nil)

	sub, err := conn.SlotSubscribe(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = sub.Unsubscribe(ctx)
	require.ErrorIs(t, err, solwire.ErrTimeout)

	require.Equal(t, StateClosed, sub.State())
	_, ok := <-sub.Notifications()
	require.False(t, ok)

	pending, subs := conn.countPendingAndSubs()
	require.Zero(t, pending)
	require.Zero(t, subs)
}

func TestUnsubscribeRacingNotificationsDoesNotPanic(t *testing.T) {
	log := &subLog{}
	node := startWSNode(t, answerSubscriptions(log))
	conn := newTestConn(t, node, nil)
	peer := node.waitPeer(t)

	sub, err := conn.SlotSubscribe(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for slot := 0; slot < 200; slot++ {
			peer.notify("slotNotification", 1, `{"slot":1}`)
		}
	}()

	// Drain a few to interleave delivery with the teardown.
	for i := 0; i < 3; i++ {
		select {
		case <-sub.Notifications():
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a notification")
		}
	}
	require.NoError(t, sub.Unsubscribe(context.Background()))
	wg.Wait()

	require.Equal(t, StateClosed, sub.State())
	for range sub.Notifications() {
		// Drain whatever was queued before the close.
	}
}

func TestResubscribeRejectedClosesSubscription(t *testing.T) {
	var (
		mu         sync.Mutex
		subscribes int
	)
	node := startWSNode(t, func(peer *wsPeer, msg *jsonrpc.Message) {
		if !strings.HasSuffix(msg.Method, "Subscribe") {
			return
		}
		mu.Lock()
		subscribes++
		n := subscribes
		mu.Unlock()
		if n == 1 {
			peer.send(`{"jsonrpc":"2.0","id":%s,"result":1}`, msg.ID)
			return
		}
		peer.send(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"subscription limit reached"}}`, msg.ID)
	})
	conn := newTestConn(t, node, nil)
	peer1 := node.waitPeer(t)

	events := make(chan Event, 16)
	defer conn.SubscribeLifecycle(events).Unsubscribe()

	sub, err := conn.SlotSubscribe(context.Background())
	require.NoError(t, err)

	peer1.close()

	failed := waitEvent(t, events, EventResubscribeFailed)
	require.Equal(t, sub.ID(), failed.Subscription)
	var rpcErr *solwire.RPCError
	require.ErrorAs(t, failed.Err, &rpcErr)

	require.Equal(t, StateClosed, sub.State())
	require.ErrorAs(t, sub.Err(), &rpcErr)
	_, ok := <-sub.Notifications()
	require.False(t, ok, "notification channel should be closed")

	pending, subs := conn.countPendingAndSubs()
	require.Zero(t, pending)
	require.Zero(t, subs)
}

func TestUnsubscribeAllAggregatesFailures(t *testing.T) {
	log := &subLog{}
	answer := answerSubscriptions(log)
	node := startWSNode(t, func(peer *wsPeer, msg *jsonrpc.Message) {
		if msg.Method == "slotUnsubscribe" {
			peer.send(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32602,"message":"invalid subscription id"}}`, msg.ID)
			return
		}
		answer(peer, msg)
	})
	conn := newTestConn(t, node, nil)

	slotSub, err := conn.SlotSubscribe(context.Background())
	require.NoError(t, err)
	rootSub, err := conn.RootSubscribe(context.Background())
	require.NoError(t, err)

	err = conn.UnsubscribeAll(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "slot")

	// Both handles are closed regardless of the server's answers.
	require.Equal(t, StateClosed, slotSub.State())
	require.Equal(t, StateClosed, rootSub.State())
	_, subs := conn.countPendingAndSubs()
	require.Zero(t, subs)
}

func TestSetActiveRefusesFinishedStates(t *testing.T) {
	conn := &Conn{queueSize: 1}

	sub := newSubscription(conn, "slot", nil)
	require.True(t, sub.setActive(7))
	require.Equal(t, StateActive, sub.State())
	require.Equal(t, uint64(7), sub.ServerID())

	sub.markReconnecting()
	require.True(t, sub.setActive(8), "a parked handle is replayable")
	require.Equal(t, uint64(8), sub.ServerID())

	closed := newSubscription(conn, "slot", nil)
	closed.close(nil)
	require.False(t, closed.setActive(9))
	require.Equal(t, StateClosed, closed.State())
	require.Zero(t, closed.ServerID())

	unsubscribing := newSubscription(conn, "slot", nil)
	unsubscribing.mu.Lock()
	unsubscribing.state = StateUnsubscribing
	unsubscribing.mu.Unlock()
	require.False(t, unsubscribing.setActive(10))
	require.Equal(t, StateUnsubscribing, unsubscribing.State())
}
