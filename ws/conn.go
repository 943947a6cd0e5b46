// Package ws multiplexes JSON-RPC subscriptions over one websocket
// connection: a single read loop routes responses to pending calls by
// id and notifications to bounded per-subscription queues, and a
// reconnect loop redials with exponential backoff and replays every
// active subscription with fresh server ids while consumer handles stay
// valid.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/common"
	"github.com/status-im/solwire-go/jsonrpc"
	"github.com/status-im/solwire-go/metrics"
	"github.com/status-im/solwire-go/params"
)

const (
	// DefaultCallTimeout bounds subscribe and unsubscribe calls when the
	// caller's context has no deadline.
	DefaultCallTimeout = time.Minute

	reconnectInitialInterval = 500 * time.Millisecond
	reconnectMaxInterval     = 30 * time.Second

	// resubscribeTimeout bounds each subscription replay after a
	// reconnect.
	resubscribeTimeout = 30 * time.Second
)

// List of websocket connection errors.
var (
	ErrClosed             = errors.New("websocket connection closed")
	ErrNotConnected       = errors.New("websocket not connected")
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// wireConn is the transport surface the connection drives, satisfied by
// *websocket.Conn.
type wireConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// dialFunc opens one websocket to the endpoint. Tests inject their own.
type dialFunc func(ctx context.Context, endpoint string) (wireConn, error)

func gorillaDial(ctx context.Context, endpoint string) (wireConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// callResult is what a pending call's channel receives: the response
// envelope or the transport failure that ended the wait.
type callResult struct {
	msg *jsonrpc.Message
	err error
}

// Conn is a subscription multiplexer over one websocket connection.
//
// Conn is safe for concurrent use. Request/response calls and
// subscription registrations share one mutex so id allocation and
// registration are atomic; a dedicated read loop does the routing and
// nothing else; frame writes are serialized so they never interleave.
type Conn struct {
	endpoint          string
	dial              dialFunc
	callTimeout       time.Duration
	defaultCommitment solwire.Commitment
	queueSize         int
	overflowPolicy    string

	// mu guards the id counter, the pending map, both subscription maps
	// and the wire/closed fields.
	mu          sync.Mutex
	idCounter   uint64
	pending     map[uint64]chan callResult
	subs        map[uuid.UUID]*Subscription
	subsBySrvID map[uint64]*Subscription
	wire        wireConn
	closed      bool

	// writeMu serializes frame writes.
	writeMu sync.Mutex

	feed event.Feed

	quit   chan struct{}
	wg     sync.WaitGroup
	runCtx context.Context
	cancel context.CancelFunc

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewConn creates a multiplexer for the configuration's websocket
// endpoint without dialing it; Connect does that. The logger and
// metrics recorder may be nil.
func NewConn(config *params.Config, logger *zap.Logger, m *metrics.Metrics) (*Conn, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	endpoint, err := config.WebsocketEndpoint()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		endpoint:          endpoint,
		dial:              gorillaDial,
		callTimeout:       config.RequestTimeout(),
		defaultCommitment: config.Commitment,
		queueSize:         config.SubscriptionQueueSize,
		overflowPolicy:    config.SubscriptionOverflowPolicy,
		pending:           make(map[uint64]chan callResult),
		subs:              make(map[uuid.UUID]*Subscription),
		subsBySrvID:       make(map[uint64]*Subscription),
		quit:              make(chan struct{}),
		runCtx:            runCtx,
		cancel:            cancel,
		metrics:           m,
		logger:            logger.Named("ws"),
	}
	if c.callTimeout <= 0 {
		c.callTimeout = DefaultCallTimeout
	}
	return c, nil
}

// Connect dials the endpoint and starts the read loop. Calling it on a
// connection that is already up is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.wire != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	wire, err := c.dial(ctx, c.endpoint)
	if err != nil {
		return solwire.NewTransportError("dial", err)
	}

	c.mu.Lock()
	if c.closed || c.wire != nil {
		closed := c.closed
		c.mu.Unlock()
		_ = wire.Close()
		if closed {
			return ErrClosed
		}
		return nil
	}
	c.wire = wire
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(wire)

	c.logger.Info("websocket connected", zap.String("endpoint", c.endpoint))
	c.feed.Send(Event{Type: EventConnected})
	return nil
}

// Connected reports whether the transport is currently up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wire != nil && !c.closed
}

// Close tears down the connection, fails outstanding calls and closes
// every subscription. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wire := c.wire
	c.wire = nil
	c.mu.Unlock()

	c.cancel()
	close(c.quit)

	var err error
	if wire != nil {
		err = multierr.Append(err, wire.Close())
	}
	c.wg.Wait()

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan callResult)
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = make(map[uuid.UUID]*Subscription)
	c.subsBySrvID = make(map[uint64]*Subscription)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: ErrClosed}
	}
	for _, sub := range subs {
		sub.close(ErrClosed)
	}
	return err
}

// UnsubscribeAll unsubscribes every live subscription, aggregating the
// failures. Handles are closed even when their server call fails.
func (c *Conn) UnsubscribeAll(ctx context.Context) error {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	var result error
	for _, sub := range subs {
		if err := sub.Unsubscribe(ctx); err != nil {
			result = multierr.Append(result, errors.Wrapf(err, "unsubscribe %s %s", sub.kind, sub.clientID))
		}
	}
	return result
}

// run owns the connection lifecycle: it reads until the transport
// fails, then redials and replays subscriptions, until Close.
func (c *Conn) run(wire wireConn) {
	defer c.wg.Done()
	defer common.LogOnPanic(c.logger)

	var resubDone chan struct{}
	for {
		err := c.readLoop(wire)
		if c.isClosed() {
			return
		}

		c.logger.Warn("websocket connection lost", zap.Error(err))
		c.handleDisconnect(err)

		// The previous replay exits fast once the wire is gone; joining
		// it keeps replays from overlapping across reconnects.
		if resubDone != nil {
			<-resubDone
		}

		wire = c.awaitReconnect()
		if wire == nil {
			return
		}

		resubDone = make(chan struct{})
		c.wg.Add(1)
		go c.resubscribeAll(resubDone)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop pulls frames off the wire and routes them until the
// transport fails. Routing only; delivery policy lives in the
// subscriptions.
func (c *Conn) readLoop(wire wireConn) error {
	for {
		_, frame, err := wire.ReadMessage()
		if err != nil {
			return err
		}
		c.route(frame)
	}
}

// route classifies one inbound frame. Frames that decode but match
// neither a pending call nor a known subscription are dropped with a
// debug log; they never kill the connection.
func (c *Conn) route(frame []byte) {
	msgs, _, err := jsonrpc.ParseMessage(frame)
	if err != nil {
		c.logger.Debug("dropping undecodable frame", zap.Error(err))
		return
	}
	for _, msg := range msgs {
		switch {
		case msg.IsNotification():
			c.routeNotification(msg)
		case msg.IsResponse():
			c.routeResponse(msg)
		default:
			c.logger.Debug("dropping frame that is neither response nor notification",
				zap.String("frame", msg.String()))
		}
	}
}

func (c *Conn) routeResponse(msg *jsonrpc.Message) {
	id, err := msg.RequestID()
	if err != nil {
		c.logger.Debug("dropping response with unusable id", zap.Error(err))
		return
	}

	// Delete before hand-off so exactly one waiter resumes per response.
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping response with no pending call", zap.Uint64("id", id))
		return
	}
	ch <- callResult{msg: msg}
}

func (c *Conn) routeNotification(msg *jsonrpc.Message) {
	var payload struct {
		Subscription uint64          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(msg.Params, &payload); err != nil {
		c.logger.Debug("dropping notification with undecodable params",
			zap.String("method", msg.Method), zap.Error(err))
		return
	}

	c.mu.Lock()
	sub, ok := c.subsBySrvID[payload.Subscription]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping notification for unknown subscription",
			zap.String("method", msg.Method),
			zap.Uint64("subscription", payload.Subscription))
		return
	}
	sub.deliver(payload.Result)
}

// handleDisconnect fails every pending call with a transport error,
// parks active subscriptions for replay and publishes the disconnect.
func (c *Conn) handleDisconnect(cause error) {
	failure := solwire.NewTransportError("read", cause)

	c.mu.Lock()
	c.wire = nil
	pending := c.pending
	c.pending = make(map[uint64]chan callResult)
	c.subsBySrvID = make(map[uint64]*Subscription)
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: failure}
	}
	for _, sub := range subs {
		sub.markReconnecting()
	}

	c.feed.Send(Event{Type: EventDisconnected, Err: cause})
}

// awaitReconnect dials with exponential backoff until the transport is
// restored. It returns nil only when the connection is closing.
func (c *Conn) awaitReconnect() wireConn {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectInitialInterval
	policy.MaxInterval = reconnectMaxInterval
	policy.MaxElapsedTime = 0

	var wire wireConn
	dial := func() error {
		c.metrics.RecordReconnect()
		w, err := c.dial(c.runCtx, c.endpoint)
		if err != nil {
			return err
		}
		wire = w
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("websocket redial failed",
			zap.Error(err), zap.Duration("backoff", wait))
	}

	if err := backoff.RetryNotify(dial, backoff.WithContext(policy, c.runCtx), notify); err != nil {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = wire.Close()
		return nil
	}
	c.wire = wire
	c.mu.Unlock()

	c.logger.Info("websocket reconnected", zap.String("endpoint", c.endpoint))
	c.feed.Send(Event{Type: EventConnected})
	return wire
}

// resubscribeAll replays every parked subscription on the fresh
// connection. Server ids change; client ids and queues do not. A replay
// the server rejects closes that subscription; a handle unsubscribed
// mid-replay is skipped; a replay interrupted by another transport loss
// leaves the rest parked for the next round.
func (c *Conn) resubscribeAll(done chan struct{}) {
	defer c.wg.Done()
	defer close(done)
	defer common.LogOnPanic(c.logger)

	c.mu.Lock()
	parked := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.State() == StateReconnecting {
			parked = append(parked, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range parked {
		ctx, cancel := context.WithTimeout(c.runCtx, resubscribeTimeout)
		err := c.establish(ctx, sub)
		cancel()
		if err == nil {
			c.feed.Send(Event{Type: EventResubscribed, Subscription: sub.clientID})
			continue
		}
		if errors.Is(err, ErrSubscriptionClosed) {
			continue
		}
		if isTransportLoss(err) {
			return
		}
		c.logger.Warn("resubscribe rejected",
			zap.String("kind", sub.kind),
			zap.Stringer("subscription", sub.clientID),
			zap.Error(err))
		c.forget(sub.clientID, 0)
		sub.close(err)
		c.feed.Send(Event{Type: EventResubscribeFailed, Subscription: sub.clientID, Err: err})
	}
}

// isTransportLoss reports whether a subscribe failure means the
// connection died under it, as opposed to the server rejecting it.
func isTransportLoss(err error) bool {
	var transportErr *solwire.TransportError
	return errors.As(err, &transportErr) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, solwire.ErrTimeout) ||
		errors.Is(err, context.Canceled)
}

// subscribe registers a new handle, performs the subscribe call and
// installs the server-id mapping. The handle enters the subscription
// map before the call so the maps stay consistent under a concurrent
// disconnect; a handle whose call fails is removed again.
func (c *Conn) subscribe(ctx context.Context, kind string, args []interface{}) (*Subscription, error) {
	sub := newSubscription(c, kind, args)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.subs[sub.clientID] = sub
	c.mu.Unlock()

	if err := c.establish(ctx, sub); err != nil {
		c.forget(sub.clientID, 0)
		sub.close(err)
		return nil, err
	}

	c.logger.Debug("subscribed",
		zap.String("kind", kind),
		zap.Stringer("subscription", sub.clientID),
		zap.Uint64("server_id", sub.ServerID()))
	return sub, nil
}

// establish performs the subscribe call for sub and installs the
// server-id mapping. An acknowledgment that raced a connection swap is
// treated as a transport loss: the server id belongs to a dead session.
// An acknowledgment for a handle that was unsubscribed while the call
// was in flight returns ErrSubscriptionClosed and releases the fresh
// server-side subscription instead of reviving the handle.
func (c *Conn) establish(ctx context.Context, sub *Subscription) error {
	var srvID uint64
	wire, err := c.callWire(ctx, &srvID, sub.subscribeMethod(), sub.params)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.wire != wire {
		c.mu.Unlock()
		return solwire.NewTransportError("subscribe", ErrNotConnected)
	}
	// Activation, the closed-handle check and the map install share the
	// wire check's critical section, so a concurrent disconnect sees
	// either no routing entry or an active handle it can park.
	if !sub.setActive(srvID) {
		c.mu.Unlock()
		go c.dropServerSubscription(wire, sub.unsubscribeMethod(), srvID)
		return ErrSubscriptionClosed
	}
	c.subsBySrvID[srvID] = sub
	c.mu.Unlock()
	return nil
}

// dropServerSubscription releases a server-side subscription whose
// handle was closed while the subscribe acknowledgment was in flight.
// The server id is only meaningful on the session that assigned it.
func (c *Conn) dropServerSubscription(wire wireConn, method string, srvID uint64) {
	defer common.LogOnPanic(c.logger)

	c.mu.Lock()
	stale := c.wire != wire
	c.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(c.runCtx, c.callTimeout)
	defer cancel()
	var acked bool
	if err := c.call(ctx, &acked, method, []interface{}{srvID}); err != nil {
		c.logger.Debug("releasing orphaned server subscription failed",
			zap.String("method", method),
			zap.Uint64("server_id", srvID),
			zap.Error(err))
	}
}

// forget removes a subscription from the routing tables. A zero server
// id skips the server-id table.
func (c *Conn) forget(clientID uuid.UUID, srvID uint64) {
	c.mu.Lock()
	delete(c.subs, clientID)
	if srvID != 0 {
		if cur, ok := c.subsBySrvID[srvID]; ok && cur.clientID == clientID {
			delete(c.subsBySrvID, srvID)
		}
	}
	c.mu.Unlock()
}

// call performs one request/response exchange over the websocket. It
// fails fast while the transport is down.
func (c *Conn) call(ctx context.Context, result interface{}, method string, args []interface{}) error {
	_, err := c.callWire(ctx, result, method, args)
	return err
}

// callWire is call plus the wire the request went over, so subscribe
// paths can detect a connection swap between acknowledgment and
// registration.
func (c *Conn) callWire(ctx context.Context, result interface{}, method string, args []interface{}) (wireConn, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	wire := c.wire
	if wire == nil {
		c.mu.Unlock()
		return nil, solwire.NewTransportError("call", ErrNotConnected)
	}
	c.idCounter++
	id := c.idCounter
	ch := make(chan callResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req, err := jsonrpc.NewRequest(id, method, args)
	if err != nil {
		c.removePending(id)
		return wire, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)
		return wire, errors.Wrapf(err, "marshal %s request", method)
	}
	if err := c.writeFrame(wire, body); err != nil {
		c.removePending(id)
		return wire, solwire.NewTransportError("write", err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return wire, res.err
		}
		return wire, res.msg.UnmarshalResult(result)
	case <-ctx.Done():
		c.removePending(id)
		return wire, mapWSContextError(ctx.Err())
	case <-c.quit:
		c.removePending(id)
		return wire, ErrClosed
	}
}

// removePending drops a pending call registration. Safe to call when
// the response already claimed the entry.
func (c *Conn) removePending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) writeFrame(wire wireConn, body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteMessage(websocket.TextMessage, body)
}

// callContext applies the configured default deadline when the caller
// did not set one.
func (c *Conn) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Conn) effectiveCommitment(commitment solwire.Commitment) (solwire.Commitment, error) {
	if commitment == "" {
		commitment = c.defaultCommitment
	}
	if commitment == "" {
		return "", nil
	}
	if err := commitment.Validate(); err != nil {
		return "", err
	}
	return commitment, nil
}

// mapWSContextError folds context expiry into the error taxonomy the
// same way the HTTP transport does.
func mapWSContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.WithMessage(solwire.ErrTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return err
	}
	return solwire.NewTransportError("call", err)
}
