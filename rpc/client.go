// Package rpc implements the JSON-RPC transport core over HTTP:
// request id allocation, commitment folding per the method table,
// per-call deadlines, typed method wrappers, batch and async calls,
// bounded retries for read-only methods and multi-endpoint failover
// behind per-endpoint circuit breakers.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/circuitbreaker"
	"github.com/status-im/solwire-go/jsonrpc"
	"github.com/status-im/solwire-go/metrics"
	"github.com/status-im/solwire-go/params"
)

const (
	// DefaultCallTimeout is a default timeout for an RPC call
	DefaultCallTimeout = time.Minute

	// healthOK is the getHealth result of a node inside the cluster's
	// slot tolerance.
	healthOK = "ok"

	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// List of RPC client errors.
var (
	ErrNoEndpoints          = errors.New("no RPC endpoints configured")
	ErrMissingBatchResponse = errors.New("no response received for batch item")
)

// Client is a JSON-RPC client over one or more HTTP endpoints.
//
// Client is safe for concurrent use. Every request gets a fresh id from
// an atomic counter, never reused for the lifetime of the client. Read
// calls try the endpoints in configured order, each behind its own
// circuit, and may retry on transport failures; mutating calls get a
// single attempt against the primary endpoint.
type Client struct {
	endpoints  []string
	httpClient *http.Client

	idCounter atomic.Uint64

	defaultCommitment solwire.Commitment
	callTimeout       time.Duration
	maxRetries        int

	limiter     *rate.Limiter
	cb          *circuitbreaker.CircuitBreaker
	blockhashes *blockhashCache

	// ConnectionNotifier, when set, is called once per flip of the
	// client's connectivity verdict.
	ConnectionNotifier func(connected bool)

	isConnected             bool
	consecutiveFailureCount int
	isConnectedLock         sync.RWMutex
	lastCheckedAt           int64

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewClient creates a client from the given configuration. The logger
// and metrics recorder may be nil.
func NewClient(config *params.Config, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		endpoints:         config.Endpoints,
		httpClient:        &http.Client{},
		defaultCommitment: config.Commitment,
		callTimeout:       config.RequestTimeout(),
		maxRetries:        config.MaxRetries,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			Timeout:                config.CircuitBreaker.Timeout,
			MaxConcurrentRequests:  config.CircuitBreaker.MaxConcurrentRequests,
			RequestVolumeThreshold: config.CircuitBreaker.RequestVolumeThreshold,
			SleepWindow:            config.CircuitBreaker.SleepWindow,
			ErrorPercentThreshold:  config.CircuitBreaker.ErrorPercentThreshold,
		}),
		isConnected:   true,
		lastCheckedAt: time.Now().Unix(),
		metrics:       m,
		logger:        logger.Named("rpc"),
	}
	if c.callTimeout <= 0 {
		c.callTimeout = DefaultCallTimeout
	}
	if config.RPS > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RPS), burst)
	}
	if ttl := config.BlockhashTTL(); ttl > 0 {
		c.blockhashes = newBlockhashCache(ttl)
	}
	return c, nil
}

// Close releases client-held resources. In-flight calls keep running on
// their own contexts.
func (c *Client) Close() {
	if c.blockhashes != nil {
		c.blockhashes.stop()
	}
	c.httpClient.CloseIdleConnections()
}

// Call performs a JSON-RPC call with the given arguments and unmarshals
// into result if no error occurred.
//
// The result must be a pointer so that package json can unmarshal into
// it. You can also pass nil, in which case the result is ignored.
func (c *Client) Call(result interface{}, method string, args ...interface{}) error {
	return c.CallContext(context.Background(), result, method, args...)
}

// CallContext performs a JSON-RPC call with the given arguments. If the
// context is canceled before the call has successfully returned,
// CallContext returns immediately.
//
// No commitment is folded into args; use CallWithCommitment or the
// typed wrappers for that.
func (c *Client) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	msg, err := c.dispatch(ctx, method, args)
	if err != nil {
		return err
	}
	return msg.UnmarshalResult(result)
}

// CallWithCommitment performs CallContext after folding the commitment
// into the parameter list the way the method's schema expects. An empty
// commitment falls back to the configured default; methods without a
// commitment slot ignore it. An unknown commitment level fails before
// any I/O.
func (c *Client) CallWithCommitment(ctx context.Context, result interface{}, commitment solwire.Commitment, method string, args ...interface{}) error {
	commitment, err := c.effectiveCommitment(commitment)
	if err != nil {
		return err
	}
	return c.CallContext(ctx, result, method, foldCommitment(method, commitment, args)...)
}

// DefaultCommitment returns the commitment used when a call does not
// specify one.
func (c *Client) DefaultCommitment() solwire.Commitment {
	return c.defaultCommitment
}

// IsConnected reports the connectivity verdict from the most recent
// calls: it flips to false after two consecutive transport failures and
// back to true on the first success.
func (c *Client) IsConnected() bool {
	c.isConnectedLock.RLock()
	defer c.isConnectedLock.RUnlock()
	return c.isConnected
}

// LastCheckedAt returns the unix time of the last dispatch outcome that
// fed the connectivity verdict.
func (c *Client) LastCheckedAt() int64 {
	c.isConnectedLock.RLock()
	defer c.isConnectedLock.RUnlock()
	return c.lastCheckedAt
}

func (c *Client) setIsConnected(value bool) {
	c.isConnectedLock.Lock()
	defer c.isConnectedLock.Unlock()
	c.lastCheckedAt = time.Now().Unix()
	if !value {
		c.consecutiveFailureCount++
		if c.consecutiveFailureCount > 1 && c.isConnected {
			c.isConnected = false
			if c.ConnectionNotifier != nil {
				c.ConnectionNotifier(false)
			}
		}
		return
	}
	c.consecutiveFailureCount = 0
	if !c.isConnected {
		c.isConnected = true
		if c.ConnectionNotifier != nil {
			c.ConnectionNotifier(true)
		}
	}
}

func (c *Client) nextID() uint64 {
	return c.idCounter.Add(1)
}

func (c *Client) effectiveCommitment(commitment solwire.Commitment) (solwire.Commitment, error) {
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

// callContext applies the configured default deadline when the caller
// did not set one.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// dispatch sends one request and returns the decoded response envelope.
// The returned envelope may still carry the server's error object;
// dispatch errors cover everything below that.
func (c *Client) dispatch(ctx context.Context, method string, args []interface{}) (*jsonrpc.Message, error) {
	if len(c.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	id := c.nextID()
	req, err := jsonrpc.NewRequest(id, method, args)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s request", method)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	start := time.Now()
	msg, endpoint, err := c.sendWithRetry(ctx, method, id, body)
	outcomeErr := err
	if err == nil && msg.Error != nil {
		outcomeErr = msg.Error
	}
	c.metrics.RecordRequest(method, endpoint, metrics.RequestOutcome(outcomeErr), time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("call failed", zap.String("method", method), zap.Error(err))
		return nil, err
	}
	return msg, nil
}

// sendWithRetry re-issues the dispatch after transport-level failures,
// with exponential backoff, but only for methods in the read-only set
// and only while the caller's context is alive. Server-reported errors
// never retry: the server answered.
func (c *Client) sendWithRetry(ctx context.Context, method string, id uint64, body []byte) (msg *jsonrpc.Message, endpoint string, err error) {
	attempt := func() error {
		msg, endpoint, err = c.sendOnce(ctx, method, id, body)
		if err == nil {
			return nil
		}
		if c.maxRetries <= 0 || !isRetryable(method) || !retryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.metrics.RecordRetry(method)
		c.logger.Debug("retrying call",
			zap.String("method", method),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	err = backoff.RetryNotify(
		attempt,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx),
		notify,
	)
	// The deadline can also expire while waiting out a backoff interval,
	// in which case the raw context error escapes the retry loop.
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, solwire.ErrTimeout) {
		err = errors.WithMessage(solwire.ErrTimeout, err.Error())
	}
	return msg, endpoint, err
}

// retryableError reports whether the failure happened below the RPC
// layer, where a retry can help.
func retryableError(err error) bool {
	var transportErr *solwire.TransportError
	return errors.As(err, &transportErr) || errors.Is(err, solwire.ErrTimeout)
}

// sendOnce runs one failover sweep: endpoints are tried in order, each
// behind its own circuit, until one of them yields a decoded response.
// Methods outside the read-only set are pinned to the primary endpoint.
func (c *Client) sendOnce(ctx context.Context, method string, id uint64, body []byte) (*jsonrpc.Message, string, error) {
	endpoints := c.endpoints
	if !isRetryable(method) {
		endpoints = endpoints[:1]
	}

	cmd := circuitbreakerCommand(ctx, endpoints, func(endpoint string) ([]any, error) {
		msg, err := c.post(ctx, endpoint, id, body)
		if err != nil {
			return nil, err
		}
		return []any{msg, endpoint}, nil
	})

	result := c.cb.Execute(cmd)
	if result.Error() != nil {
		return nil, "", result.Error()
	}
	res := result.Result()
	return res[0].(*jsonrpc.Message), res[1].(string), nil
}

// circuitbreakerCommand builds one failover command holding a functor
// per endpoint, in configured order.
func circuitbreakerCommand(ctx context.Context, endpoints []string, call func(endpoint string) ([]any, error)) *circuitbreaker.Command {
	cmd := circuitbreaker.NewCommand(ctx, nil)
	for _, endpoint := range endpoints {
		endpoint := endpoint
		cmd.Add(circuitbreaker.NewFunctor(func() ([]any, error) {
			return call(endpoint)
		}, circuitName(endpoint)))
	}
	return cmd
}

// post runs the HTTP exchange against one endpoint and decodes the body
// into a single validated envelope correlated to the request id.
func (c *Client) post(ctx context.Context, endpoint string, id uint64, body []byte) (*jsonrpc.Message, error) {
	raw, err := c.postBody(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	msgs, batch, err := jsonrpc.ParseMessage(raw)
	if err != nil {
		return nil, err
	}
	if batch || len(msgs) != 1 {
		return nil, solwire.NewProtocolError("expected a single response, got %d", len(msgs))
	}
	msg := msgs[0]
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	gotID, err := msg.RequestID()
	if err != nil {
		return nil, err
	}
	if gotID != id {
		return nil, solwire.NewProtocolError("response id %d does not match request id %d", gotID, id)
	}
	return msg, nil
}

// postBody is the raw HTTP leg shared by single, batch and passthrough
// calls. It owns the rate limiter, the connectivity verdict and the
// mapping of transport failures onto the error taxonomy.
func (c *Client) postBody(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, mapContextError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, solwire.NewTransportError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setIsConnected(false)
		return nil, mapContextError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.setIsConnected(false)
		return nil, solwire.NewTransportError("post", errors.Errorf("unexpected HTTP status %s", resp.Status))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.setIsConnected(false)
		return nil, solwire.NewTransportError("read response", err)
	}
	c.setIsConnected(true)
	return raw, nil
}

// mapContextError folds context expiry into the error taxonomy: a
// deadline is a timeout, an explicit cancellation passes through, and
// anything else is a transport failure.
func mapContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.WithMessage(solwire.ErrTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return err
	}
	return solwire.NewTransportError("post", err)
}

func circuitName(endpoint string) string {
	return fmt.Sprintf("rpcClient_%s", endpoint)
}
