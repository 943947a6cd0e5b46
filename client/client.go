// Package client is the library's top-level entry point. It composes
// the HTTP JSON-RPC client, the websocket subscription multiplexer and
// the program-address engine behind a single handle and layers the
// transaction submission and confirmation helpers on top.
//
// The embedded rpc.Client carries the whole HTTP call surface, so every
// typed method wrapper is available directly on Client. Subscriptions
// ride a websocket connection that is dialed lazily by the first
// Subscribe call.
package client

import (
	"context"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	solwire "github.com/status-im/solwire-go"
	"github.com/status-im/solwire-go/logutils"
	"github.com/status-im/solwire-go/metrics"
	"github.com/status-im/solwire-go/params"
	"github.com/status-im/solwire-go/pda"
	"github.com/status-im/solwire-go/rpc"
	"github.com/status-im/solwire-go/ws"
)

// Client bundles both transports of the library behind one handle.
type Client struct {
	*rpc.Client

	ws   *ws.Conn
	feed event.Feed

	logger *zap.Logger
}

// New builds a client from the configuration. A nil logger is built
// from the configuration's log settings; a nil metrics recorder
// disables recording.
func New(config *params.Config, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		var err error
		logger, err = logutils.NewZapLogger(logutils.Settings{
			Enabled:         config.LogEnabled,
			Level:           config.LogLevel,
			File:            config.LogFile,
			MaxSize:         config.LogMaxSizeMB,
			MaxBackups:      config.LogMaxBackups,
			CompressRotated: config.LogCompressRotated,
		})
		if err != nil {
			return nil, errors.Wrap(err, "build logger")
		}
	}

	rpcClient, err := rpc.NewClient(config, logger, m)
	if err != nil {
		return nil, err
	}
	conn, err := ws.NewConn(config, logger, m)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	return &Client{
		Client: rpcClient,
		ws:     conn,
		logger: logger.Named("client"),
	}, nil
}

// Close shuts down both transports. Safe to call more than once.
func (c *Client) Close() error {
	err := c.ws.Close()
	c.Client.Close()
	return err
}

// WS exposes the subscription multiplexer for callers that need the
// connection itself, for lifecycle events or UnsubscribeAll. The
// Subscribe helpers on Client dial it lazily; direct users may need
// Connect first.
func (c *Client) WS() *ws.Conn {
	return c.ws
}

// SubscribeConnectionEvents registers ch for websocket lifecycle
// events. Sends block until every subscriber receives, so ch should be
// buffered.
func (c *Client) SubscribeConnectionEvents(ch chan<- ws.Event) event.Subscription {
	return c.ws.SubscribeLifecycle(ch)
}

// AccountSubscribe streams changes of the account, dialing the
// websocket on first use.
func (c *Client) AccountSubscribe(ctx context.Context, account solwire.PublicKey, commitment solwire.Commitment) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.AccountSubscribe(ctx, account, commitment)
}

// LogsSubscribe streams transaction log messages, all of them when
// mentions is nil, otherwise only those mentioning the address.
func (c *Client) LogsSubscribe(ctx context.Context, mentions *solwire.PublicKey, commitment solwire.Commitment) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.LogsSubscribe(ctx, mentions, commitment)
}

// ProgramSubscribe streams changes of every account owned by the
// program, optionally narrowed by filters.
func (c *Client) ProgramSubscribe(ctx context.Context, program solwire.PublicKey, filters []rpc.ProgramFilter, commitment solwire.Commitment) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.ProgramSubscribe(ctx, program, filters, commitment)
}

// SignatureSubscribe streams the single notification the cluster sends
// when the signature reaches the commitment. ConfirmTransactionViaSubscription
// wraps the full wait.
func (c *Client) SignatureSubscribe(ctx context.Context, signature solwire.Signature, commitment solwire.Commitment) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.SignatureSubscribe(ctx, signature, commitment)
}

// SlotSubscribe streams slot progression notifications.
func (c *Client) SlotSubscribe(ctx context.Context) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.SlotSubscribe(ctx)
}

// SlotsUpdatesSubscribe streams fine-grained slot lifecycle updates.
func (c *Client) SlotsUpdatesSubscribe(ctx context.Context) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.SlotsUpdatesSubscribe(ctx)
}

// RootSubscribe streams new root slots.
func (c *Client) RootSubscribe(ctx context.Context) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.RootSubscribe(ctx)
}

// VoteSubscribe streams observed gossip votes.
func (c *Client) VoteSubscribe(ctx context.Context) (*ws.Subscription, error) {
	if err := c.ws.Connect(ctx); err != nil {
		return nil, err
	}
	return c.ws.VoteSubscribe(ctx)
}

// UnsubscribeAll tears down every live subscription.
func (c *Client) UnsubscribeAll(ctx context.Context) error {
	return c.ws.UnsubscribeAll(ctx)
}

// FindProgramAddress derives the canonical program-derived address and
// its bump seed for the given seeds.
func (c *Client) FindProgramAddress(seeds [][]byte, programID solwire.PublicKey) (solwire.PublicKey, uint8, error) {
	return pda.FindProgramAddress(seeds, programID)
}

// CreateProgramAddress derives the program address for the exact seeds,
// failing when the result lands on the ed25519 curve.
func (c *Client) CreateProgramAddress(seeds [][]byte, programID solwire.PublicKey) (solwire.PublicKey, error) {
	return pda.CreateProgramAddress(seeds, programID)
}

// CreateWithSeed derives the address of an account created with
// SystemProgram.createAccountWithSeed.
func (c *Client) CreateWithSeed(base solwire.PublicKey, seed string, programID solwire.PublicKey) (solwire.PublicKey, error) {
	return pda.CreateWithSeed(base, seed, programID)
}

// IsOnCurve reports whether the public key lies on the ed25519 curve,
// meaning a private key for it can exist.
func (c *Client) IsOnCurve(pk solwire.PublicKey) bool {
	return pda.IsOnCurve(pk)
}
