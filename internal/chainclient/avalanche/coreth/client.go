package coreth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ava-labs/coreth/plugin/evm/customethclient"
	"github.com/ava-labs/coreth/plugin/evm/customtypes"
	"github.com/ava-labs/coreth/rpc"
	ethereum "github.com/ava-labs/libevm"

	"github.com/ava-labs/rewards-follower/internal/chainclient"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

// Client reads C-Chain blocks and credits each block's fees to its coinbase.
type Client struct {
	rpc     *rpc.Client
	eth     *customethclient.Client
	metrics chainclient.Metrics // nil if metrics disabled
}

var _ source.Source = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m chainclient.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a new Coreth client.
func New(ctx context.Context, url string, opts ...Option) (*Client, error) {
	customtypes.Register()

	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial coreth rpc: %w", err)
	}

	client := &Client{
		rpc: c,
		eth: customethclient.New(c),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *Client) Get(ctx context.Context, height uint64) (ledger.Record, error) {
	const method = "eth_getBlockByNumber"

	var blk evmBlock
	call := func(ctx context.Context, _ any, _ string, _ ...any) error {
		b, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(height))
		if err != nil {
			return err
		}
		blk = fromBlock(b)
		return nil
	}
	if err := chainclient.Call(ctx, callerFunc(call), c.metrics, method, nil); err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ledger.Record{}, fmt.Errorf("block %d: %w", height, source.ErrNotFound)
		}
		return ledger.Record{}, chainclient.Transport(ctx, method, err)
	}
	return blk.record(), nil
}

func (c *Client) Latest(ctx context.Context) (uint64, error) {
	const method = "eth_blockNumber"

	var hex string
	if err := chainclient.Call(ctx, c.rpc, c.metrics, method, &hex); err != nil {
		return 0, chainclient.Transport(ctx, method, err)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(hex, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", method, source.ErrMalformed, err)
	}
	return n, nil
}

func (c *Client) IsCanonical(ctx context.Context, p ledger.Position) (bool, error) {
	const method = "eth_getBlockByNumber"

	var header *struct {
		Hash string `json:"hash"`
	}
	number := "0x" + strconv.FormatUint(p.Height, 16)
	if err := chainclient.Call(ctx, c.rpc, c.metrics, method, &header, number, false); err != nil {
		return false, chainclient.Transport(ctx, method, err)
	}
	if header == nil {
		return false, nil
	}
	return strings.EqualFold(header.Hash, p.Hash), nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	c.rpc.Close()
}

// callerFunc lets a typed ethclient call be measured like a raw RPC call.
type callerFunc func(ctx context.Context, result any, method string, args ...any) error

func (f callerFunc) CallContext(ctx context.Context, result any, method string, args ...any) error {
	return f(ctx, result, method, args...)
}

func (callerFunc) Close() {}
