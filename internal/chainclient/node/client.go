// Package node reads reward records from a node exposing the block_height
// and block_get JSON-RPC methods.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ava-labs/coreth/rpc"
	"github.com/tidwall/gjson"

	"github.com/ava-labs/rewards-follower/internal/chainclient"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

const (
	methodHeight = "block_height"
	methodGet    = "block_get"

	defaultKind = "reward"
)

// Client implements source.Source over a node's JSON-RPC API.
type Client struct {
	rpc     chainclient.Caller
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

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial node rpc: %w", err)
	}
	return New(c, opts...), nil
}

// New wraps an existing transport.
func New(caller chainclient.Caller, opts ...Option) *Client {
	client := &Client{rpc: caller}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Latest(ctx context.Context) (uint64, error) {
	var height uint64
	if err := chainclient.Call(ctx, c.rpc, c.metrics, methodHeight, &height); err != nil {
		return 0, chainclient.Transport(ctx, methodHeight, err)
	}
	return height, nil
}

func (c *Client) Get(ctx context.Context, height uint64) (ledger.Record, error) {
	var raw json.RawMessage
	if err := chainclient.Call(ctx, c.rpc, c.metrics, methodGet, &raw, height); err != nil {
		return ledger.Record{}, chainclient.Transport(ctx, methodGet, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return ledger.Record{}, fmt.Errorf("block %d: %w", height, source.ErrNotFound)
	}
	rec, err := decodeBlock(raw)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("block %d: %w: %w", height, source.ErrMalformed, err)
	}
	if rec.Position.Height != height {
		return ledger.Record{}, fmt.Errorf("block %d: %w: node returned height %d", height, source.ErrMalformed, rec.Position.Height)
	}
	return rec, nil
}

func (c *Client) IsCanonical(ctx context.Context, p ledger.Position) (bool, error) {
	rec, err := c.Get(ctx, p.Height)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Position.Hash == p.Hash, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	c.rpc.Close()
}

// decodeBlock maps {height, hash, prev_hash, time, rewards} to a record. A
// reward is credited to its gateway when one is set, otherwise to its account.
func decodeBlock(raw []byte) (ledger.Record, error) {
	if !gjson.ValidBytes(raw) {
		return ledger.Record{}, errors.New("invalid json")
	}
	doc := gjson.ParseBytes(raw)

	height := doc.Get("height")
	if height.Type != gjson.Number {
		return ledger.Record{}, errors.New("missing height")
	}
	hash := doc.Get("hash").String()
	if hash == "" {
		return ledger.Record{}, errors.New("missing hash")
	}
	h := height.Uint()

	rec := ledger.Record{
		Position: ledger.Position{Height: h, Hash: hash},
		Time:     doc.Get("time").Int(),
	}
	if h > 0 {
		rec.Parent = ledger.Position{Height: h - 1, Hash: doc.Get("prev_hash").String()}
	}

	var decodeErr error
	doc.Get("rewards").ForEach(func(i, r gjson.Result) bool {
		participant := r.Get("gateway").String()
		if participant == "" {
			participant = r.Get("account").String()
		}
		if participant == "" {
			decodeErr = fmt.Errorf("reward %d: missing account", i.Int())
			return false
		}
		amount, err := ledger.ParseAmount(r.Get("amount").String())
		if err != nil {
			decodeErr = fmt.Errorf("reward %d: %w", i.Int(), err)
			return false
		}
		kind := r.Get("type").String()
		if kind == "" {
			kind = defaultKind
		}
		rec.Payload.Rewards = append(rec.Payload.Rewards, ledger.RewardEntry{
			Participant: participant,
			Kind:        kind,
			Amount:      amount,
		})
		return true
	})
	if decodeErr != nil {
		return ledger.Record{}, decodeErr
	}
	return rec, nil
}
