// Package testutils provides an in-memory Source for tests.
package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

// Genesis is the parent of the first record of every test chain.
var Genesis = ledger.Position{Height: 0, Hash: "genesis"}

// Linear builds records on top of parent, one per payload. Hashes are
// fork+height so competing forks never collide.
func Linear(fork string, parent ledger.Position, payloads ...ledger.Payload) []ledger.Record {
	out := make([]ledger.Record, 0, len(payloads))
	for _, p := range payloads {
		pos := ledger.Position{Height: parent.Height + 1, Hash: fmt.Sprintf("%s%d", fork, parent.Height+1)}
		out = append(out, ledger.Record{Position: pos, Parent: parent, Time: int64(pos.Height), Payload: p})
		parent = pos
	}
	return out
}

// Reward builds a payload with one entry.
func Reward(participant string, amount int64) ledger.Payload {
	return ledger.Payload{Rewards: []ledger.RewardEntry{{Participant: participant, Kind: "mining", Amount: ledger.NewAmount(amount)}}}
}

// Chain is a thread-safe in-memory canonical chain with scripted failures.
type Chain struct {
	mu       sync.Mutex
	records  map[uint64]ledger.Record
	tip      uint64
	failures map[uint64][]error
	gets     map[uint64]int
	canon    int
}

var _ source.Source = (*Chain)(nil)

// NewChain creates a chain holding records.
func NewChain(records ...ledger.Record) *Chain {
	c := &Chain{
		records:  make(map[uint64]ledger.Record),
		failures: make(map[uint64][]error),
		gets:     make(map[uint64]int),
	}
	c.Reorg(records...)
	return c
}

// Reorg replaces every record at or above the first given record's height
// with records. Calling it with records that extend the tip appends them.
func (c *Chain) Reorg(records ...ledger.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(records) == 0 {
		return
	}
	from := records[0].Position.Height
	for h := range c.records {
		if h >= from {
			delete(c.records, h)
		}
	}
	c.tip = from - 1
	for _, r := range records {
		c.records[r.Position.Height] = r
		c.tip = max(c.tip, r.Position.Height)
	}
}

// Fail makes the next len(errs) Get calls at height return errs in order.
func (c *Chain) Fail(height uint64, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[height] = append(c.failures[height], errs...)
}

// Gets returns how many times Get was called for height.
func (c *Chain) Gets(height uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[height]
}

// CanonicalChecks returns how many times IsCanonical was called.
func (c *Chain) CanonicalChecks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canon
}

// Record returns the canonical record at height.
func (c *Chain) Record(height uint64) ledger.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[height]
}

func (c *Chain) Get(ctx context.Context, height uint64) (ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets[height]++
	if errs := c.failures[height]; len(errs) > 0 {
		c.failures[height] = errs[1:]
		return ledger.Record{}, errs[0]
	}
	r, ok := c.records[height]
	if !ok {
		return ledger.Record{}, fmt.Errorf("height %d: %w", height, source.ErrNotFound)
	}
	return r, nil
}

func (c *Chain) Latest(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, nil
}

func (c *Chain) IsCanonical(ctx context.Context, p ledger.Position) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canon++
	if p.Height == 0 {
		return p == Genesis, nil
	}
	r, ok := c.records[p.Height]
	return ok && r.Position == p, nil
}
