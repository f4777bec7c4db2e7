package inmemory

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
)

// ErrInjected is returned by writes that were scripted to fail.
var ErrInjected = errors.New("injected write failure")

var _ checkpointer.Checkpointer = (*Checkpoints)(nil)

// Checkpoints is a thread-safe in-memory checkpoint store. Writes can be
// scripted to fail so callers can simulate crashes between writes.
type Checkpoints struct {
	mu      sync.Mutex
	entries map[string]checkpointer.Entry
	writes  int
	// Writes with index >= failFrom fail. Negative disables.
	failFrom int
	// Number of upcoming writes to fail.
	failNext int
}

func NewCheckpoints() *Checkpoints {
	return &Checkpoints{
		entries:  make(map[string]checkpointer.Entry),
		failFrom: -1,
	}
}

func (c *Checkpoints) Initialize(context.Context) error {
	return nil
}

func (c *Checkpoints) Write(ctx context.Context, e checkpointer.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.writes
	c.writes++
	if c.failFrom >= 0 && idx >= c.failFrom {
		return ErrInjected
	}
	if c.failNext > 0 {
		c.failNext--
		return ErrInjected
	}
	e.Bundle = bytes.Clone(e.Bundle)
	c.entries[e.Key] = e
	return nil
}

func (c *Checkpoints) Read(ctx context.Context, key string) (checkpointer.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return checkpointer.Entry{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return checkpointer.Entry{}, false, nil
	}
	e.Bundle = bytes.Clone(e.Bundle)
	return e, true, nil
}

func (c *Checkpoints) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Put stores e directly, bypassing failure scripting.
func (c *Checkpoints) Put(e checkpointer.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.Bundle = bytes.Clone(e.Bundle)
	c.entries[e.Key] = e
}

// Writes returns how many writes were attempted.
func (c *Checkpoints) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// CrashAfter makes every write after the first n attempted writes fail.
func (c *Checkpoints) CrashAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failFrom = n
}

// Recover clears all scripted failures.
func (c *Checkpoints) Recover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failFrom = -1
	c.failNext = 0
}

// FailNext makes the next n writes fail.
func (c *Checkpoints) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}
