package checkpointer

import (
	"context"
	"fmt"
	"time"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// Entry is one persisted checkpoint. Bundle holds the encoded
// ledger.Checkpoint; Height and Hash mirror its cursor so stores can index
// and operators can inspect it without decoding.
type Entry struct {
	Key           string
	SchemaVersion int
	Height        uint64
	Hash          string
	Bundle        []byte
	Timestamp     int64
}

// NewEntry encodes cp under key.
func NewEntry(key string, cp ledger.Checkpoint) (Entry, error) {
	bundle, err := ledger.Encode(cp)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Key:           key,
		SchemaVersion: cp.SchemaVersion,
		Height:        cp.Cursor.Height,
		Hash:          cp.Cursor.Hash,
		Bundle:        bundle,
		Timestamp:     time.Now().Unix(),
	}, nil
}

// Checkpointer abstracts checkpoint persistence across different data stores. A checkpoint
// holds the cursor and the ledger as one bundle, so a write either replaces both or neither.
type Checkpointer interface {
	// Initialize ensures the underlying storage is ready (creates tables, schemas, etc.). This
	// should be idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Write atomically replaces the entry stored under e.Key.
	Write(ctx context.Context, e Entry) error

	// Read retrieves the entry stored under key. If no entry exists, exists will be false.
	Read(ctx context.Context, key string) (e Entry, exists bool, err error)

	// Delete removes the entry stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Save writes e with a per-attempt timeout, retrying up to cfg.MaxRetries
// times. It returns ctx.Err() if ctx is cancelled between attempts.
func Save(ctx context.Context, cp Checkpointer, cfg Config, e Entry) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		lastErr = cp.Write(writeCtx, e)
		cancel()

		if lastErr == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed to write checkpoint %q (height: %d) after %d attempts: %w",
		e.Key, e.Height, cfg.MaxRetries+1, lastErr)
}
