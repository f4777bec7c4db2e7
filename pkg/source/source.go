// Package source defines the contract for reading records from the tracked
// chain.
package source

import (
	"context"
	"errors"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

var (
	// ErrNotFound is returned when no record exists at the requested height yet.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable marks transient failures that may be retried.
	ErrUnavailable = errors.New("source unavailable")
	// ErrMalformed marks a record that could not be decoded. The fetch is
	// reported and skipped; it is not retried with backoff.
	ErrMalformed = errors.New("source returned malformed record")
)

// Source supplies records by height.
type Source interface {
	// Get returns the canonical record at height.
	Get(ctx context.Context, height uint64) (ledger.Record, error)
	// Latest returns the height of the canonical tip.
	Latest(ctx context.Context) (uint64, error)
	// IsCanonical reports whether p is part of the canonical chain.
	IsCanonical(ctx context.Context, p ledger.Position) (bool, error)
}
