// Package chainclient adapts upstream node APIs to source.Source.
package chainclient

import (
	"context"
	"fmt"
	"time"

	"github.com/ava-labs/rewards-follower/pkg/source"
)

// Metrics receives per-call RPC measurements. *metrics.Metrics satisfies it.
type Metrics interface {
	IncRPCInFlight()
	DecRPCInFlight()
	RecordRPCCall(method string, err error, durationSeconds float64)
}

// Caller is the JSON-RPC transport. *rpc.Client satisfies it.
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Call invokes method on c and reports it to m, which may be nil.
func Call(ctx context.Context, c Caller, m Metrics, method string, result any, args ...any) error {
	start := time.Now()
	if m != nil {
		m.IncRPCInFlight()
		defer m.DecRPCInFlight()
	}

	err := c.CallContext(ctx, result, method, args...)

	if m != nil {
		m.RecordRPCCall(method, err, time.Since(start).Seconds())
	}
	return err
}

// Transport classifies a failed call. Cancellation is returned as is so
// callers stop instead of retrying; everything else is retryable.
func Transport(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%s: %w: %w", method, source.ErrUnavailable, err)
}
