// Package etl runs the follower over a bounded historical range and exits.
package etl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

// ErrRangeGap is returned when the checkpoint cursor sits below the start of
// the requested range, so records between the two would be skipped.
var ErrRangeGap = errors.New("backfill range does not start at checkpoint cursor")

// Follower is the part of follower.Follower the driver needs.
type Follower interface {
	Checkpoint() ledger.Checkpoint
	Anchor(ctx context.Context, p ledger.Position) error
	AdvanceTo(ctx context.Context, height uint64) error
}

// RunBackfill feeds f the closed range [start, end]. On success the cursor
// is at end. An empty ledger with start > 1 is anchored at the parent of
// start; a cursor already at or past end makes the run a no-op.
func RunBackfill(
	ctx context.Context,
	log *zap.SugaredLogger,
	f Follower,
	src source.Source,
	start, end uint64,
) error {
	if start == 0 {
		return errors.New("invalid start: must be greater than 0")
	}
	if end < start {
		return fmt.Errorf("invalid range: end %d < start %d", end, start)
	}

	cp := f.Checkpoint()
	if cp.Phase == ledger.PhaseFollowing && cp.Cursor.Height >= end {
		log.Infow("checkpoint already covers range", "cursor", cp.Cursor.String(), "end", end)
		return nil
	}

	tip, err := src.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to get source tip: %w", err)
	}
	if tip < end {
		return fmt.Errorf("end %d beyond source tip %d: %w", end, tip, source.ErrNotFound)
	}

	empty := cp.Cursor.IsZero() && len(cp.Ledger) == 0 && len(cp.Journal) == 0
	switch {
	case empty && start > 1:
		first, err := src.Get(ctx, start)
		if err != nil {
			return fmt.Errorf("failed to get first record %d: %w", start, err)
		}
		if err := f.Anchor(ctx, first.Parent); err != nil {
			return err
		}
	case !empty && cp.Cursor.Height+1 < start:
		return fmt.Errorf("%w: cursor %s, start %d", ErrRangeGap, cp.Cursor, start)
	}

	log.Infow("starting backfill", "start", start, "end", end, "cursor", f.Checkpoint().Cursor.String())
	if err := f.AdvanceTo(ctx, end); err != nil {
		return fmt.Errorf("backfill [%d, %d]: %w", start, end, err)
	}
	log.Infow("backfill complete", "cursor", f.Checkpoint().Cursor.String())
	return nil
}
