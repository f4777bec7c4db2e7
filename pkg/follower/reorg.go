package follower

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// beginReorg locates the common ancestor of the journal and the canonical
// chain and persists the switch to rolling_back. Nothing is undone yet.
func (f *Follower) beginReorg(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "follower.reorg", trace.WithAttributes(
		attribute.Int64("cursor.height", int64(f.cp.Cursor.Height)),
		attribute.String("cursor.hash", f.cp.Cursor.Hash),
	))
	defer span.End()

	target, depth, err := f.findAncestor(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ancestor search failed")
		return err
	}
	span.SetAttributes(attribute.Int("depth", depth))
	f.metrics.RecordReorg(depth)
	f.log.Warnw("reorg detected",
		"cursor", f.cp.Cursor.String(),
		"ancestor", target.String(),
		"depth", depth,
	)

	next := stage(f.cp)
	// A reorg during reapplying keeps the highest tip seen so far.
	if next.Phase != ledger.PhaseReapplying || next.Cursor.Height > next.ReorgTip.Height {
		next.ReorgTip = next.Cursor
	}
	next.ReorgTarget = target
	next.Phase = ledger.PhaseRollingBack
	return f.commit(ctx, next, nil)
}

// findAncestor walks the journal newest to oldest and returns the first
// parent the source still considers canonical, with the number of records
// that must be undone to reach it. At most MaxReorgDepth entries are tried.
func (f *Follower) findAncestor(ctx context.Context) (ledger.Position, int, error) {
	j := f.cp.Journal
	limit := min(len(j), f.cfg.MaxReorgDepth)
	for depth := 1; depth <= limit; depth++ {
		parent := j[len(j)-depth].Parent
		ok, err := f.isCanonical(ctx, parent)
		if err != nil {
			return ledger.Position{}, 0, err
		}
		if ok {
			return parent, depth, nil
		}
	}
	return ledger.Position{}, 0, &ledger.ReorgError{
		Cursor:   f.cp.Cursor,
		Depth:    limit + 1,
		MaxDepth: f.cfg.MaxReorgDepth,
		Err:      ledger.ErrReorgTooDeep,
	}
}

// rollbackOne undoes the newest journal record and persists the result.
// Reaching the ancestor switches the phase to reapplying in the same write.
func (f *Follower) rollbackOne(ctx context.Context) error {
	if f.cp.Cursor == f.cp.ReorgTarget {
		next := stage(f.cp)
		next.Phase = ledger.PhaseReapplying
		return f.commit(ctx, next, nil)
	}
	if f.cp.Cursor.Height <= f.cp.ReorgTarget.Height {
		return fmt.Errorf("%w: rolled back to %s past ancestor %s",
			ledger.ErrCheckpointCorrupt, f.cp.Cursor, f.cp.ReorgTarget)
	}

	ctx, span := f.tracer.Start(ctx, "follower.undo", trace.WithAttributes(
		attribute.Int64("height", int64(f.cp.Cursor.Height)),
		attribute.String("hash", f.cp.Cursor.Hash),
	))
	defer span.End()

	next, rec, deltas, err := f.undoRecord(f.cp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undo failed")
		return err
	}
	if next.Cursor == next.ReorgTarget {
		next.Phase = ledger.PhaseReapplying
	}
	if err := f.commit(ctx, next, &Commit{Record: rec, Undo: true, Cursor: next.Cursor, Deltas: deltas}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return err
	}
	f.metrics.RecordUndone()
	f.log.Infow("rolled back record", "position", rec.Position.String(), "target", next.ReorgTarget.String())
	return nil
}
