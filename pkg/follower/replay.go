package follower

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

var errReplayDiverged = errors.New("source diverged from checkpoint")

// Replay rebuilds the ledger of a current-version bundle by reapplying every
// record from its anchor to its cursor. It is the recompute hook handed to
// the migration manager. A bundle caught mid-rollback is replayed to the
// reorg ancestor, which is where the rollback would have ended.
func (f *Follower) Replay(ctx context.Context, doc []byte) ([]byte, error) {
	old, err := ledger.Decode(doc)
	if err != nil {
		return nil, err
	}
	target := old.Cursor
	if old.Phase == ledger.PhaseRollingBack {
		target = old.ReorgTarget
	}

	cp := ledger.NewCheckpoint()
	cp.Anchor = old.Anchor
	cp.Cursor = old.Anchor
	cp.Scope = old.Scope
	f.log.Infow("replaying ledger", "from", cp.Anchor.String(), "to", target.String())

	for cp.Cursor.Height < target.Height {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := cp.Cursor.Height + 1
		rec, err := f.src.Get(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("replay record %d: %w", h, err)
		}
		if !rec.Extends(cp.Cursor) {
			return nil, fmt.Errorf("replay record %s: %w: parent %s, cursor %s",
				rec.Position, errReplayDiverged, rec.Parent, cp.Cursor)
		}
		cp, _, err = f.applyRecord(cp, rec)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}
	if cp.Cursor != target {
		return nil, fmt.Errorf("replay ended at %s, expected %s: %w", cp.Cursor, target, errReplayDiverged)
	}
	return ledger.Encode(cp)
}
