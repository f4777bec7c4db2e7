// Package scheduler periodically copies the committed checkpoint to a
// snapshot key so operators have a recent restore point that the follower
// itself never overwrites mid-reorg.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
)

// SnapshotSuffix is appended to the follower key to form the snapshot key.
const SnapshotSuffix = "/snapshot"

// Source yields the last committed checkpoint entry. ok is false before the
// first commit.
type Source interface {
	Snapshot() (e checkpointer.Entry, ok bool)
}

// Recorder receives the outcome of every snapshot copy.
type Recorder interface {
	RecordSnapshot(err error)
}

// SnapshotKey returns the key snapshots of key are written under.
func SnapshotKey(key string) string {
	return key + SnapshotSuffix
}

// Start copies the committed checkpoint of src to SnapshotKey every
// cfg.Interval. Entries whose cursor did not move since the last copy are
// skipped. It returns nil when ctx is cancelled and an error when a copy
// fails after all retries. rec may be nil.
func Start(
	ctx context.Context,
	log *zap.SugaredLogger,
	src Source,
	store checkpointer.Checkpointer,
	cfg checkpointer.Config,
	rec Recorder,
) error {
	if cfg.Interval <= 0 {
		return errors.New("invalid interval: must be greater than 0")
	}

	var last checkpointer.Entry
	var written bool

	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			e, ok := src.Snapshot()
			if !ok {
				continue
			}
			if written && e.Height == last.Height && e.Hash == last.Hash {
				continue
			}

			snap := e
			snap.Key = SnapshotKey(e.Key)
			err := checkpointer.Save(ctx, store, cfg, snap)
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			if rec != nil {
				rec.RecordSnapshot(err)
			}
			if err != nil {
				return fmt.Errorf("failed to write snapshot (height: %d): %w", e.Height, err)
			}
			log.Debugw("snapshot written", "key", snap.Key, "height", e.Height, "hash", e.Hash)
			last, written = e, true
		}
	}
}
