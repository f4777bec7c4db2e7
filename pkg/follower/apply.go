package follower

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/reward"
)

// stage returns a copy of cp that can be modified without touching cp.
// Participant states and journal entries are replaced, never mutated in
// place, so shallow copies of the ledger map and journal are enough.
func stage(cp ledger.Checkpoint) ledger.Checkpoint {
	next := cp
	next.Ledger = maps.Clone(cp.Ledger)
	if next.Ledger == nil {
		next.Ledger = ledger.Ledger{}
	}
	next.Journal = slices.Clone(cp.Journal)
	return next
}

func put(l ledger.Ledger, participant string, s ledger.ParticipantState) {
	if s.IsZero() {
		delete(l, participant)
		return
	}
	l[participant] = s
}

// applyRecord returns cp with rec applied to every participant it touches.
// On error cp is returned unchanged.
func (f *Follower) applyRecord(cp ledger.Checkpoint, rec ledger.Record) (ledger.Checkpoint, []Delta, error) {
	if !rec.Extends(cp.Cursor) {
		return cp, nil, &ledger.PositionError{
			Op: "apply", Position: rec.Position,
			Err: fmt.Errorf("%w: parent %s, cursor %s", ledger.ErrOutOfOrder, rec.Parent, cp.Cursor),
		}
	}

	next := stage(cp)
	participants := f.engine.Participants(rec)
	deltas := make([]Delta, 0, len(participants))
	for _, p := range participants {
		s, d, err := f.engine.Apply(p, next.Ledger[p], rec)
		if err != nil {
			return cp, nil, err
		}
		put(next.Ledger, p, s)
		deltas = append(deltas, Delta{Participant: p, Delta: d, Cumulative: s.Cumulative})
	}
	next.Cursor = rec.Position
	next.Journal = append(next.Journal, ledger.Entry{Record: rec, Applied: participants})

	// The entry MaxReorgDepth below the new cursor leaves the rollback window.
	// Settled entries are kept for another MaxReorgDepth records so a rollback
	// can bring their history back.
	n := len(next.Journal)
	f.settle(&next, n-1-f.cfg.MaxReorgDepth)
	if keep := 2 * f.cfg.MaxReorgDepth; n > keep {
		next.Journal = next.Journal[n-keep:]
	}

	if next.Phase == ledger.PhaseReapplying && next.Cursor.Height >= next.ReorgTip.Height {
		next.Phase = ledger.PhaseFollowing
		next.ReorgTarget = ledger.Position{}
		next.ReorgTip = ledger.Position{}
	}
	return next, deltas, nil
}

// undoRecord returns cp with its newest journal record undone for the
// participants it was applied to.
func (f *Follower) undoRecord(cp ledger.Checkpoint) (ledger.Checkpoint, ledger.Record, []Delta, error) {
	n := len(cp.Journal)
	if n == 0 {
		return cp, ledger.Record{}, nil, &ledger.ReorgError{
			Cursor: cp.Cursor, Depth: 1, MaxDepth: f.cfg.MaxReorgDepth,
			Err: fmt.Errorf("%w: journal exhausted", ledger.ErrReorgTooDeep),
		}
	}
	e := cp.Journal[n-1]
	if e.Position != cp.Cursor {
		return cp, e.Record, nil, fmt.Errorf("%w: journal ends at %s, cursor is %s",
			ledger.ErrCheckpointCorrupt, e.Position, cp.Cursor)
	}

	next := stage(cp)
	deltas := make([]Delta, 0, len(e.Applied))
	for i := len(e.Applied) - 1; i >= 0; i-- {
		p := e.Applied[i]
		before := next.Ledger[p]
		s, err := f.engine.Undo(p, before, e.Record)
		if err != nil {
			return cp, e.Record, nil, err
		}
		put(next.Ledger, p, s)
		deltas = append(deltas, Delta{Participant: p, Delta: s.Cumulative.Sub(before.Cumulative), Cumulative: s.Cumulative})
	}
	next.Cursor = e.Parent
	next.Journal = next.Journal[:n-1]
	f.restore(&next, n-1-f.cfg.MaxReorgDepth)
	return next, e.Record, deltas, nil
}

// settle moves the undo history of journal entry i out of participant state
// and into the entry.
func (f *Follower) settle(cp *ledger.Checkpoint, i int) {
	fin, ok := f.engine.(reward.Finalizer)
	if !ok || i < 0 || i >= len(cp.Journal) {
		return
	}
	e := cp.Journal[i]
	var settled map[string][]ledger.Mark
	for _, p := range e.Applied {
		s, ok := cp.Ledger[p]
		if !ok {
			continue
		}
		s, marks := fin.Settle(s, e.Position.Height)
		if len(marks) == 0 {
			continue
		}
		cp.Ledger[p] = s
		if settled == nil {
			settled = make(map[string][]ledger.Mark)
		}
		settled[p] = marks
	}
	e.Settled = settled
	cp.Journal[i] = e
}

// restore reverses settle for journal entry i.
func (f *Follower) restore(cp *ledger.Checkpoint, i int) {
	fin, ok := f.engine.(reward.Finalizer)
	if !ok || i < 0 || i >= len(cp.Journal) || cp.Journal[i].Settled == nil {
		return
	}
	e := cp.Journal[i]
	for p, marks := range e.Settled {
		cp.Ledger[p] = fin.Restore(cp.Ledger[p], marks)
	}
	e.Settled = nil
	cp.Journal[i] = e
}

func (f *Follower) applyAndCommit(ctx context.Context, rec ledger.Record) error {
	ctx, span := f.tracer.Start(ctx, "follower.apply", trace.WithAttributes(
		attribute.Int64("height", int64(rec.Position.Height)),
		attribute.String("hash", rec.Position.Hash),
	))
	defer span.End()

	start := time.Now()
	next, deltas, err := f.applyRecord(f.cp, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		f.log.Errorw("failed to apply record", "position", rec.Position.String(), "error", err)
		return err
	}
	if err := f.commit(ctx, next, &Commit{Record: rec, Cursor: next.Cursor, Deltas: deltas}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return err
	}
	f.metrics.RecordApplied(time.Since(start))
	f.log.Debugw("applied record", "position", rec.Position.String(), "participants", len(deltas))
	return nil
}

// commit persists next and makes it the committed checkpoint. On failure the
// committed checkpoint is left as it was.
func (f *Follower) commit(ctx context.Context, next ledger.Checkpoint, c *Commit) error {
	e, err := checkpointer.NewEntry(f.cfg.Key, next)
	if err != nil {
		return err
	}

	start := time.Now()
	err = checkpointer.Save(ctx, f.store, f.cfg.Checkpoint, e)
	f.metrics.RecordCheckpointWrite(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint at %s: %w", next.Cursor, err)
	}

	f.setCommitted(next, e)
	if c != nil {
		for _, o := range f.observers {
			o.OnCommit(ctx, *c)
		}
	}
	return nil
}
