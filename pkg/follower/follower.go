// Package follower consumes an ordered, possibly reorganized record stream and
// maintains the reward ledger.
//
// A Follower owns one checkpoint key. Every applied or undone record is
// persisted before the next record is requested, so a restart always resumes
// from the last committed cursor. Reorgs are reconciled by a small state
// machine (following, rolling_back, reapplying) whose phase is persisted with
// the checkpoint, so a crash at any point resumes where it stopped.
//
// A Follower is not safe for concurrent use, with the exception of Snapshot.
package follower

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/checkpointer"
	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/migrate"
	"github.com/ava-labs/rewards-follower/pkg/reward"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

const tracerName = "github.com/ava-labs/rewards-follower/pkg/follower"

var errNotInitialized = errors.New("follower not initialized")

type Follower struct {
	cfg       Config
	log       *zap.SugaredLogger
	src       source.Source
	store     checkpointer.Checkpointer
	engine    reward.Engine
	migrator  *migrate.Manager
	metrics   Metrics
	tracer    trace.Tracer
	observers []Observer

	// Last committed checkpoint. Replaced only after a successful save.
	cp          ledger.Checkpoint
	initialized bool

	malformedHeight uint64
	malformedCount  int

	mu       sync.RWMutex
	snapshot checkpointer.Entry
}

// New creates a Follower and returns an error if arguments are invalid.
// Initialize must be called before any other method.
func New(
	cfg Config,
	log *zap.SugaredLogger,
	src source.Source,
	store checkpointer.Checkpointer,
	engine reward.Engine,
	opts ...Option,
) (*Follower, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if src == nil {
		return nil, errors.New("invalid source: must not be nil")
	}
	if store == nil {
		return nil, errors.New("invalid store: must not be nil")
	}
	if engine == nil {
		return nil, errors.New("invalid engine: must not be nil")
	}

	f := &Follower{
		cfg:     cfg,
		log:     log.With("key", cfg.Key),
		src:     src,
		store:   store,
		engine:  engine,
		metrics: nopMetrics{},
		tracer:  otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(f)
	}
	if f.migrator == nil {
		m, err := migrate.NewDefault(f.log, migrate.WithReplayer(f.Replay))
		if err != nil {
			return nil, fmt.Errorf("failed to create migrator: %w", err)
		}
		f.migrator = m
	}
	return f, nil
}

// Initialize loads the checkpoint, migrating it first when it was written by
// an older schema version. A missing checkpoint starts an empty ledger.
func (f *Follower) Initialize(ctx context.Context) error {
	e, exists, err := f.store.Read(ctx, f.cfg.Key)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %q: %w", f.cfg.Key, err)
	}
	scope := reward.ScopeOf(f.engine)
	if !exists {
		f.log.Infow("no checkpoint found; starting empty ledger")
		cp := ledger.NewCheckpoint()
		cp.Scope = scope
		return f.load(cp)
	}

	bundle := e.Bundle
	version, err := ledger.PeekVersion(bundle)
	if err != nil {
		return fmt.Errorf("checkpoint %q: %w", f.cfg.Key, err)
	}
	switch {
	case version > ledger.CurrentSchemaVersion:
		return &ledger.VersionError{From: version, To: ledger.CurrentSchemaVersion, Err: ledger.ErrSchemaTooNew}
	case version < ledger.CurrentSchemaVersion:
		f.log.Infow("migrating checkpoint", "from", version, "to", ledger.CurrentSchemaVersion)
		bundle, err = f.migrator.Migrate(ctx, bundle, version, ledger.CurrentSchemaVersion)
		if err != nil {
			return fmt.Errorf("failed to migrate checkpoint %q: %w", f.cfg.Key, err)
		}
	}

	cp, err := ledger.Decode(bundle)
	if err != nil {
		return fmt.Errorf("checkpoint %q: %w", f.cfg.Key, err)
	}
	if err := validateCheckpoint(cp); err != nil {
		return fmt.Errorf("checkpoint %q: %w", f.cfg.Key, err)
	}

	rescoped := cp.Scope != scope
	switch {
	case !rescoped:
	case cp.Scope == "":
		// Bundles migrated from before scopes were recorded.
		f.log.Infow("recording participant scope", "scope", scope)
	case f.cfg.AllowScopeChange:
		f.log.Warnw("participant scope changed", "stored", cp.Scope, "configured", scope)
	default:
		return fmt.Errorf("checkpoint %q: %w: stored %s, configured %s",
			f.cfg.Key, ledger.ErrScopeChanged, cp.Scope, scope)
	}
	cp.Scope = scope

	if version < ledger.CurrentSchemaVersion || rescoped {
		// Migrated bundles are written once, only after the whole chain succeeded.
		if err := f.commit(ctx, cp, nil); err != nil {
			return err
		}
		return f.ready()
	}
	return f.load(cp)
}

func (f *Follower) load(cp ledger.Checkpoint) error {
	e, err := checkpointer.NewEntry(f.cfg.Key, cp)
	if err != nil {
		return err
	}
	f.setCommitted(cp, e)
	return f.ready()
}

func (f *Follower) ready() error {
	f.initialized = true
	f.log.Infow("follower initialized",
		"cursor", f.cp.Cursor.String(),
		"phase", f.cp.Phase,
		"participants", len(f.cp.Ledger),
		"journal", len(f.cp.Journal),
	)
	return nil
}

func validateCheckpoint(cp ledger.Checkpoint) error {
	switch cp.Phase {
	case ledger.PhaseFollowing, ledger.PhaseRollingBack, ledger.PhaseReapplying:
	default:
		return fmt.Errorf("%w: unknown phase %q", ledger.ErrCheckpointCorrupt, cp.Phase)
	}
	if n := len(cp.Journal); n > 0 && cp.Journal[n-1].Position != cp.Cursor {
		return fmt.Errorf("%w: journal ends at %s, cursor is %s",
			ledger.ErrCheckpointCorrupt, cp.Journal[n-1].Position, cp.Cursor)
	}
	return nil
}

// Cursor returns the position of the last committed record.
func (f *Follower) Cursor() ledger.Position {
	return f.cp.Cursor
}

// Checkpoint returns a copy of the last committed checkpoint.
func (f *Follower) Checkpoint() ledger.Checkpoint {
	return f.cp.Clone()
}

// Snapshot returns the last committed checkpoint entry. It is safe to call
// from any goroutine.
func (f *Follower) Snapshot() (checkpointer.Entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot, f.snapshot.Key != ""
}

func (f *Follower) setCommitted(cp ledger.Checkpoint, e checkpointer.Entry) {
	f.cp = cp
	f.mu.Lock()
	f.snapshot = e
	f.mu.Unlock()
	f.metrics.SetCursor(cp.Cursor.Height)
}

// AdvanceTo consumes records until the cursor reaches height and no rollback
// is pending. It waits PollInterval whenever the next record is not
// available yet.
func (f *Follower) AdvanceTo(ctx context.Context, height uint64) error {
	if !f.initialized {
		return errNotInitialized
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.cp.Phase != ledger.PhaseRollingBack && f.cp.Cursor.Height >= height {
			return nil
		}
		idle, err := f.step(ctx)
		if err != nil {
			return err
		}
		if idle {
			if err := f.wait(ctx); err != nil {
				return err
			}
		}
	}
}

// FollowForever consumes records until ctx is done or an error halts the run.
func (f *Follower) FollowForever(ctx context.Context) error {
	if !f.initialized {
		return errNotInitialized
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		idle, err := f.step(ctx)
		if err != nil {
			return err
		}
		if idle {
			if err := f.wait(ctx); err != nil {
				return err
			}
		}
	}
}

func (f *Follower) wait(ctx context.Context) error {
	t := time.NewTimer(f.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// step performs one unit of progress. idle is true when nothing could be
// done and the caller should wait before trying again.
func (f *Follower) step(ctx context.Context) (idle bool, err error) {
	if f.cp.Phase == ledger.PhaseRollingBack {
		return false, f.rollbackOne(ctx)
	}

	next := f.cp.Cursor.Height + 1
	rec, err := f.src.Get(ctx, next)
	switch {
	case errors.Is(err, source.ErrNotFound):
		// Caught up, unless the cursor itself was reorganized away by a
		// chain that is not longer than ours.
		canonical, err := f.isCanonical(ctx, f.cp.Cursor)
		if err != nil {
			return false, err
		}
		if !canonical {
			return false, f.beginReorg(ctx)
		}
		return true, nil
	case errors.Is(err, source.ErrMalformed):
		return true, f.skipMalformed(next, err)
	case err != nil:
		return false, fmt.Errorf("failed to get record %d: %w", next, err)
	}

	if rec.Position.Height != next {
		return true, f.skipMalformed(next, fmt.Errorf("%w: asked for height %d, got %s",
			source.ErrMalformed, next, rec.Position))
	}
	if !rec.Extends(f.cp.Cursor) {
		canonical, err := f.isCanonical(ctx, f.cp.Cursor)
		if err != nil {
			return false, err
		}
		if canonical {
			// The source served a record from a fork it has since abandoned.
			return true, f.skipMalformed(next, fmt.Errorf("%w: record %s has parent %s, cursor %s is canonical",
				source.ErrMalformed, rec.Position, rec.Parent, f.cp.Cursor))
		}
		return false, f.beginReorg(ctx)
	}

	if err := f.applyAndCommit(ctx, rec); err != nil {
		return false, err
	}
	f.malformedHeight, f.malformedCount = 0, 0
	return false, nil
}

func (f *Follower) isCanonical(ctx context.Context, p ledger.Position) (bool, error) {
	if p.IsZero() {
		return true, nil
	}
	ok, err := f.src.IsCanonical(ctx, p)
	if err != nil {
		return false, fmt.Errorf("failed to check canonical %s: %w", p, err)
	}
	return ok, nil
}

// skipMalformed reports a malformed fetch. It fails the run once the same
// height has been malformed MaxMalformed times in a row.
func (f *Follower) skipMalformed(height uint64, err error) error {
	if height != f.malformedHeight {
		f.malformedHeight, f.malformedCount = height, 0
	}
	f.malformedCount++
	f.metrics.RecordMalformed()
	f.log.Warnw("skipping malformed record",
		"height", height,
		"attempt", f.malformedCount,
		"maxAttempts", f.cfg.MaxMalformed,
		"error", err,
	)
	if f.malformedCount >= f.cfg.MaxMalformed {
		return fmt.Errorf("record %d malformed %d times: %w", height, f.malformedCount, err)
	}
	return nil
}

// Anchor starts an empty ledger at p instead of genesis, so a backfill can
// begin in the middle of the chain. Only an empty checkpoint can be anchored.
func (f *Follower) Anchor(ctx context.Context, p ledger.Position) error {
	if !f.initialized {
		return errNotInitialized
	}
	if !f.cp.Cursor.IsZero() || len(f.cp.Ledger) > 0 || len(f.cp.Journal) > 0 {
		return fmt.Errorf("cannot anchor checkpoint at %s: cursor already at %s", p, f.cp.Cursor)
	}
	next := stage(f.cp)
	next.Anchor = p
	next.Cursor = p
	if err := f.commit(ctx, next, nil); err != nil {
		return err
	}
	f.log.Infow("anchored ledger", "anchor", p.String())
	return nil
}
