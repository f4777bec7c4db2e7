package follower

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/migrate"
)

// Delta is the change one committed record made to one participant.
type Delta struct {
	Participant string
	Delta       ledger.Amount
	Cumulative  ledger.Amount
}

// Commit describes a record whose application (or undo) has been persisted.
type Commit struct {
	Record ledger.Record
	Undo   bool
	Cursor ledger.Position
	Deltas []Delta
}

// Observer is notified after every persisted apply or undo. It runs on the
// follower goroutine and must not block for long.
type Observer interface {
	OnCommit(ctx context.Context, c Commit)
}

// Metrics receives follower measurements.
type Metrics interface {
	RecordApplied(d time.Duration)
	RecordUndone()
	RecordReorg(depth int)
	RecordMalformed()
	RecordCheckpointWrite(d time.Duration, err error)
	SetCursor(height uint64)
}

type nopMetrics struct{}

func (nopMetrics) RecordApplied(time.Duration)                {}
func (nopMetrics) RecordUndone()                              {}
func (nopMetrics) RecordReorg(int)                            {}
func (nopMetrics) RecordMalformed()                           {}
func (nopMetrics) RecordCheckpointWrite(time.Duration, error) {}
func (nopMetrics) SetCursor(uint64)                           {}

type Option func(*Follower)

// WithMigrator replaces the default migration chain.
func WithMigrator(m *migrate.Manager) Option {
	return func(f *Follower) {
		f.migrator = m
	}
}

func WithMetrics(m Metrics) Option {
	return func(f *Follower) {
		if m != nil {
			f.metrics = m
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(f *Follower) {
		if t != nil {
			f.tracer = t
		}
	}
}

func WithObserver(o Observer) Option {
	return func(f *Follower) {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
}
