// Package migrate upgrades persisted checkpoint bundles between schema
// versions.
//
// Each Step transforms the raw bundle from exactly one version to the next.
// Steps are structural by default: they rewrite the document in time
// proportional to the ledger size. A step that declares Recompute changes
// the meaning of ledger values, and after the whole chain has run the
// configured Replayer rebuilds the ledger from the source.
package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// Step upgrades a bundle from version From to version To (= From+1).
type Step struct {
	From      int
	To        int
	Name      string
	Recompute bool
	Transform func(doc []byte) ([]byte, error)
}

// Replayer rebuilds the ledger of a fully migrated bundle by re-running the
// reward engine over the records between the bundle's anchor and cursor.
type Replayer func(ctx context.Context, doc []byte) ([]byte, error)

// Manager holds the registered steps.
type Manager struct {
	log      *zap.SugaredLogger
	steps    map[int]Step
	replayer Replayer
}

// Option configures a Manager.
type Option func(*Manager)

// WithReplayer sets the replayer used after recompute steps.
func WithReplayer(r Replayer) Option {
	return func(m *Manager) {
		m.replayer = r
	}
}

// NewManager creates a Manager with no steps.
func NewManager(log *zap.SugaredLogger, opts ...Option) (*Manager, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	m := &Manager{log: log, steps: make(map[int]Step)}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewDefault creates a Manager with the built-in steps registered.
func NewDefault(log *zap.SugaredLogger, opts ...Option) (*Manager, error) {
	m, err := NewManager(log, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Register(DefaultSteps()...); err != nil {
		return nil, err
	}
	return m, nil
}

// Register adds steps. Each step must move exactly one version forward and
// at most one step may start at a given version.
func (m *Manager) Register(steps ...Step) error {
	for _, s := range steps {
		switch {
		case s.From < 1:
			return fmt.Errorf("invalid step %q: from version must be >= 1, got %d", s.Name, s.From)
		case s.To != s.From+1:
			return fmt.Errorf("invalid step %q: must migrate %d -> %d, got -> %d", s.Name, s.From, s.From+1, s.To)
		case s.Transform == nil:
			return fmt.Errorf("invalid step %q: transform must not be nil", s.Name)
		}
		if existing, ok := m.steps[s.From]; ok {
			return fmt.Errorf("invalid step %q: version %d already handled by %q", s.Name, s.From, existing.Name)
		}
		m.steps[s.From] = s
	}
	return nil
}

// Versions returns the versions that have a registered outgoing step.
func (m *Manager) Versions() []int {
	out := make([]int, 0, len(m.steps))
	for v := range m.steps {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Path returns the ordered steps from one version to another.
func (m *Manager) Path(from, to int) ([]Step, error) {
	if from > to {
		return nil, &ledger.VersionError{From: from, To: to, Err: fmt.Errorf("%w: downgrades are not supported", ledger.ErrUnknownMigrationPath)}
	}
	path := make([]Step, 0, to-from)
	for v := from; v < to; v++ {
		s, ok := m.steps[v]
		if !ok {
			return nil, &ledger.VersionError{From: from, To: to, Err: fmt.Errorf("%w: no step from version %d", ledger.ErrUnknownMigrationPath, v)}
		}
		path = append(path, s)
	}
	return path, nil
}

// Migrate runs the step chain from -> to on a private copy of doc and returns
// the migrated bundle. When from == to the input is returned unchanged. On
// any failure nothing is returned, so callers persist only complete results.
func (m *Manager) Migrate(ctx context.Context, doc []byte, from, to int) ([]byte, error) {
	if from == to {
		return doc, nil
	}
	path, err := m.Path(from, to)
	if err != nil {
		return nil, err
	}

	work := bytes.Clone(doc)
	recompute := false
	for _, s := range path {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.Transform(bytes.Clone(work))
		if err != nil {
			return nil, &ledger.VersionError{From: s.From, To: s.To, Err: fmt.Errorf("step %q: %w", s.Name, err)}
		}
		got, err := ledger.PeekVersion(out)
		if err != nil {
			return nil, &ledger.VersionError{From: s.From, To: s.To, Err: fmt.Errorf("step %q: %w", s.Name, err)}
		}
		if got != s.To {
			return nil, &ledger.VersionError{From: s.From, To: s.To, Err: fmt.Errorf("step %q produced version %d", s.Name, got)}
		}
		m.log.Infow("applied migration step", "step", s.Name, "from", s.From, "to", s.To, "recompute", s.Recompute)
		work = out
		recompute = recompute || s.Recompute
	}

	if recompute {
		if m.replayer == nil {
			return nil, &ledger.VersionError{From: from, To: to, Err: errors.New("recompute step requires a replayer")}
		}
		m.log.Infow("recomputing ledger after migration", "from", from, "to", to)
		out, err := m.replayer(ctx, work)
		if err != nil {
			return nil, &ledger.VersionError{From: from, To: to, Err: fmt.Errorf("recompute: %w", err)}
		}
		work = out
	}
	return work, nil
}
