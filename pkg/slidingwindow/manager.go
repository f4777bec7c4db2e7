package slidingwindow

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
	"github.com/ava-labs/rewards-follower/pkg/source"
)

type Manager struct {
	log   *zap.SugaredLogger
	state *State
	src   source.Source

	// Limits concurrent prefetches.
	workerSem *semaphore.Weighted
	// How far ahead of the consumer to prefetch.
	window uint64
	// Wake-up signal to re-run scheduling; buffered (size 1) to coalesce signals.
	workReady chan struct{}

	// Prefetch attempts per height before leaving it to the consumer.
	maxFailures int

	// Closed and replaced every time a fetch finishes.
	mu      sync.Mutex
	arrived chan struct{}
}

var _ source.Source = (*Manager)(nil)

// NewManager creates a Manager and returns an error if arguments are invalid.
// Constraints: concurrency>0; window>0; maxFailures>0.
func NewManager(
	log *zap.SugaredLogger,
	s *State,
	src source.Source,
	concurrency, window uint64,
	maxFailures int,
) (*Manager, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if s == nil {
		return nil, errors.New("invalid state: must not be nil")
	}
	if src == nil {
		return nil, errors.New("invalid source: must not be nil")
	}
	if concurrency == 0 {
		return nil, errors.New("invalid concurrency: must be greater than 0")
	}
	if window == 0 {
		return nil, errors.New("invalid window: must be greater than 0")
	}
	if maxFailures <= 0 {
		return nil, errors.New("invalid max failures: must be greater than 0")
	}

	return &Manager{
		log:         log,
		state:       s,
		src:         src,
		workerSem:   semaphore.NewWeighted(int64(concurrency)),
		window:      window,
		workReady:   make(chan struct{}, 1),
		maxFailures: maxFailures,
		arrived:     make(chan struct{}),
	}, nil
}

// State returns the window state.
func (m *Manager) State() *State {
	return m.state
}

// SubmitHeight records a new tip height and wakes the scheduler. It returns
// false if the height is below the consumer.
func (m *Manager) SubmitHeight(h uint64) bool {
	if err := m.state.SetHighest(h); err != nil {
		m.log.Debugw("failed to set highest", "height", h, "error", err)
		return false
	}
	m.signalWorkReady()
	return true
}

// Run executes the scheduling loop until ctx is done. It keeps up to
// concurrency fetches in flight for unclaimed heights in the window.
func (m *Manager) Run(ctx context.Context) error {
	for {
		for {
			next, ok := m.state.FindNextUnclaimedHeight(m.window, m.maxFailures)
			if !ok {
				break
			}
			if !m.workerSem.TryAcquire(1) {
				break
			}
			if !m.state.TrySetInflight(next) {
				m.workerSem.Release(1)
				break
			}
			go m.fetch(ctx, next, m.state.Epoch())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.workReady:
			// A fetch finished or watermarks changed; loop restarts
		}
	}
}

// Get returns the record at height. Records requested in order are served
// from the window once the source confirms they are still canonical; any
// other height rewinds the window first.
func (m *Manager) Get(ctx context.Context, height uint64) (ledger.Record, error) {
	if m.state.GetLowest() != height {
		m.state.Reset(height)
		m.signalWorkReady()
	}

	for {
		wait := m.arrival()
		if rec, ok := m.state.Take(height); ok {
			canonical, err := m.src.IsCanonical(ctx, rec.Position)
			if err == nil && canonical {
				m.signalWorkReady()
				return rec, nil
			}
			m.log.Debugw("dropping prefetched window", "position", rec.Position.String(), "canonical", canonical, "error", err)
			m.state.Reset(height)
			m.signalWorkReady()
			break
		}
		if !m.state.IsInflight(height) {
			break
		}
		select {
		case <-ctx.Done():
			return ledger.Record{}, ctx.Err()
		case <-wait:
		}
	}

	rec, err := m.src.Get(ctx, height)
	if err != nil {
		return ledger.Record{}, err
	}
	m.state.Advance(height)
	m.signalWorkReady()
	return rec, nil
}

// Latest asks the source for its tip and widens the window to it.
func (m *Manager) Latest(ctx context.Context) (uint64, error) {
	tip, err := m.src.Latest(ctx)
	if err != nil {
		return 0, err
	}
	m.SubmitHeight(tip)
	return tip, nil
}

// IsCanonical asks the source. A position that is no longer canonical means
// the source reorganized, so everything prefetched so far is dropped.
func (m *Manager) IsCanonical(ctx context.Context, p ledger.Position) (bool, error) {
	ok, err := m.src.IsCanonical(ctx, p)
	if err == nil && !ok {
		m.state.Reset(m.state.GetLowest())
		m.signalWorkReady()
	}
	return ok, err
}

// fetch prefetches one height into the window.
func (m *Manager) fetch(ctx context.Context, h uint64, epoch uint64) {
	defer func() {
		m.workerSem.Release(1)
		m.state.UnsetInflight(h)
		m.broadcast()
		m.signalWorkReady()
	}()

	rec, err := m.src.Get(ctx, h)
	if err != nil {
		n := m.state.IncrementFailureCount(h)
		m.log.Debugw("prefetch failed", "height", h, "failures", n, "error", err)
		return
	}
	if !m.state.Store(h, rec, epoch) {
		m.log.Debugw("discarded stale prefetch", "height", h, "epoch", epoch)
	}
}

func (m *Manager) arrival() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arrived
}

func (m *Manager) broadcast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.arrived)
	m.arrived = make(chan struct{})
}

// signalWorkReady sends a signal to the workReady channel.
// It is used to wake up the scheduling loop.
func (m *Manager) signalWorkReady() {
	select {
	case m.workReady <- struct{}{}:
	default:
	}
}
