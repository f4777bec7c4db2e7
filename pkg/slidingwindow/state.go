package slidingwindow

import (
	"fmt"
	"sync"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// State is a thread-safe in-memory store for the read-ahead window.
type State struct {
	mu      sync.Mutex
	lowest  uint64                   // next height the consumer will take.
	highest uint64                   // highest height known to exist.
	epoch   uint64                   // bumped on every rewind.
	fetched map[uint64]ledger.Record // fetched and not yet taken.

	// Heights currently being fetched to avoid duplicate work.
	inflight map[uint64]struct{}

	// Per-height prefetch failure counters.
	failCounts map[uint64]int
}

// NewState creates a State. initialHighest may be initialLowest-1 when the
// consumer is already at the tip.
func NewState(initialLowest, initialHighest uint64) (*State, error) {
	if initialHighest+1 < initialLowest {
		return nil, fmt.Errorf(
			"invalid initial watermarks: highest+1 < lowest: %d+1 < %d",
			initialHighest,
			initialLowest,
		)
	}
	return &State{
		lowest:     initialLowest,
		highest:    initialHighest,
		fetched:    make(map[uint64]ledger.Record),
		inflight:   make(map[uint64]struct{}),
		failCounts: make(map[uint64]int),
	}, nil
}

// GetLowest returns the next height the consumer will take.
func (s *State) GetLowest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lowest
}

// GetHighest returns the highest known height.
func (s *State) GetHighest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highest
}

// Epoch returns the current epoch.
func (s *State) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Buffered returns how many records are fetched and waiting.
func (s *State) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetched)
}

// SetHighest sets the highest known height. The tip may move backwards
// after a reorg but never below the consumer.
func (s *State) SetHighest(newHighest uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newHighest+1 < s.lowest {
		return fmt.Errorf(
			"invalid watermark update: new highest+1 < lowest: %d+1 < %d",
			newHighest,
			s.lowest,
		)
	}
	s.highest = newHighest
	for h := range s.fetched {
		if h > newHighest {
			delete(s.fetched, h)
		}
	}
	return nil
}

// Reset rewinds or fast-forwards the consumer to newLowest and drops every
// buffered record. Fetches still in flight finish into the old epoch and are
// discarded.
func (s *State) Reset(newLowest uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lowest = newLowest
	if s.highest+1 < newLowest {
		s.highest = newLowest - 1
	}
	s.epoch++
	clear(s.fetched)
	clear(s.failCounts)
}

// Store buffers a record fetched during epoch. It returns false when the
// record is stale or outside the window.
func (s *State) Store(h uint64, rec ledger.Record, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || h < s.lowest || h > s.highest {
		return false
	}
	s.fetched[h] = rec
	delete(s.failCounts, h)
	return true
}

// Take hands out the record at h if h is the lowest height and it has been
// fetched, then slides the window forward.
func (s *State) Take(h uint64) (ledger.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h != s.lowest {
		return ledger.Record{}, false
	}
	rec, ok := s.fetched[h]
	if !ok {
		return ledger.Record{}, false
	}
	delete(s.fetched, h)
	s.lowest++
	return rec, true
}

// Advance records that the consumer obtained h by other means.
func (s *State) Advance(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h < s.lowest {
		return
	}
	for k := range s.fetched {
		if k <= h {
			delete(s.fetched, k)
		}
	}
	for k := range s.failCounts {
		if k <= h {
			delete(s.failCounts, k)
		}
	}
	s.lowest = h + 1
	s.highest = max(s.highest, h)
}

// GetFailureCount returns the current failure count for a height.
func (s *State) GetFailureCount(h uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failCounts[h]
}

// IncrementFailureCount increments the failure count for a height.
// Returns the new failure count.
func (s *State) IncrementFailureCount(h uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCounts[h]++
	return s.failCounts[h]
}

// IsInflight returns true if a height is being fetched.
func (s *State) IsInflight(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[h]
	return ok
}

// TrySetInflight claims h for fetching. It fails when h is already claimed,
// already fetched or below the consumer.
func (s *State) TrySetInflight(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h < s.lowest {
		return false
	}
	if _, ok := s.fetched[h]; ok {
		return false
	}
	if _, ok := s.inflight[h]; ok {
		return false
	}
	s.inflight[h] = struct{}{}
	return true
}

// UnsetInflight removes a height from the inflight set.
func (s *State) UnsetInflight(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, h)
}

// FindNextUnclaimedHeight finds the next height in the first window heights
// starting at lowest that is neither fetched, in flight, nor failed
// maxFailures times.
func (s *State) FindNextUnclaimedHeight(window uint64, maxFailures int) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if window == 0 || s.highest < s.lowest {
		return 0, false
	}
	last := min(s.highest, s.lowest+window-1)
	for h := s.lowest; h <= last; h++ {
		if _, ok := s.fetched[h]; ok {
			continue
		}
		if _, ok := s.inflight[h]; ok {
			continue
		}
		if s.failCounts[h] >= maxFailures {
			continue
		}
		return h, true
	}
	return 0, false
}
