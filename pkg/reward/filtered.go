package reward

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

var (
	_ Engine    = (*Filtered)(nil)
	_ Finalizer = (*Filtered)(nil)
	_ Scoped    = (*Filtered)(nil)
)

// Filtered restricts an engine to a fixed set of tracked participants.
type Filtered struct {
	inner   Engine
	tracked map[string]struct{}
}

// NewFiltered wraps inner so only the given participants are credited.
func NewFiltered(inner Engine, participants []string) *Filtered {
	tracked := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		tracked[p] = struct{}{}
	}
	return &Filtered{inner: inner, tracked: tracked}
}

func (f *Filtered) Participants(rec ledger.Record) []string {
	all := f.inner.Participants(rec)
	out := make([]string, 0, len(all))
	for _, p := range all {
		if _, ok := f.tracked[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (f *Filtered) Apply(participant string, state ledger.ParticipantState, rec ledger.Record) (ledger.ParticipantState, ledger.Amount, error) {
	return f.inner.Apply(participant, state, rec)
}

func (f *Filtered) Undo(participant string, state ledger.ParticipantState, rec ledger.Record) (ledger.ParticipantState, error) {
	return f.inner.Undo(participant, state, rec)
}

func (f *Filtered) Settle(state ledger.ParticipantState, height uint64) (ledger.ParticipantState, []ledger.Mark) {
	if fin, ok := f.inner.(Finalizer); ok {
		return fin.Settle(state, height)
	}
	return state, nil
}

func (f *Filtered) Restore(state ledger.ParticipantState, marks []ledger.Mark) ledger.ParticipantState {
	if fin, ok := f.inner.(Finalizer); ok {
		return fin.Restore(state, marks)
	}
	return state
}

// Scope hashes the sorted tracked set, so two filters with the same members
// share a scope regardless of insertion order.
func (f *Filtered) Scope() string {
	h := sha256.New()
	for _, p := range slices.Sorted(maps.Keys(f.tracked)) {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "filtered:" + hex.EncodeToString(h.Sum(nil))
}

// Tracked reports whether participant is tracked.
func (f *Filtered) Tracked(participant string) bool {
	_, ok := f.tracked[participant]
	return ok
}
