// Package reward holds the pluggable reward computation used by the follower.
//
// An Engine is a pure function over (participant state, record). Apply and
// Undo must be exact inverses for the same record so a reorg can be unwound
// without approximations.
package reward

import (
	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// Engine computes reward deltas for the participants touched by a record.
type Engine interface {
	// Participants returns, in deterministic order, the participants whose
	// state must be updated for rec.
	Participants(rec ledger.Record) []string

	// Apply returns the participant state after rec together with the signed
	// reward change. It must not modify state and fails with
	// ledger.ErrInvalidPayload on malformed payloads.
	Apply(participant string, state ledger.ParticipantState, rec ledger.Record) (ledger.ParticipantState, ledger.Amount, error)

	// Undo is the inverse of Apply for the same record.
	Undo(participant string, state ledger.ParticipantState, rec ledger.Record) (ledger.ParticipantState, error)
}

// Finalizer is implemented by engines that keep undo history in participant
// state. Settle removes the history for records at or below height and returns
// it. Restore puts settled history back.
type Finalizer interface {
	Settle(state ledger.ParticipantState, height uint64) (ledger.ParticipantState, []ledger.Mark)
	Restore(state ledger.ParticipantState, marks []ledger.Mark) ledger.ParticipantState
}

// Scoped is implemented by engines that only credit a subset of participants.
type Scoped interface {
	Scope() string
}

// ScopeAll identifies an engine that credits every participant.
const ScopeAll = "all"

// ScopeOf returns a stable identifier of the participants e credits.
func ScopeOf(e Engine) string {
	if s, ok := e.(Scoped); ok {
		return s.Scope()
	}
	return ScopeAll
}
